package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/3leaps/protsearch/internal/config"
)

func newDoctorReport() (*doctorReport, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	return &doctorReport{logger: zap.New(core), ok: true}, logs
}

func TestDoctorChecksPassWithWorkingSetup(t *testing.T) {
	env := setupCLI(t)
	require.NoError(t, os.MkdirAll(env.queriesDir, 0o755))
	require.NoError(t, os.MkdirAll(env.resultsDir, 0o755))

	cfg, err := config.Load(context.Background())
	require.NoError(t, err)

	report, logs := newDoctorReport()
	doctorStorage(doctorCmd, report, cfg)
	doctorSearchTool(report, cfg)

	assert.True(t, report.ok)
	assert.Equal(t, 3, report.num)
	assert.Equal(t, 3, logs.Len())
}

func TestDoctorFlagsMissingToolAndDatabase(t *testing.T) {
	env := setupCLI(t)
	t.Setenv("PROTSEARCH_SEARCH_PATH", "protsearch-no-such-binary")
	t.Setenv("PROTSEARCH_SEARCH_DATABASE", filepath.Join(env.dir, "missing.dmnd"))

	cfg, err := config.Load(context.Background())
	require.NoError(t, err)

	report, logs := newDoctorReport()
	doctorStorage(doctorCmd, report, cfg)
	doctorSearchTool(report, cfg)

	assert.False(t, report.ok)
	assert.Equal(t, 3, report.num)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len(), "job directories do not exist yet")
	assert.Equal(t, 2, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
	assert.NotZero(t, logs.FilterMessage("To install DIAMOND:").Len())
	assert.Equal(t, int(foundry.ExitExternalServiceUnavailable), report.exitCode, "first failed check decides the code")
}

func TestDoctorCommandRuns(t *testing.T) {
	setupCLI(t)
	_, err := runCLI(t, "", "doctor")
	require.NoError(t, err)
}

func TestDoctorCommandExitCodes(t *testing.T) {
	t.Run("missing database", func(t *testing.T) {
		env := setupCLI(t)
		t.Setenv("PROTSEARCH_SEARCH_DATABASE", filepath.Join(env.dir, "missing.dmnd"))

		_, err := runCLI(t, "", "doctor")
		require.Error(t, err)
		assert.Equal(t, int(foundry.ExitFileNotFound), ExitCode(err))
	})

	t.Run("invalid configuration", func(t *testing.T) {
		setupCLI(t)
		t.Setenv("PROTSEARCH_STORAGE_RETENTION_DAYS", "0")

		_, err := runCLI(t, "", "doctor")
		require.Error(t, err)
		assert.Equal(t, int(foundry.ExitInvalidArgument), ExitCode(err))
	})
}
