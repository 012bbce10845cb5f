package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME and the working directory at empty temp dirs so a
// developer's protsearch.yaml cannot leak into tests.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, ".config"))
	t.Chdir(dir)
	return dir
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		isolate(t)
		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 10*time.Minute, cfg.Server.WriteTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
		assert.Equal(t, 5.0, cfg.Server.SubmitRate)
		assert.Equal(t, 10, cfg.Server.SubmitBurst)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "structured", cfg.Logging.Profile)

		assert.Equal(t, "data/queries/proteins", cfg.Storage.QueriesDir)
		assert.Equal(t, "data/results/proteins", cfg.Storage.ResultsDir)
		assert.Equal(t, ".protein.query", cfg.Storage.QuerySuffix)
		assert.Equal(t, ".diamond.out", cfg.Storage.ResultSuffix)
		assert.Equal(t, ".diamond.err", cfg.Storage.FailureSuffix)
		assert.Equal(t, 14, cfg.Storage.RetentionDays)
		assert.Equal(t, 14*24*time.Hour, cfg.Storage.Retention())

		assert.Equal(t, "diamond", cfg.Search.Path)
		assert.Equal(t, "blastp", cfg.Search.Algorithm)
		assert.Equal(t, "data/db/proteins.dmnd", cfg.Search.Database)
		assert.Empty(t, cfg.Search.ExtraArgs)
		assert.Zero(t, cfg.Search.Timeout)

		assert.Equal(t, 3*time.Second, cfg.Jobs.PollInterval)
		assert.Equal(t, time.Hour, cfg.Jobs.SweepInterval)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		isolate(t)
		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"logging": map[string]any{
				"level": "debug",
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "structured", cfg.Logging.Profile)
		assert.Equal(t, 14, cfg.Storage.RetentionDays)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		isolate(t)
		t.Setenv("PROTSEARCH_PORT", "3000")
		t.Setenv("PROTSEARCH_LOG_LEVEL", "warn")
		t.Setenv("PROTSEARCH_SEARCH_ALGORITHM", "blastx")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, "blastx", cfg.Search.Algorithm)
	})

	t.Run("LegacyEnvNames", func(t *testing.T) {
		isolate(t)
		t.Setenv("PROTEIN_QUERIES_DIR", "/srv/q")
		t.Setenv("PROTEIN_RESULTS_DIR", "/srv/r")
		t.Setenv("PROTEIN_QUERIES_SUFFIX", ".q")
		t.Setenv("PROTEIN_RESULTS_SUFFIX", ".out")
		t.Setenv("DAYS_DELETE_QUERY", "7")
		t.Setenv("DIAMOND_DB", "/srv/db.dmnd")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, "/srv/q", cfg.Storage.QueriesDir)
		assert.Equal(t, "/srv/r", cfg.Storage.ResultsDir)
		assert.Equal(t, ".q", cfg.Storage.QuerySuffix)
		assert.Equal(t, ".out", cfg.Storage.ResultSuffix)
		assert.Equal(t, 7, cfg.Storage.RetentionDays)
		assert.Equal(t, "/srv/db.dmnd", cfg.Search.Database)
	})

	t.Run("PrefixedNameBeatsLegacyName", func(t *testing.T) {
		isolate(t)
		t.Setenv("PROTSEARCH_STORAGE_RETENTION_DAYS", "3")
		t.Setenv("DAYS_DELETE_QUERY", "7")

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.Storage.RetentionDays)
	})

	t.Run("ConfigPrecedence", func(t *testing.T) {
		isolate(t)
		t.Setenv("PROTSEARCH_PORT", "4000")

		overrides := map[string]any{
			"server": map[string]any{
				"port": 5000,
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)
		assert.Equal(t, 5000, cfg.Server.Port)
	})
}

func TestLoadFile(t *testing.T) {
	ctx := context.Background()

	t.Run("ExplicitFile", func(t *testing.T) {
		dir := isolate(t)
		path := filepath.Join(dir, "custom.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 7070
storage:
  retention_days: 30
search:
  database: /data/nr.dmnd
  extra_args: ["--sensitive", "--threads", "4"]
  timeout: 15m
`), 0o644))

		cfg, err := LoadFile(ctx, path)
		require.NoError(t, err)

		assert.Equal(t, 7070, cfg.Server.Port)
		assert.Equal(t, 30, cfg.Storage.RetentionDays)
		assert.Equal(t, "/data/nr.dmnd", cfg.Search.Database)
		assert.Equal(t, []string{"--sensitive", "--threads", "4"}, cfg.Search.ExtraArgs)
		assert.Equal(t, 15*time.Minute, cfg.Search.Timeout)
	})

	t.Run("DiscoveredInWorkingDir", func(t *testing.T) {
		dir := isolate(t)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "protsearch.yaml"), []byte("logging:\n  profile: console\n"), 0o644))

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "console", cfg.Logging.Profile)
	})

	t.Run("EnvBeatsFile", func(t *testing.T) {
		dir := isolate(t)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "protsearch.yaml"), []byte("server:\n  port: 7070\n"), 0o644))
		t.Setenv("PROTSEARCH_SERVER_PORT", "7171")

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 7171, cfg.Server.Port)
	})

	t.Run("MissingExplicitFile", func(t *testing.T) {
		dir := isolate(t)
		_, err := LoadFile(ctx, filepath.Join(dir, "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		isolate(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := Load(cctx)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestActiveEnvSpecs(t *testing.T) {
	for _, spec := range getEnvSpecs() {
		if _, ok := os.LookupEnv(spec.Name); ok {
			t.Setenv(spec.Name, "")
			require.NoError(t, os.Unsetenv(spec.Name))
		}
	}
	assert.Empty(t, ActiveEnvSpecs())

	t.Setenv("DIAMOND_DB", "/srv/db/uniref.dmnd")
	t.Setenv("PROTSEARCH_SERVER_PORT", "9090")

	assert.Equal(t, []EnvSpec{
		{Name: "DIAMOND_DB", Path: "search.database"},
		{Name: "PROTSEARCH_SERVER_PORT", Path: "server.port"},
	}, ActiveEnvSpecs())
}

func TestEnvSpecs(t *testing.T) {
	specs := getEnvSpecs()
	require.NotEmpty(t, specs)

	names := make(map[string]string)
	for _, spec := range specs {
		assert.NotEmpty(t, spec.Path, "env var %s should have a path", spec.Name)
		names[spec.Name] = spec.Path
	}

	assert.Equal(t, "server.port", names["PROTSEARCH_PORT"])
	assert.Equal(t, "server.port", names["PROTSEARCH_SERVER_PORT"])
	assert.Equal(t, "logging.level", names["PROTSEARCH_LOG_LEVEL"])
	assert.Equal(t, "storage.retention_days", names["DAYS_DELETE_QUERY"])
	assert.Equal(t, "search.database", names["DIAMOND_DB"])
}

func TestDurationParsing(t *testing.T) {
	isolate(t)
	t.Setenv("PROTSEARCH_SERVER_READ_TIMEOUT", "45s")
	t.Setenv("PROTSEARCH_JOBS_POLL_INTERVAL", "500ms")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Jobs.PollInterval)
}

func TestValidate(t *testing.T) {
	isolate(t)
	base, err := Load(context.Background())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"negative rate", func(c *Config) { c.Server.SubmitRate = -1 }},
		{"zero burst with rate", func(c *Config) { c.Server.SubmitBurst = 0 }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
		{"empty queries dir", func(c *Config) { c.Storage.QueriesDir = " " }},
		{"empty suffix", func(c *Config) { c.Storage.FailureSuffix = "" }},
		{"zero retention", func(c *Config) { c.Storage.RetentionDays = 0 }},
		{"empty database", func(c *Config) { c.Search.Database = "" }},
		{"negative timeout", func(c *Config) { c.Search.Timeout = -time.Second }},
		{"zero poll interval", func(c *Config) { c.Jobs.PollInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *base
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}

	t.Run("rate limiting disabled ignores burst", func(t *testing.T) {
		c := *base
		c.Server.SubmitRate = 0
		c.Server.SubmitBurst = 0
		assert.NoError(t, c.Validate())
	})
}

func TestConversions(t *testing.T) {
	isolate(t)
	cfg, err := Load(context.Background(), map[string]any{
		"search": map[string]any{"extra_args": []string{"--fast"}},
	})
	require.NoError(t, err)

	layout := cfg.Storage.Layout()
	assert.Equal(t, cfg.Storage.QueriesDir, layout.QueriesDir)
	assert.Equal(t, cfg.Storage.FailureSuffix, layout.FailureSuffix)

	tool := cfg.Search.Tool()
	assert.Equal(t, "diamond", tool.Path)
	assert.Equal(t, []string{"--fast"}, tool.ExtraArgs)

	assert.Equal(t, "localhost:8080", cfg.Server.Addr())
}
