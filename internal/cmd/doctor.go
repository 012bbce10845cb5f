package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/protsearch/internal/config"
	"github.com/3leaps/protsearch/internal/observability"
	"github.com/3leaps/protsearch/internal/server/handlers"
	"github.com/3leaps/protsearch/pkg/searchtool"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the configuration, job directories and search tool
and suggest fixes for common issues.

Examples:
  protsearch doctor
  protsearch doctor --config /etc/protsearch/protsearch.yaml`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

const doctorTotalChecks = 5

// doctorReport tracks the check counter and overall outcome. exitCode is
// the foundry code of the first failed check.
type doctorReport struct {
	logger   *zap.Logger
	num      int
	ok       bool
	exitCode int
}

func (r *doctorReport) pass(what, detail string, fields ...zap.Field) {
	r.num++
	r.logger.Info(fmt.Sprintf("[%d/%d] Checking %s... ✅ %s", r.num, doctorTotalChecks, what, detail), fields...)
}

func (r *doctorReport) warn(what, detail string, fields ...zap.Field) {
	r.num++
	r.ok = false
	r.logger.Warn(fmt.Sprintf("[%d/%d] Checking %s... ⚠️  %s", r.num, doctorTotalChecks, what, detail), fields...)
}

func (r *doctorReport) fail(code int, what, detail string, fields ...zap.Field) {
	r.num++
	r.ok = false
	if r.exitCode == 0 {
		r.exitCode = code
	}
	r.logger.Error(fmt.Sprintf("[%d/%d] Checking %s... ❌ %s", r.num, doctorTotalChecks, what, detail), fields...)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	logger := observability.CLILogger
	logger.Info("=== " + appName + " doctor ===")
	logger.Info("")
	logger.Info("Running diagnostic checks...")
	logger.Info("")

	report := &doctorReport{logger: logger, ok: true}

	goVersion := runtime.Version()
	report.pass("Go runtime", fmt.Sprintf("%s %s/%s", goVersion, runtime.GOOS, runtime.GOARCH),
		zap.String("go_version", goVersion))

	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		report.fail(ExitCode(err), "configuration", "cannot load configuration", zap.Error(err))
		logger.Info("")
		logger.Warn("⚠️  Configuration must load before the remaining checks can run.")
		return err
	}
	var envNames []string
	for _, spec := range config.ActiveEnvSpecs() {
		envNames = append(envNames, spec.Name)
	}
	report.pass("configuration", "loaded",
		zap.Strings("env_overrides", envNames),
		zap.String("queries_dir", cfg.Storage.QueriesDir),
		zap.String("results_dir", cfg.Storage.ResultsDir),
		zap.Int("retention_days", cfg.Storage.RetentionDays))

	doctorStorage(cmd, report, cfg)
	doctorSearchTool(report, cfg)

	logger.Info("")
	if report.ok {
		logger.Info("✅ All checks passed! Your " + appName + " installation is healthy.")
	} else {
		logger.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	logger.Info("")
	logger.Info("=== End Diagnostics ===")
	if report.exitCode != 0 {
		return exitError(report.exitCode, "Diagnostic checks failed", nil)
	}
	return nil
}

func doctorStorage(cmd *cobra.Command, report *doctorReport, cfg *config.Config) {
	store, err := openStore(cfg)
	if err != nil {
		report.fail(int(foundry.ExitInvalidArgument), "job directories", "invalid storage layout", zap.Error(err))
		return
	}
	if err := handlers.StorageChecker(store).CheckHealth(commandContext(cmd)); err != nil {
		report.warn("job directories", "not ready (created by 'protsearch serve' or 'protsearch submit')", zap.Error(err))
		return
	}
	report.pass("job directories", "writable")
}

func doctorSearchTool(report *doctorReport, cfg *config.Config) {
	tool, err := searchtool.New(cfg.Search.Tool(), zap.NewNop())
	if err != nil {
		report.fail(int(foundry.ExitInvalidArgument), "search tool", "invalid search configuration", zap.Error(err))
		report.num++
		return
	}

	path, err := tool.LookPath()
	if err != nil {
		report.fail(int(foundry.ExitExternalServiceUnavailable), "search tool", fmt.Sprintf("%q not found on PATH", cfg.Search.Path), zap.Error(err))
		printSearchToolHelp(report.logger)
	} else {
		report.pass("search tool", path, zap.String("algorithm", cfg.Search.Algorithm))
	}

	info, err := os.Stat(cfg.Search.Database)
	switch {
	case err != nil:
		report.fail(int(foundry.ExitFileNotFound), "search database", "cannot read "+cfg.Search.Database, zap.Error(err))
	case info.IsDir():
		report.fail(int(foundry.ExitFileReadError), "search database", cfg.Search.Database+" is a directory")
	default:
		report.pass("search database", cfg.Search.Database, zap.Int64("size_bytes", info.Size()))
	}
}

// printSearchToolHelp prints help for installing DIAMOND.
func printSearchToolHelp(logger *zap.Logger) {
	logger.Info("")
	logger.Info("To install DIAMOND:")
	logger.Info("  1. Download a release from https://github.com/bbuchfink/diamond/releases, or")
	logger.Info("  2. Install it with your package manager (e.g. 'conda install -c bioconda diamond')")
	logger.Info("")
	logger.Info("Then set search.path (PROTSEARCH_SEARCH_PATH) if the binary is not on PATH.")
	logger.Info("")
}
