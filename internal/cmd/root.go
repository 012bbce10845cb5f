// Package cmd implements the protsearch command line.
package cmd

import (
	"context"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/protsearch/internal/config"
	"github.com/3leaps/protsearch/internal/observability"
	"github.com/3leaps/protsearch/internal/server/handlers"
)

const appName = "protsearch"

var (
	cfgFile  string
	logLevel string
	verbose  bool
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "unknown",
	BuildDate: "unknown",
}

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Protein sequence search job service",
	Long: `protsearch accepts protein sequences, runs a DIAMOND search for each one in
the background and keeps the results on disk until they expire.

Run 'protsearch serve' for the HTTP API, or use 'submit' and 'jobs' to work
with the same job directories from the command line.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		observability.InitCLILogger(appName, verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./protsearch.yaml or $XDG_CONFIG_HOME/protsearch/protsearch.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose CLI output")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// SetVersionInfo records build metadata for the version command and the
// /version endpoint.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	handlers.SetVersionInfo(version, commit, buildDate)
}

// loadConfig loads configuration with command line overrides applied on top.
func loadConfig(cmd *cobra.Command, overrides map[string]any) (*config.Config, error) {
	ctx := commandContext(cmd)
	if overrides == nil {
		overrides = map[string]any{}
	}
	if level := strings.TrimSpace(logLevel); level != "" {
		overrides["logging"] = map[string]any{"level": level}
	}
	cfg, err := config.LoadFile(ctx, cfgFile, overrides)
	if err != nil {
		return nil, exitError(int(foundry.ExitInvalidArgument), "Invalid configuration", err)
	}
	return cfg, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
