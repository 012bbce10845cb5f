// Package observability owns process-wide logging.
package observability

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	ProfileStructured = "structured"
	ProfileConsole    = "console"
)

// CLILogger is the logger used by CLI commands. It is a no-op until
// InitCLILogger runs.
var CLILogger = zap.NewNop()

// InitCLILogger configures CLILogger for interactive use: console encoding,
// no timestamps, debug level when verbose.
func InitCLILogger(name string, verbose bool) {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.TimeKey = ""
	cfg.EncoderConfig.CallerKey = ""
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.DisableStacktrace = true
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		CLILogger = zap.NewNop()
		return
	}
	CLILogger = logger.Named(name)
}

// NewLogger builds a service logger. The structured profile emits JSON
// lines, the console profile human-readable output.
func NewLogger(name, level, profile string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(profile)) {
	case "", ProfileStructured:
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case ProfileConsole:
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("invalid log profile %q (want %s or %s)", profile, ProfileStructured, ProfileConsole)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Named(name), nil
}
