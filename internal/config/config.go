// Package config loads service configuration from defaults, an optional
// YAML file, environment variables and runtime overrides, in increasing
// order of precedence.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/3leaps/protsearch/pkg/jobregistry"
	"github.com/3leaps/protsearch/pkg/searchtool"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Search  SearchConfig  `mapstructure:"search" yaml:"search"`
	Jobs    JobsConfig    `mapstructure:"jobs" yaml:"jobs"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// SubmitRate is the sustained submissions per second across all clients.
	// Zero disables rate limiting.
	SubmitRate  float64 `mapstructure:"submit_rate" yaml:"submit_rate"`
	SubmitBurst int     `mapstructure:"submit_burst" yaml:"submit_burst"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`
	Profile string `mapstructure:"profile" yaml:"profile"`
}

type StorageConfig struct {
	QueriesDir    string `mapstructure:"queries_dir" yaml:"queries_dir"`
	ResultsDir    string `mapstructure:"results_dir" yaml:"results_dir"`
	QuerySuffix   string `mapstructure:"query_suffix" yaml:"query_suffix"`
	ResultSuffix  string `mapstructure:"result_suffix" yaml:"result_suffix"`
	FailureSuffix string `mapstructure:"failure_suffix" yaml:"failure_suffix"`
	RetentionDays int    `mapstructure:"retention_days" yaml:"retention_days"`
}

type SearchConfig struct {
	Path      string        `mapstructure:"path" yaml:"path"`
	Algorithm string        `mapstructure:"algorithm" yaml:"algorithm"`
	Database  string        `mapstructure:"database" yaml:"database"`
	ExtraArgs []string      `mapstructure:"extra_args" yaml:"extra_args"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type JobsConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Retention converts RetentionDays to a duration.
func (s StorageConfig) Retention() time.Duration {
	return time.Duration(s.RetentionDays) * 24 * time.Hour
}

func (s StorageConfig) Layout() jobregistry.Layout {
	return jobregistry.Layout{
		QueriesDir:    s.QueriesDir,
		ResultsDir:    s.ResultsDir,
		QuerySuffix:   s.QuerySuffix,
		ResultSuffix:  s.ResultSuffix,
		FailureSuffix: s.FailureSuffix,
	}
}

func (s SearchConfig) Tool() searchtool.Config {
	return searchtool.Config{
		Path:      s.Path,
		Algorithm: s.Algorithm,
		Database:  s.Database,
		ExtraArgs: append([]string(nil), s.ExtraArgs...),
		Timeout:   s.Timeout,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got %d", c.Server.Port)
	}
	if c.Server.SubmitRate < 0 {
		return fmt.Errorf("server.submit_rate must be >= 0")
	}
	if c.Server.SubmitRate > 0 && c.Server.SubmitBurst < 1 {
		return fmt.Errorf("server.submit_burst must be >= 1 when rate limiting is enabled")
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if strings.TrimSpace(c.Storage.QueriesDir) == "" || strings.TrimSpace(c.Storage.ResultsDir) == "" {
		return fmt.Errorf("storage.queries_dir and storage.results_dir are required")
	}
	if c.Storage.QuerySuffix == "" || c.Storage.ResultSuffix == "" || c.Storage.FailureSuffix == "" {
		return fmt.Errorf("storage suffixes must not be empty")
	}
	if c.Storage.RetentionDays <= 0 {
		return fmt.Errorf("storage.retention_days must be > 0, got %d", c.Storage.RetentionDays)
	}
	if strings.TrimSpace(c.Search.Database) == "" {
		return fmt.Errorf("search.database is required")
	}
	if c.Search.Timeout < 0 {
		return fmt.Errorf("search.timeout must be >= 0")
	}
	if c.Jobs.PollInterval <= 0 {
		return fmt.Errorf("jobs.poll_interval must be > 0")
	}
	if c.Jobs.SweepInterval < 0 {
		return fmt.Errorf("jobs.sweep_interval must be >= 0")
	}
	return nil
}
