package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment override, e.g. PROTSEARCH_SERVER_PORT.
	EnvPrefix  = "PROTSEARCH"
	ConfigName = "protsearch"
)

// envAliases are additional environment variables accepted per key. The
// PROTEIN_* and DAYS_DELETE_QUERY names are kept for existing deployments.
var envAliases = map[string][]string{
	"server.port":            {"PROTSEARCH_PORT"},
	"server.host":            {"PROTSEARCH_HOST"},
	"logging.level":          {"PROTSEARCH_LOG_LEVEL"},
	"storage.queries_dir":    {"PROTEIN_QUERIES_DIR"},
	"storage.results_dir":    {"PROTEIN_RESULTS_DIR"},
	"storage.query_suffix":   {"PROTEIN_QUERIES_SUFFIX"},
	"storage.result_suffix":  {"PROTEIN_RESULTS_SUFFIX"},
	"storage.retention_days": {"DAYS_DELETE_QUERY"},
	"search.database":        {"DIAMOND_DB"},
}

// EnvSpec maps an environment variable to a config key path.
type EnvSpec struct {
	Name string
	Path string
}

// ActiveEnvSpecs returns the recognized environment variables that are set in
// the process environment, sorted by name.
func ActiveEnvSpecs() []EnvSpec {
	var set []EnvSpec
	for _, spec := range getEnvSpecs() {
		if _, ok := os.LookupEnv(spec.Name); ok {
			set = append(set, spec)
		}
	}
	return set
}

func getEnvSpecs() []EnvSpec {
	var specs []EnvSpec
	for key, aliases := range envAliases {
		specs = append(specs, EnvSpec{Name: envName(key), Path: key})
		for _, a := range aliases {
			specs = append(specs, EnvSpec{Name: a, Path: key})
		}
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "10m")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.submit_rate", 5.0)
	v.SetDefault("server.submit_burst", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	v.SetDefault("storage.queries_dir", "data/queries/proteins")
	v.SetDefault("storage.results_dir", "data/results/proteins")
	v.SetDefault("storage.query_suffix", ".protein.query")
	v.SetDefault("storage.result_suffix", ".diamond.out")
	v.SetDefault("storage.failure_suffix", ".diamond.err")
	v.SetDefault("storage.retention_days", 14)

	v.SetDefault("search.path", "diamond")
	v.SetDefault("search.algorithm", "blastp")
	v.SetDefault("search.database", "data/db/proteins.dmnd")
	v.SetDefault("search.extra_args", []string{})
	v.SetDefault("search.timeout", "0s")

	v.SetDefault("jobs.poll_interval", "3s")
	v.SetDefault("jobs.sweep_interval", "1h")
}

// Load builds the configuration using the default config file search path.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	return LoadFile(ctx, "", overrides...)
}

// LoadFile builds the configuration. When path is empty, protsearch.yaml is
// looked up in the working directory and the user config directory, and a
// missing file is not an error. Overrides are nested maps keyed like the
// YAML file and take precedence over everything else.
func LoadFile(ctx context.Context, path string, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, aliases := range envAliases {
		input := append([]string{key, envName(key)}, aliases...)
		if err := v.BindEnv(input...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	path = strings.TrimSpace(path)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, ConfigName))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	for _, o := range overrides {
		applyOverrides(v, "", o)
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// applyOverrides flattens nested maps into dotted keys and sets them with
// the highest precedence.
func applyOverrides(v *viper.Viper, prefix string, m map[string]any) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			applyOverrides(v, key, nested)
			continue
		}
		v.Set(key, val)
	}
}
