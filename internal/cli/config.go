package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mstrYoda/repoql"
	"github.com/mstrYoda/repoql/auth"
)

// Config is the YAML configuration file of the repoql command.
type Config struct {
	Dir        string           `yaml:"dir"`
	Listen     string           `yaml:"listen"`
	LogLevel   string           `yaml:"log_level"`
	Repository RepositoryConfig `yaml:"repository"`
	Auth       AuthConfig       `yaml:"auth"`
}

// RepositoryConfig mirrors repoql.Options.
type RepositoryConfig struct {
	Workers            int           `yaml:"workers"`
	NoSync             bool          `yaml:"no_sync"`
	QueryCacheSize     int           `yaml:"query_cache_size"`
	MaxResultRows      int           `yaml:"max_result_rows"`
	QueryTimeout       time.Duration `yaml:"query_timeout"`
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold"`
}

// AuthConfig configures token authentication of the HTTP server.
type AuthConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Expiration      time.Duration `yaml:"token_expiration"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	opts := repoql.DefaultOptions()
	return Config{
		Dir:      "./data",
		Listen:   ":8080",
		LogLevel: "info",
		Repository: RepositoryConfig{
			Workers:            opts.WorkerPoolSize,
			QueryCacheSize:     opts.QueryCacheSize,
			MaxResultRows:      opts.MaxResultRows,
			SlowQueryThreshold: opts.SlowQueryThreshold,
		},
		Auth: AuthConfig{
			Expiration:      auth.DefaultExpiration,
			RefreshInterval: auth.DefaultRefreshInterval,
		},
	}
}

// LoadConfig reads path over the defaults. An empty path returns the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Options converts the repository section to repoql.Options.
func (c Config) Options(logger *slog.Logger) repoql.Options {
	opts := repoql.DefaultOptions()
	if c.Repository.Workers > 0 {
		opts.WorkerPoolSize = c.Repository.Workers
	}
	if c.Repository.QueryCacheSize > 0 {
		opts.QueryCacheSize = c.Repository.QueryCacheSize
	}
	opts.NoSync = c.Repository.NoSync
	opts.MaxResultRows = c.Repository.MaxResultRows
	opts.DefaultQueryTimeout = c.Repository.QueryTimeout
	opts.SlowQueryThreshold = c.Repository.SlowQueryThreshold
	opts.Logger = logger
	return opts
}

func (c Config) logLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
