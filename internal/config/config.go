// Package config loads the gapstat and server configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"gapup-lab/internal/decision"
	"gapup-lab/internal/logging"
)

// Environment variables that override file values.
const (
	EnvAPIKey       = "EODHD_API_KEY"
	EnvCacheDSN     = "GAPUP_CACHE_DSN"
	EnvCacheBackend = "GAPUP_CACHE_BACKEND"
	EnvLogLevel     = "GAPUP_LOG_LEVEL"
)

// Cache backends.
const (
	BackendSQLite     = "sqlite"
	BackendBadger     = "badger"
	BackendPostgres   = "postgres"
	BackendClickHouse = "clickhouse"
	BackendRedis      = "redis"
	BackendMemory     = "memory"
)

// Config is the full application configuration.
type Config struct {
	Symbol     string           `yaml:"symbol" toml:"symbol" default:"QQQ" validate:"required"`
	Years      int              `yaml:"years" toml:"years" default:"5" validate:"gt=0"`
	Analysis   AnalysisConfig   `yaml:"analysis" toml:"analysis"`
	DataSource DataSourceConfig `yaml:"data_source" toml:"data_source"`
	Cache      CacheConfig      `yaml:"cache" toml:"cache"`
	Output     OutputConfig     `yaml:"output" toml:"output"`
	Logging    logging.Config   `yaml:"logging" toml:"logging"`
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Metrics    MetricsConfig    `yaml:"metrics" toml:"metrics"`
}

// AnalysisConfig holds estimator and classifier settings.
type AnalysisConfig struct {
	Confidence       float64        `yaml:"confidence" toml:"confidence" default:"0.95" validate:"gt=0,lt=1"`
	MinSampleSize    int            `yaml:"min_sample_size" toml:"min_sample_size" default:"10" validate:"gt=0"`
	DefaultThreshold float64        `yaml:"default_threshold" toml:"default_threshold" default:"-3.0" validate:"lt=0"`
	Rules            decision.Rules `yaml:"rules" toml:"rules"`
}

// DataSourceConfig selects and tunes the market data provider.
type DataSourceConfig struct {
	Provider   string   `yaml:"provider" toml:"provider" default:"yahoo" validate:"oneof=yahoo eodhd"`
	BaseURL    string   `yaml:"base_url" toml:"base_url" validate:"omitempty,url"`
	APIKey     string   `yaml:"api_key" toml:"api_key"`
	Timeout    Duration `yaml:"timeout" toml:"timeout"`
	MaxRetries int      `yaml:"max_retries" toml:"max_retries" default:"3" validate:"gte=0"`
	RateLimit  float64  `yaml:"rate_limit" toml:"rate_limit" default:"5" validate:"gte=0"`
	Adjusted   *bool    `yaml:"adjusted" toml:"adjusted" default:"true"`
}

// SetDefaults implements defaults.Setter.
func (c *DataSourceConfig) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = Duration(30 * time.Second)
	}
}

// CacheConfig selects the local bar cache.
type CacheConfig struct {
	Backend string      `yaml:"backend" toml:"backend" default:"sqlite" validate:"oneof=sqlite badger postgres clickhouse redis memory"`
	Path    string      `yaml:"path" toml:"path" default:"market_data.db"` // sqlite file or badger directory
	DSN     string      `yaml:"dsn" toml:"dsn"`                            // postgres or clickhouse
	MaxAge  Duration    `yaml:"max_age" toml:"max_age"`                    // 0 keeps cached data forever
	Redis   RedisConfig `yaml:"redis" toml:"redis"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr" default:"localhost:6379"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db" validate:"gte=0"`
	Prefix   string `yaml:"prefix" toml:"prefix" default:"gapup"`
}

// OutputConfig controls exports.
type OutputConfig struct {
	Dir    string `yaml:"dir" toml:"dir" default:"."`
	Format string `yaml:"format" toml:"format" default:"csv" validate:"oneof=csv markdown md"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string   `yaml:"addr" toml:"addr" default:":8080"`
	ReadTimeout     Duration `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout" toml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// SetDefaults implements defaults.Setter.
func (c *ServerConfig) SetDefaults() {
	if c.ReadTimeout == 0 {
		c.ReadTimeout = Duration(15 * time.Second)
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = Duration(60 * time.Second)
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = Duration(10 * time.Second)
	}
}

// MetricsConfig configures metric output.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" toml:"textfile"` // node_exporter textfile path, empty disables
}

var validate = validator.New()

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	if err := defaults.Set(c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return c
}

// Load reads a YAML or TOML file chosen by extension, applies defaults and
// environment overrides, and validates the result. An empty path yields
// the defaults plus environment overrides.
func Load(path string) (*Config, error) {
	c := &Config{}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(b, c)
		case ".toml":
			err = toml.Unmarshal(b, c)
		default:
			return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
		}
		if err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := defaults.Set(c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides values from environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.DataSource.APIKey = v
	}
	if v := os.Getenv(EnvCacheDSN); v != "" {
		c.Cache.DSN = v
	}
	if v := os.Getenv(EnvCacheBackend); v != "" {
		c.Cache.Backend = strings.ToLower(v)
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	return nil
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	switch c.Cache.Backend {
	case BackendPostgres, BackendClickHouse:
		if c.Cache.DSN == "" {
			return fmt.Errorf("cache.dsn is required for the %s backend", c.Cache.Backend)
		}
	case BackendSQLite, BackendBadger:
		if c.Cache.Path == "" {
			return fmt.Errorf("cache.path is required for the %s backend", c.Cache.Backend)
		}
	}
	return nil
}

// IsAdjusted reports whether prices should be split/dividend adjusted.
func (c DataSourceConfig) IsAdjusted() bool {
	return c.Adjusted == nil || *c.Adjusted
}

// Duration is a time.Duration read from strings such as "30s" or "24h".
type Duration time.Duration

// Std returns the standard library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String formats the duration.
func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. A bare integer is
// read as seconds.
func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// LoadEnvFile sets variables from a dotenv-style file. Variables already
// present in the environment win. A missing file is not an error.
func LoadEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read env file: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}
