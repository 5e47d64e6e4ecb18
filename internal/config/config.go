// Package config loads lexcache settings from a YAML file and LEXCACHE_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix = "LEXCACHE"

	keyDatabase      = "database"
	keySchema        = "schema"
	keyLogLevel      = "log_level"
	keyLogFormat     = "log_format"
	keyMaxOwnerDepth = "max_owner_depth"
	keyMaxLoadDepth  = "max_load_depth"
	keyOTLPEndpoint  = "telemetry.endpoint"
	keyOTLPInsecure  = "telemetry.insecure"
	keyServiceName   = "telemetry.service_name"
)

// Config is the resolved configuration of one lexcache process.
type Config struct {
	// Database is the SQLite path; ":memory:" for a throwaway store.
	Database string `mapstructure:"database"`

	// Schema is a CUE file or directory. Empty means the embedded model.
	Schema string `mapstructure:"schema"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	MaxOwnerDepth int `mapstructure:"max_owner_depth"`
	MaxLoadDepth  int `mapstructure:"max_load_depth"`

	// Bulk lists properties that start in bulk mode.
	Bulk []BulkProperty `mapstructure:"bulk"`

	Telemetry Telemetry `mapstructure:"telemetry"`
}

// BulkProperty names a (class, field) pair to load in bulk.
type BulkProperty struct {
	Class string `mapstructure:"class"`
	Field string `mapstructure:"field"`
}

// Telemetry configures the OTLP trace exporter. An empty Endpoint disables
// export.
type Telemetry struct {
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Database:      ":memory:",
		LogLevel:      "info",
		LogFormat:     "text",
		MaxOwnerDepth: 64,
		MaxLoadDepth:  256,
		Telemetry:     Telemetry{ServiceName: "lexcache"},
	}
}

func newViper() *viper.Viper {
	d := Default()
	v := viper.New()
	v.SetDefault(keyDatabase, d.Database)
	v.SetDefault(keySchema, d.Schema)
	v.SetDefault(keyLogLevel, d.LogLevel)
	v.SetDefault(keyLogFormat, d.LogFormat)
	v.SetDefault(keyMaxOwnerDepth, d.MaxOwnerDepth)
	v.SetDefault(keyMaxLoadDepth, d.MaxLoadDepth)
	v.SetDefault(keyOTLPEndpoint, d.Telemetry.Endpoint)
	v.SetDefault(keyOTLPInsecure, d.Telemetry.Insecure)
	v.SetDefault(keyServiceName, d.Telemetry.ServiceName)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (if non-empty) over the defaults, then applies
// environment overrides such as LEXCACHE_DATABASE and
// LEXCACHE_TELEMETRY_ENDPOINT.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	if c.MaxOwnerDepth <= 0 {
		errs = append(errs, fmt.Errorf("max_owner_depth must be positive, got %d", c.MaxOwnerDepth))
	}
	if c.MaxLoadDepth <= 0 {
		errs = append(errs, fmt.Errorf("max_load_depth must be positive, got %d", c.MaxLoadDepth))
	}
	for i, b := range c.Bulk {
		if b.Class == "" || b.Field == "" {
			errs = append(errs, fmt.Errorf("bulk[%d]: class and field are required", i))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}
