// Package config loads engine configuration from YAML files with
// defaults applied for anything left unset.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config is the root engine configuration.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	Logging LoggingConfig `mapstructure:"logging"`
	Events  EventsConfig  `mapstructure:"events"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// EngineConfig controls executor behavior.
type EngineConfig struct {
	// MaxParallel bounds concurrently running steps per execution.
	MaxParallel int `mapstructure:"max_parallel"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EventsConfig controls the in-process event bus.
type EventsConfig struct {
	// HistoryLimit bounds how many past events the bus retains.
	HistoryLimit int `mapstructure:"history_limit"`
}

// TracingConfig controls OpenTelemetry span emission.
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxParallel: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Events: EventsConfig{
			HistoryLimit: 100,
		},
		Tracing: TracingConfig{
			Enabled: false,
		},
	}
}

// Load reads configuration from the given YAML file. Missing keys fall
// back to defaults; an unreadable or invalid file is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadWithDefaults loads configuration from path, returning the default
// configuration when the file does not exist.
func LoadWithDefaults(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	return Load(path)
}

func setDefaults(v *viper.Viper) {
	defaults := DefaultConfig()
	v.SetDefault("engine.max_parallel", defaults.Engine.MaxParallel)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("events.history_limit", defaults.Events.HistoryLimit)
	v.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
}

// Validate checks field values that defaults cannot repair.
func (c *Config) Validate() error {
	if c.Engine.MaxParallel < 1 {
		return fmt.Errorf("engine.max_parallel must be at least 1, got %d", c.Engine.MaxParallel)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	if c.Events.HistoryLimit < 0 {
		return fmt.Errorf("events.history_limit must not be negative, got %d", c.Events.HistoryLimit)
	}
	return nil
}
