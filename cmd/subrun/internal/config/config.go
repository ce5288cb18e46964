// Package config manages subrun configuration
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the subrun configuration
type Config struct {
	Run     RunConfig     `mapstructure:"run"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	History HistoryConfig `mapstructure:"history"`
	Trace   TraceConfig   `mapstructure:"trace"`
}

// RunConfig holds defaults for child processes
type RunConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	KillGrace time.Duration `mapstructure:"kill_grace"`
}

// LogConfig holds structured logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig holds metrics export configuration
type MetricsConfig struct {
	// Textfile is written in node exporter textfile format after each run
	Textfile  string `mapstructure:"textfile"`
	Namespace string `mapstructure:"namespace"`
}

// HistoryConfig holds run ledger configuration
type HistoryConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Path      string        `mapstructure:"path"`
	Retention time.Duration `mapstructure:"retention"`
}

// TraceConfig holds OpenTelemetry tracing configuration
type TraceConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Output is the file spans are written to; empty means stderr
	Output string `mapstructure:"output"`
}

// Dir returns the per-user subrun directory
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".subrun")
}

// New returns a viper instance with defaults, config paths and environment
// overrides set up. Callers bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(Dir())
	v.AddConfigPath(".")

	// Environment variable overrides (SUBRUN_LOG_LEVEL, ...)
	v.SetEnvPrefix("SUBRUN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("run.timeout", time.Duration(0))
	v.SetDefault("run.kill_grace", 5*time.Second)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("metrics.namespace", "subrun")
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", filepath.Join(Dir(), "history.db"))
	v.SetDefault("history.retention", 30*24*time.Hour)
	v.SetDefault("trace.enabled", false)
	v.SetDefault("trace.output", "")

	return v
}

// Load reads configuration into cfg. An explicit configFile must exist; the
// default locations are optional.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	// Read config file (ignore if not found - use defaults)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Run.Timeout < 0 {
		return fmt.Errorf("run.timeout must not be negative, got: %s", c.Run.Timeout)
	}
	if c.Run.KillGrace < 0 {
		return fmt.Errorf("run.kill_grace must not be negative, got: %s", c.Run.KillGrace)
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log.format: %s (must be text or json)", c.Log.Format)
	}
	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history.path is required when history is enabled")
	}
	return nil
}

func (c LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return level, fmt.Errorf("invalid log.level: %s", c.Level)
	}
	return level, nil
}

// Logger builds the structured logger described by c
func (c LogConfig) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := c.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
