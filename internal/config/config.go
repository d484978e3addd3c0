// Package config defines the application configuration, its defaults, and
// the viper plumbing that loads it from file, environment, and flags.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Replay  ReplayConfig  `mapstructure:"replay" yaml:"replay"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the browser instance replays run in.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	UserAgent       string   `mapstructure:"user_agent" yaml:"user_agent"`
	Args            []string `mapstructure:"args" yaml:"args"`
}

// ReplayConfig tunes replay pacing and the element resolution retry policy.
type ReplayConfig struct {
	StepTimeout     time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
	StepDelay       time.Duration `mapstructure:"step_delay" yaml:"step_delay"`
	StopOnError     bool          `mapstructure:"stop_on_error" yaml:"stop_on_error"`
	Highlight       bool          `mapstructure:"highlight" yaml:"highlight"`
	ResolveAttempts int           `mapstructure:"resolve_attempts" yaml:"resolve_attempts"`
	ResolveBackoff  time.Duration `mapstructure:"resolve_backoff" yaml:"resolve_backoff"`
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	TypeKeyDelay    time.Duration `mapstructure:"type_key_delay" yaml:"type_key_delay"`
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults only.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "replay-cli")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)

	// -- Replay --
	v.SetDefault("replay.step_timeout", "10s")
	v.SetDefault("replay.step_delay", "250ms")
	v.SetDefault("replay.stop_on_error", false)
	v.SetDefault("replay.highlight", false)
	v.SetDefault("replay.resolve_attempts", 3)
	v.SetDefault("replay.resolve_backoff", "500ms")
	v.SetDefault("replay.poll_interval", "100ms")
	v.SetDefault("replay.type_key_delay", "20ms")
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if c.Replay.StepTimeout <= 0 {
		return fmt.Errorf("replay.step_timeout must be a positive duration")
	}
	if c.Replay.StepDelay < 0 {
		return fmt.Errorf("replay.step_delay must not be negative")
	}
	if c.Replay.ResolveAttempts <= 0 {
		return fmt.Errorf("replay.resolve_attempts must be a positive integer")
	}
	if c.Replay.ResolveBackoff < 0 {
		return fmt.Errorf("replay.resolve_backoff must not be negative")
	}
	if c.Replay.PollInterval <= 0 {
		return fmt.Errorf("replay.poll_interval must be a positive duration")
	}
	return nil
}
