package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 10*time.Second, cfg.Replay.StepTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Replay.StepDelay)
	assert.Equal(t, 3, cfg.Replay.ResolveAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Replay.ResolveBackoff)
	assert.Equal(t, 100*time.Millisecond, cfg.Replay.PollInterval)
	assert.False(t, cfg.Replay.StopOnError)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(*Config) {},
		},
		{
			name:    "zero step timeout",
			mutate:  func(c *Config) { c.Replay.StepTimeout = 0 },
			wantErr: "replay.step_timeout",
		},
		{
			name:    "negative step delay",
			mutate:  func(c *Config) { c.Replay.StepDelay = -time.Second },
			wantErr: "replay.step_delay",
		},
		{
			name:    "zero resolve attempts",
			mutate:  func(c *Config) { c.Replay.ResolveAttempts = 0 },
			wantErr: "replay.resolve_attempts",
		},
		{
			name:    "negative backoff",
			mutate:  func(c *Config) { c.Replay.ResolveBackoff = -time.Millisecond },
			wantErr: "replay.resolve_backoff",
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.Replay.PollInterval = 0 },
			wantErr: "replay.poll_interval",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

// -- Viper Loading Tests --

func TestNewConfigFromViper(t *testing.T) {
	yamlConfig := []byte(`
logger:
  level: debug
  format: json
browser:
  headless: false
  args:
    - "--window-size=1280,800"
replay:
  step_timeout: 30s
  stop_on_error: true
  resolve_attempts: 5
`)

	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	// File values override defaults.
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, []string{"--window-size=1280,800"}, cfg.Browser.Args)
	assert.Equal(t, 30*time.Second, cfg.Replay.StepTimeout)
	assert.True(t, cfg.Replay.StopOnError)
	assert.Equal(t, 5, cfg.Replay.ResolveAttempts)

	// Untouched values keep their defaults.
	assert.Equal(t, 250*time.Millisecond, cfg.Replay.StepDelay)
	assert.Equal(t, 100*time.Millisecond, cfg.Replay.PollInterval)
}

func TestNewConfigFromViperRejectsInvalid(t *testing.T) {
	yamlConfig := []byte(`
replay:
  resolve_attempts: 0
`)

	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

	_, err := NewConfigFromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve_attempts")
}
