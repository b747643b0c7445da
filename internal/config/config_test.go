package config

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.SetEnvPrefix(EnvPrefix)
	viper.AutomaticEnv()
	SetDefaults()
}

func TestDefaults(t *testing.T) {
	setup(t)

	cfg := New()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "http://127.0.0.1:5000", cfg.PipelineURL)
	assert.Equal(t, 60*time.Second, cfg.PipelineTimeout)
	assert.Equal(t, 90*time.Second, cfg.RequestTimeout)
	assert.Greater(t, cfg.RequestTimeout, cfg.PipelineTimeout, "the client must outwait the gateway")
	assert.Equal(t, int64(32<<20), cfg.MaxSlotBytes)
	assert.Equal(t, 5, cfg.RequestsPerSec)
	assert.Equal(t, 30*time.Second, cfg.ReadyTimeout)
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("YIELD_PIPELINE_URL", "http://pipeline:5000")
	t.Setenv("YIELD_PIPELINE_TIMEOUT", "2m")
	t.Setenv("YIELD_MAX_SLOT_BYTES", "1024")
	t.Setenv("YIELD_LOG_LEVEL", "debug")
	setup(t)

	cfg := New()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://pipeline:5000", cfg.PipelineURL)
	assert.Equal(t, 2*time.Minute, cfg.PipelineTimeout)
	assert.Equal(t, int64(1024), cfg.MaxSlotBytes)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			ListenAddr:      ":8080",
			PipelineURL:     "http://127.0.0.1:5000",
			PipelineTimeout: time.Minute,
			RequestTimeout:  time.Second,
			MaxSlotBytes:    1,
			RequestsPerSec:  1,
			LogLevel:        "info",
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"bad scheme", func(c *Config) { c.PipelineURL = "ftp://host" }, "invalid pipeline URL"},
		{"no host", func(c *Config) { c.PipelineURL = "http://" }, "invalid pipeline URL"},
		{"zero pipeline timeout", func(c *Config) { c.PipelineTimeout = 0 }, "pipeline timeout"},
		{"zero request timeout", func(c *Config) { c.RequestTimeout = 0 }, "request timeout"},
		{"negative ready timeout", func(c *Config) { c.ReadyTimeout = -time.Second }, "ready timeout"},
		{"zero slot size", func(c *Config) { c.MaxSlotBytes = 0 }, "max slot bytes"},
		{"zero rate", func(c *Config) { c.RequestsPerSec = 0 }, "requests per second"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "invalid log level"},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
