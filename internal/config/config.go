package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every key when read from the environment,
// so pipeline_url is YIELD_PIPELINE_URL
const EnvPrefix = "YIELD"

// Config holds all application configuration
type Config struct {
	ListenAddr      string
	PipelineURL     string
	PipelineTimeout time.Duration
	RequestTimeout  time.Duration
	MaxSlotBytes    int64
	RequestsPerSec  int
	ReadyTimeout    time.Duration
	LogLevel        string
}

// Init loads .env if present and registers the environment binding and defaults
func Init() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env file not found, relying on actual environment variables")
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.AutomaticEnv()
	SetDefaults()
}

// SetDefaults registers the built-in value of every key
func SetDefaults() {
	viper.SetDefault("listen_addr", ":8080")
	viper.SetDefault("pipeline_url", "http://127.0.0.1:5000")
	viper.SetDefault("pipeline_timeout", "60s")
	viper.SetDefault("request_timeout", "90s")
	viper.SetDefault("max_slot_bytes", 32<<20)
	viper.SetDefault("requests_per_sec", 5)
	viper.SetDefault("ready_timeout", "30s")
	viper.SetDefault("log_level", "info")
}

// New reads the current viper values into a Config
func New() *Config {
	return &Config{
		ListenAddr:      viper.GetString("listen_addr"),
		PipelineURL:     viper.GetString("pipeline_url"),
		PipelineTimeout: viper.GetDuration("pipeline_timeout"),
		RequestTimeout:  viper.GetDuration("request_timeout"),
		MaxSlotBytes:    viper.GetInt64("max_slot_bytes"),
		RequestsPerSec:  viper.GetInt("requests_per_sec"),
		ReadyTimeout:    viper.GetDuration("ready_timeout"),
		LogLevel:        viper.GetString("log_level"),
	}
}

// Validate reports the first invalid value, if any
func (c *Config) Validate() error {
	u, err := url.Parse(c.PipelineURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid pipeline URL: %q (want http(s)://host[:port])", c.PipelineURL)
	}

	if c.PipelineTimeout <= 0 {
		return fmt.Errorf("pipeline timeout must be positive, got %s", c.PipelineTimeout)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.ReadyTimeout < 0 {
		return fmt.Errorf("ready timeout must not be negative, got %s", c.ReadyTimeout)
	}
	if c.MaxSlotBytes <= 0 {
		return fmt.Errorf("max slot bytes must be positive, got %d", c.MaxSlotBytes)
	}
	if c.RequestsPerSec <= 0 {
		return fmt.Errorf("requests per second must be positive, got %d", c.RequestsPerSec)
	}

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	return nil
}

// Level returns the parsed log level, falling back to info
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
