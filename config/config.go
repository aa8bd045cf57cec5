package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable read by Load.
const Prefix = "OUTCOMES"

// Config is built once at startup and handed to the components that need it.
//
//   - OUTCOMES_DATABASE_URL
//   - OUTCOMES_HTTP_ADDR
//   - OUTCOMES_LOG_MODE
//   - OUTCOMES_DB_MAX_CONNS
//   - OUTCOMES_REDIS_ADDR
//   - OUTCOMES_REDIS_STREAM
//   - OUTCOMES_FORWARDER_INTERVAL
//   - OUTCOMES_FORWARDER_BATCH
//   - OUTCOMES_FORWARDER_MAX_ATTEMPTS
//   - OUTCOMES_TOKEN_SECRET
type Config struct {
	DatabaseURL string `required:"true" split_words:"true"`
	HTTPAddr    string `default:":8080" split_words:"true"`
	LogMode     string `default:"production" split_words:"true"`
	DBMaxConns  int32  `default:"16" envconfig:"DB_MAX_CONNS"`

	RedisAddr   string `split_words:"true"`
	RedisStream string `default:"outcomes.changes" split_words:"true"`

	ForwarderInterval    time.Duration `default:"2s" split_words:"true"`
	ForwarderBatch       int           `default:"25" split_words:"true"`
	ForwarderMaxAttempts int           `default:"10" split_words:"true"`

	TokenSecret string `split_words:"true"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values envconfig accepts but the service cannot run with.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL must be set")
	}
	if c.DBMaxConns <= 0 {
		return fmt.Errorf("config: db max conns must be positive")
	}
	if c.ForwarderInterval <= 0 {
		return fmt.Errorf("config: forwarder interval must be positive")
	}
	if c.ForwarderBatch <= 0 || c.ForwarderBatch > 500 {
		return fmt.Errorf("config: forwarder batch must be in (0, 500]")
	}
	if c.ForwarderMaxAttempts <= 0 {
		return fmt.Errorf("config: forwarder max attempts must be positive")
	}
	return nil
}

// ForwarderEnabled reports whether change messages should be pushed to Redis.
func (c Config) ForwarderEnabled() bool {
	return c.RedisAddr != ""
}

// AuthEnabled reports whether resource routes require a bearer token.
func (c Config) AuthEnabled() bool {
	return c.TokenSecret != ""
}
