// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds everything cmd/api needs to wire the service. An empty
// DatabaseDSN selects the in-memory stores; an empty AMQPURL disables the
// external event queue.
type Config struct {
	Environment string `env:"SITEOPS_ENV" envDefault:"development"`

	HTTPAddr     string        `env:"SITEOPS_HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"SITEOPS_HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout time.Duration `env:"SITEOPS_HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"SITEOPS_HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	MaxBodyBytes int64         `env:"SITEOPS_HTTP_MAX_BODY_BYTES" envDefault:"1048576"`

	RateLimitRPS   float64 `env:"SITEOPS_RATE_LIMIT_RPS" envDefault:"50"`
	RateLimitBurst int     `env:"SITEOPS_RATE_LIMIT_BURST" envDefault:"100"`

	DatabaseDSN string `env:"SITEOPS_DB_DSN"`

	TokenTTL time.Duration `env:"SITEOPS_TOKEN_TTL" envDefault:"12h"`

	AMQPURL    string `env:"SITEOPS_AMQP_URL"`
	EventQueue string `env:"SITEOPS_EVENT_QUEUE" envDefault:"report_events"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// IsProduction reports whether the service runs with production hardening.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}
