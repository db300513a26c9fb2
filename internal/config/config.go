package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the API process configuration, loaded from the environment.
type Config struct {
	Addr     string `env:"CREDENCE_ADDR" envDefault:":8080"`
	LogLevel string `env:"CREDENCE_LOG_LEVEL" envDefault:"info"`

	PostgresDSN string `env:"CREDENCE_PG_DSN,required"`

	AuthSecret string        `env:"CREDENCE_AUTH_SECRET,required"`
	AuthIssuer string        `env:"CREDENCE_AUTH_ISSUER" envDefault:"credence"`
	AccessTTL  time.Duration `env:"CREDENCE_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL time.Duration `env:"CREDENCE_REFRESH_TTL" envDefault:"336h"`

	MaxBodyBytes   int64   `env:"CREDENCE_MAX_BODY_BYTES" envDefault:"1048576"`
	RateLimitRPS   float64 `env:"CREDENCE_RATE_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"CREDENCE_RATE_BURST" envDefault:"40"`

	CookieSecure bool `env:"CREDENCE_COOKIE_SECURE" envDefault:"true"`

	ShutdownTimeout time.Duration `env:"CREDENCE_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses and validates the process configuration.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if len(c.AuthSecret) < 32 {
		return fmt.Errorf("CREDENCE_AUTH_SECRET must be at least 32 bytes")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return fmt.Errorf("token lifetimes must be greater than zero")
	}
	if c.AccessTTL >= c.RefreshTTL {
		return fmt.Errorf("access ttl %s must be shorter than refresh ttl %s", c.AccessTTL, c.RefreshTTL)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("CREDENCE_MAX_BODY_BYTES must be greater than zero")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit must be greater than zero")
	}
	return nil
}
