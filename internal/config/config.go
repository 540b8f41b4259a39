// Package config loads service configuration from the environment.
// All settings use a CONFIG_ prefix; a .env file in the working
// directory is honored when present.
package config

import (
	"context"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/trompamusic/solidauth/backend"
	"github.com/trompamusic/solidauth/backend/dbbackend"
	"github.com/trompamusic/solidauth/backend/redisbackend"
)

// Backend selector values.
const (
	BackendDB     = "db"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config is the service configuration.
type Config struct {
	// BaseURL is the public URL this service is reachable at, used to
	// build client id document URLs. The service normally runs behind
	// a reverse proxy, so this is not derived from Listen.
	BaseURL string `env:"CONFIG_BASE_URL"`
	// RedirectURL is the registered OAuth callback, normally
	// BaseURL + "/redirect".
	RedirectURL string `env:"CONFIG_REDIRECT_URL"`
	// Backend selects the store: db, redis or memory.
	Backend     string `env:"CONFIG_BACKEND" envDefault:"db"`
	RedisURL    string `env:"CONFIG_REDIS_URL"`
	DatabaseURL string `env:"CONFIG_DATABASE_URL"`
	// SecretKey signs the browser session cookie.
	SecretKey string `env:"CONFIG_SECRET_KEY"`
	Listen    string `env:"CONFIG_LISTEN" envDefault:":5000"`
	// AlwaysUseClientURL makes the web flow identify with a client id
	// document URL even when the provider supports dynamic
	// registration.
	AlwaysUseClientURL bool   `env:"CONFIG_ALWAYS_USE_CLIENT_URL" envDefault:"false"`
	LogLevel           string `env:"CONFIG_LOG_LEVEL" envDefault:"info"`
	ClientName         string `env:"CONFIG_CLIENT_NAME" envDefault:"solidauth"`
}

// Load reads a .env file if one exists, then parses the environment.
func Load() (*Config, error) {
	const op = "config.Load"
	// Missing .env is fine, the environment alone is enough.
	_ = godotenv.Load()
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// Validate checks the settings every command needs. Web-only settings
// are checked separately by ValidateWeb.
func (c *Config) Validate() error {
	var result *multierror.Error
	switch c.Backend {
	case BackendDB:
		if c.DatabaseURL == "" {
			result = multierror.Append(result, fmt.Errorf("CONFIG_DATABASE_URL is required when CONFIG_BACKEND=db"))
		}
	case BackendRedis:
		if c.RedisURL == "" {
			result = multierror.Append(result, fmt.Errorf("CONFIG_REDIS_URL is required when CONFIG_BACKEND=redis"))
		}
	case BackendMemory:
	default:
		result = multierror.Append(result, fmt.Errorf("CONFIG_BACKEND must be one of db, redis or memory, got %q", c.Backend))
	}
	return result.ErrorOrNil()
}

// ValidateWeb checks the settings the web process needs on top of
// Validate.
func (c *Config) ValidateWeb() error {
	var result *multierror.Error
	if c.BaseURL == "" {
		result = multierror.Append(result, fmt.Errorf("CONFIG_BASE_URL is required"))
	}
	if c.RedirectURL == "" {
		result = multierror.Append(result, fmt.Errorf("CONFIG_REDIRECT_URL is required"))
	}
	if c.SecretKey == "" {
		result = multierror.Append(result, fmt.Errorf("CONFIG_SECRET_KEY is required"))
	}
	return result.ErrorOrNil()
}

// Logger builds the process logger at the configured level.
func (c *Config) Logger(name string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:  name,
		Level: hclog.LevelFromString(c.LogLevel),
	})
}

// NewBackend creates the configured storage backend.
func (c *Config) NewBackend(ctx context.Context) (backend.Backend, error) {
	const op = "config.(Config).NewBackend"
	switch c.Backend {
	case BackendDB:
		b, err := dbbackend.Open(ctx, c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return b, nil
	case BackendRedis:
		b, err := redisbackend.NewFromURL(c.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return b, nil
	case BackendMemory:
		return backend.NewMemory(), nil
	default:
		return nil, fmt.Errorf("%s: unknown backend %q", op, c.Backend)
	}
}
