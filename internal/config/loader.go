package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"freightgate/pkg/errors"
)

// Loader loads configuration from file
type Loader struct {
	path       string
	envEnabled bool
}

// NewLoader creates a config loader
func NewLoader(path string) *Loader {
	return &Loader{
		path:       path,
		envEnabled: true, // Enable env vars by default
	}
}

// WithEnvVars enables or disables environment variable loading
func (l *Loader) WithEnvVars(enabled bool) *Loader {
	l.envEnabled = enabled
	return l
}

// Load loads the configuration
func (l *Loader) Load() (*Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, errors.NewError(errors.ErrorTypeInternal, "failed to read config file").WithCause(err)
	}

	cfg, err := LoadDefault()
	if err != nil {
		return nil, errors.NewError(errors.ErrorTypeInternal, "failed to load default config").WithCause(err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.NewError(errors.ErrorTypeInternal, "failed to parse config").WithCause(err)
	}

	if l.envEnabled {
		if err := LoadEnv(cfg); err != nil {
			return nil, errors.NewError(errors.ErrorTypeInternal, "failed to load env vars").WithCause(err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, errors.NewError(errors.ErrorTypeBadRequest, "invalid configuration").WithCause(err)
	}

	return cfg, nil
}

// Load is a convenience wrapper for one-shot loading
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Validate checks the configuration for structural problems
func Validate(cfg *Config) error {
	gw := &cfg.Gateway

	if gw.HTTP.Port <= 0 || gw.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", gw.HTTP.Port)
	}

	switch gw.Storage.Backend {
	case "redis":
		if gw.Storage.Redis.Addr == "" {
			return fmt.Errorf("redis backend selected but no addr configured")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage backend: %s", gw.Storage.Backend)
	}

	if gw.Storage.SQLite.DSN == "" {
		return fmt.Errorf("sqlite DSN is required")
	}

	for name, endpoint := range gw.Registry.Services {
		if endpoint.BaseURL == "" {
			return fmt.Errorf("service %s has no url", name)
		}
	}

	if gw.Middleware.RateLimit.Requests < 0 {
		return fmt.Errorf("rate limit requests must be non-negative")
	}

	return nil
}
