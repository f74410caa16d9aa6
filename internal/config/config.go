package config

import (
	"time"

	"freightgate/internal/health"
	"freightgate/internal/management"
	"freightgate/internal/registry"
	"freightgate/internal/telemetry"
	tlsutil "freightgate/pkg/tls"
)

// Config holds gateway configuration
type Config struct {
	Gateway Gateway `yaml:"gateway"`
}

// Gateway configuration
type Gateway struct {
	HTTP           HTTP              `yaml:"http"`
	Registry       Registry          `yaml:"registry"`
	Storage        Storage           `yaml:"storage"`
	CircuitBreaker CircuitBreaker    `yaml:"circuitBreaker"`
	Middleware     Middleware        `yaml:"middleware"`
	Health         health.Config     `yaml:"health"`
	Management     management.Config `yaml:"management"`
	Telemetry      telemetry.Config  `yaml:"telemetry"`
	Logging        Logging           `yaml:"logging"`
}

// HTTP configures the inbound listener
type HTTP struct {
	Host           string          `yaml:"host"`
	Port           int             `yaml:"port"`
	ReadTimeout    int             `yaml:"readTimeout"`  // seconds
	WriteTimeout   int             `yaml:"writeTimeout"` // seconds
	MaxRequestSize int64           `yaml:"maxRequestSize"`
	TLS            *tlsutil.Config `yaml:"tls,omitempty"`
}

// Registry maps logical service names to backend endpoints
type Registry struct {
	Services map[string]registry.Endpoint `yaml:"services"`
}

// Storage selects and configures the shared KV backend and the route
// database
type Storage struct {
	// Backend is the KV store implementation: redis | memory
	Backend string `yaml:"backend"`
	Redis   Redis  `yaml:"redis"`
	SQLite  SQLite `yaml:"sqlite"`
}

// Redis configures the shared KV store
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SQLite configures the route database
type SQLite struct {
	DSN string `yaml:"dsn"`
}

// CircuitBreaker configures the per-service breakers
type CircuitBreaker struct {
	FailureThreshold int `yaml:"failureThreshold"`
	RecoveryTimeout  int `yaml:"recoveryTimeout"` // seconds
	HalfOpenMaxCalls int `yaml:"halfOpenMaxCalls"`
	SuccessThreshold int `yaml:"successThreshold"`
	TTL              int `yaml:"ttl"` // seconds
}

// Middleware configures the pipeline stages
type Middleware struct {
	RateLimit  RateLimit  `yaml:"rateLimit"`
	Auth       Auth       `yaml:"auth"`
	Validation Validation `yaml:"validation"`
}

// RateLimit configures the fixed-window rate limiter
type RateLimit struct {
	Requests int64 `yaml:"requests"`
	Window   int   `yaml:"window"` // seconds
}

// Auth configures inbound authentication
type Auth struct {
	JWTSecret string `yaml:"jwtSecret"`
}

// Validation configures JSON body validation
type Validation struct {
	MaxBodyBytes int64 `yaml:"maxBodyBytes"`
}

// Logging configuration
type Logging struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | text
}

// ReadTimeoutDuration returns the HTTP read timeout
func (h *HTTP) ReadTimeoutDuration() time.Duration {
	return time.Duration(h.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the HTTP write timeout
func (h *HTTP) WriteTimeoutDuration() time.Duration {
	return time.Duration(h.WriteTimeout) * time.Second
}
