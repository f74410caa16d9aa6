package http

import (
	"time"

	tlsutil "freightgate/pkg/tls"
)

// Config holds HTTP adapter configuration
type Config struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestSize int64 // Maximum request body size in bytes (0 = no limit)
	TLS            *tlsutil.Config
}
