// Package tls builds crypto/tls server configurations from the
// gateway's declarative config.
package tls

import (
	"crypto/tls"
	"fmt"
)

// Config represents TLS configuration for the inbound listener
type Config struct {
	Enabled    bool   `yaml:"enabled"`
	CertFile   string `yaml:"certFile"`
	KeyFile    string `yaml:"keyFile"`
	MinVersion string `yaml:"minVersion"`
	MaxVersion string `yaml:"maxVersion"`
}

// ParseTLSVersion maps a version string to the crypto/tls constant,
// defaulting to TLS 1.2 for unknown input
func ParseTLSVersion(version string) uint16 {
	switch version {
	case "1.0":
		return tls.VersionTLS10
	case "1.1":
		return tls.VersionTLS11
	case "1.2":
		return tls.VersionTLS12
	case "1.3":
		return tls.VersionTLS13
	default:
		return tls.VersionTLS12
	}
}

// Build creates a *tls.Config from the declarative config. Returns nil
// when TLS is disabled.
func (c *Config) Build() (*tls.Config, error) {
	if c == nil || !c.Enabled {
		return nil, nil
	}
	if c.CertFile == "" || c.KeyFile == "" {
		return nil, fmt.Errorf("tls enabled but certFile/keyFile not set")
	}

	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load key pair: %w", err)
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   ParseTLSVersion(c.MinVersion),
	}
	if c.MaxVersion != "" {
		cfg.MaxVersion = ParseTLSVersion(c.MaxVersion)
	}
	return cfg, nil
}
