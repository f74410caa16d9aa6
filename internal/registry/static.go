package registry

import (
	"log/slog"
	"sync"

	"freightgate/internal/core"
	"freightgate/pkg/errors"
)

// Endpoint is a configured backend service endpoint
type Endpoint struct {
	BaseURL string `yaml:"baseUrl"`
	Token   string `yaml:"token"`
	APIKey  string `yaml:"apiKey"`
}

// Static resolves service names from configuration. It is the only
// registry the gateway needs: backends are long-lived logistics
// services with fixed base URLs and credentials.
type Static struct {
	mu       sync.RWMutex
	services map[string]core.Service
	logger   *slog.Logger
}

// NewStatic creates a static registry from configured endpoints
func NewStatic(endpoints map[string]Endpoint, logger *slog.Logger) *Static {
	services := make(map[string]core.Service, len(endpoints))
	for name, ep := range endpoints {
		services[name] = core.Service{
			Name:    name,
			BaseURL: ep.BaseURL,
			Token:   ep.Token,
			APIKey:  ep.APIKey,
		}
	}
	return &Static{
		services: services,
		logger:   logger.With("component", "registry"),
	}
}

// Resolve returns the endpoint for a logical service name
func (r *Static) Resolve(name string) (*core.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	svc, ok := r.services[name]
	if !ok {
		return nil, errors.NewError(errors.ErrorTypeNotFound, "service not registered").
			WithDetail("service", name)
	}
	return &svc, nil
}

// Names returns the configured service names
func (r *Static) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	return names
}

// Update replaces the endpoint for a service, for config reloads
func (r *Static) Update(name string, ep Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.services[name] = core.Service{
		Name:    name,
		BaseURL: ep.BaseURL,
		Token:   ep.Token,
		APIKey:  ep.APIKey,
	}
	r.logger.Info("service endpoint updated", "service", name)
}

// Ensure Static implements core.ServiceRegistry
var _ core.ServiceRegistry = (*Static)(nil)
