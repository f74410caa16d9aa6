package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	httpAdapter "freightgate/internal/adapter/http"
	"freightgate/internal/config"
	"freightgate/internal/health"
	"freightgate/internal/management"
	"freightgate/internal/registry"
	"freightgate/internal/storage"
	"freightgate/internal/telemetry"
)

// Server represents the gateway server
type Server struct {
	config     *config.Config
	adapter    *httpAdapter.Adapter
	management *management.API
	monitor    *health.Monitor
	registry   *registry.Static
	telemetry  *telemetry.Telemetry
	kv         storage.KVStore
	routeDB    interface{ Close() error }
	logger     *slog.Logger
}

// NewServer creates a new gateway server
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	builder := NewBuilder(cfg, logger)
	return builder.Build()
}

// Start starts the gateway server. It is non-blocking: the listeners
// run in the background until Stop is called or the context is
// canceled.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting gateway",
		"host", s.config.Gateway.HTTP.Host,
		"port", s.config.Gateway.HTTP.Port,
	)

	if err := s.adapter.Start(ctx); err != nil {
		return fmt.Errorf("HTTP server: %w", err)
	}

	if err := s.management.Start(ctx); err != nil {
		stopCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		s.adapter.Stop(stopCtx)
		return fmt.Errorf("management API: %w", err)
	}

	if s.monitor != nil {
		if err := s.monitor.Start(ctx); err != nil {
			return fmt.Errorf("health monitor: %w", err)
		}
	}

	s.logger.Info("gateway started successfully")
	return nil
}

// ApplyConfig applies the hot-reloadable parts of a new configuration.
// Only registry endpoints take effect at runtime; listener, storage,
// and middleware changes need a restart.
func (s *Server) ApplyConfig(cfg *config.Config) {
	for name, endpoint := range cfg.Gateway.Registry.Services {
		s.registry.Update(name, endpoint)
	}
	s.logger.Info("applied reloaded configuration",
		"services", len(cfg.Gateway.Registry.Services))
}

// Stop gracefully stops the gateway server
func (s *Server) Stop(ctx context.Context) error {
	var wg sync.WaitGroup
	var errs []error
	errMu := sync.Mutex{}

	record := func(err error) {
		if err == nil {
			return
		}
		errMu.Lock()
		errs = append(errs, err)
		errMu.Unlock()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := s.adapter.Stop(ctx); err != nil {
			record(fmt.Errorf("stopping HTTP server: %w", err))
		}
	}()
	go func() {
		defer wg.Done()
		if err := s.management.Stop(ctx); err != nil {
			record(fmt.Errorf("stopping management API: %w", err))
		}
	}()
	wg.Wait()

	if s.monitor != nil {
		if err := s.monitor.Stop(); err != nil {
			record(fmt.Errorf("stopping health monitor: %w", err))
		}
	}
	if err := s.telemetry.Shutdown(ctx); err != nil {
		record(fmt.Errorf("shutting down telemetry: %w", err))
	}
	if err := s.kv.Close(); err != nil {
		record(fmt.Errorf("closing kv store: %w", err))
	}
	if err := s.routeDB.Close(); err != nil {
		record(fmt.Errorf("closing route database: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	s.logger.Info("gateway stopped successfully")
	return nil
}
