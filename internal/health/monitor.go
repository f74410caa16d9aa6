package health

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"freightgate/internal/core"
	"freightgate/internal/storage"
)

// Config holds target health monitor configuration
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	Interval int    `yaml:"interval"` // seconds
	Timeout  int    `yaml:"timeout"`  // seconds
	Path     string `yaml:"path"`
}

// DefaultConfig returns default monitor configuration
func DefaultConfig() Config {
	return Config{
		Enabled:  false,
		Interval: 30,
		Timeout:  5,
		Path:     "/health",
	}
}

// Monitor periodically probes load-balanced targets and records their
// health in the route store, so the balancer stops selecting instances
// that fail their checks.
type Monitor struct {
	config   Config
	db       storage.RouteStore
	registry core.ServiceRegistry
	client   *http.Client
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor creates a target health monitor
func NewMonitor(config Config, db storage.RouteStore, registry core.ServiceRegistry, logger *slog.Logger) *Monitor {
	if config.Interval <= 0 {
		config.Interval = 30
	}
	if config.Timeout <= 0 {
		config.Timeout = 5
	}
	if config.Path == "" {
		config.Path = "/health"
	}

	return &Monitor{
		config:   config,
		db:       db,
		registry: registry,
		client: &http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
		},
		logger: logger.With("component", "health-monitor"),
	}
}

// Start begins periodic probing
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return fmt.Errorf("monitor already started")
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go m.loop(ctx)

	m.logger.Info("target health monitor started",
		"interval_seconds", m.config.Interval, "path", m.config.Path)
	return nil
}

// Stop halts probing and waits for the loop to exit
func (m *Monitor) Stop() error {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return fmt.Errorf("monitor not started")
	}
	cancel()
	m.wg.Wait()

	m.logger.Info("target health monitor stopped")
	return nil
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(time.Duration(m.config.Interval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkAll(ctx)
		}
	}
}

// checkAll probes every registered target once
func (m *Monitor) checkAll(ctx context.Context) {
	targets, err := m.db.ListTargets(ctx)
	if err != nil {
		m.logger.Error("failed to list targets", "error", err)
		return
	}

	for _, target := range targets {
		healthy := m.probe(ctx, &target)
		if healthy == target.Healthy {
			continue
		}
		if err := m.db.SetTargetHealth(ctx, target.ID, healthy); err != nil {
			m.logger.Error("failed to record target health",
				"target", target.ID, "error", err)
			continue
		}
		if healthy {
			m.logger.Info("target recovered", "target", target.ID, "service", target.TargetService)
		} else {
			m.logger.Warn("target unhealthy", "target", target.ID, "service", target.TargetService)
		}
	}
}

// probe checks one target via its service endpoint
func (m *Monitor) probe(ctx context.Context, target *core.Target) bool {
	endpoint, err := m.registry.Resolve(target.TargetService)
	if err != nil {
		m.logger.Warn("target references unregistered service",
			"target", target.ID, "service", target.TargetService)
		return false
	}

	url := strings.TrimRight(endpoint.BaseURL, "/") + m.config.Path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
