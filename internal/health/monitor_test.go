package health

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"freightgate/internal/core"
	"freightgate/pkg/errors"
)

type fakeRouteStore struct {
	mu      sync.Mutex
	targets map[string]core.Target
}

func newFakeRouteStore() *fakeRouteStore {
	return &fakeRouteStore{targets: make(map[string]core.Target)}
}

func (f *fakeRouteStore) ListRoutes(ctx context.Context) ([]core.Route, error) { return nil, nil }

func (f *fakeRouteStore) UpsertRoute(ctx context.Context, route core.Route) error { return nil }

func (f *fakeRouteStore) ListTargets(ctx context.Context) ([]core.Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	targets := make([]core.Target, 0, len(f.targets))
	for _, t := range f.targets {
		targets = append(targets, t)
	}
	return targets, nil
}

func (f *fakeRouteStore) UpsertTarget(ctx context.Context, target core.Target) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets[target.ID] = target
	return nil
}

func (f *fakeRouteStore) AddTargetLoad(ctx context.Context, id string, delta int64) error {
	return nil
}

func (f *fakeRouteStore) SetTargetHealth(ctx context.Context, id string, healthy bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.targets[id]
	t.Healthy = healthy
	f.targets[id] = t
	return nil
}

func (f *fakeRouteStore) Close() error { return nil }

func (f *fakeRouteStore) healthOf(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.targets[id].Healthy
}

type fakeRegistry struct {
	services map[string]*core.Service
}

func (f *fakeRegistry) Resolve(name string) (*core.Service, error) {
	svc, ok := f.services[name]
	if !ok {
		return nil, errors.NewError(errors.ErrorTypeNotFound, "service not registered")
	}
	return svc, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCheckAllMarksDownTargetUnhealthy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	db := newFakeRouteStore()
	db.targets["t1"] = core.Target{ID: "t1", TargetService: "orders", Weight: 1, Healthy: true}
	registry := &fakeRegistry{services: map[string]*core.Service{
		"orders": {Name: "orders", BaseURL: upstream.URL},
	}}
	m := NewMonitor(Config{}, db, registry, testLogger())

	m.checkAll(context.Background())

	if db.healthOf("t1") {
		t.Error("failing target still marked healthy")
	}
}

func TestCheckAllMarksRecoveredTargetHealthy(t *testing.T) {
	var probedPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probedPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	db := newFakeRouteStore()
	db.targets["t1"] = core.Target{ID: "t1", TargetService: "orders", Weight: 1, Healthy: false}
	registry := &fakeRegistry{services: map[string]*core.Service{
		"orders": {Name: "orders", BaseURL: upstream.URL},
	}}
	m := NewMonitor(Config{Path: "/health"}, db, registry, testLogger())

	m.checkAll(context.Background())

	if !db.healthOf("t1") {
		t.Error("recovered target still marked unhealthy")
	}
	if probedPath != "/health" {
		t.Errorf("probe path = %q, want /health", probedPath)
	}
}

func TestCheckAllSkipsUnchangedTargets(t *testing.T) {
	probes := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes++
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	db := newFakeRouteStore()
	db.targets["t1"] = core.Target{ID: "t1", TargetService: "orders", Weight: 1, Healthy: true}
	registry := &fakeRegistry{services: map[string]*core.Service{
		"orders": {Name: "orders", BaseURL: upstream.URL},
	}}
	m := NewMonitor(Config{}, db, registry, testLogger())

	m.checkAll(context.Background())
	m.checkAll(context.Background())

	// Still probed every sweep, but health writes only happen on change
	if probes != 2 {
		t.Errorf("probes = %d, want 2", probes)
	}
	if !db.healthOf("t1") {
		t.Error("healthy target flipped without cause")
	}
}

func TestUnresolvableServiceIsUnhealthy(t *testing.T) {
	db := newFakeRouteStore()
	db.targets["t1"] = core.Target{ID: "t1", TargetService: "ghost", Weight: 1, Healthy: true}
	m := NewMonitor(Config{}, db, &fakeRegistry{services: map[string]*core.Service{}}, testLogger())

	m.checkAll(context.Background())

	if db.healthOf("t1") {
		t.Error("target of an unregistered service still marked healthy")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	db := newFakeRouteStore()
	m := NewMonitor(Config{Interval: 3600}, db, &fakeRegistry{}, testLogger())

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Start(context.Background()); err == nil {
		t.Error("second Start succeeded, want already-started error")
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := m.Stop(); err == nil {
		t.Error("second Stop succeeded, want not-started error")
	}
}

func TestNewMonitorDefaults(t *testing.T) {
	m := NewMonitor(Config{}, newFakeRouteStore(), &fakeRegistry{}, testLogger())

	if m.config.Interval != 30 || m.config.Timeout != 5 || m.config.Path != "/health" {
		t.Errorf("defaults = %+v, want 30/5//health", m.config)
	}
}
