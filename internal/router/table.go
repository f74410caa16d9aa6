package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"freightgate/internal/core"
	"freightgate/internal/storage"
	"freightgate/pkg/errors"
)

// Cache keys shared across gateway processes
const (
	routesCacheKey  = "api_gateway_routes"
	targetsCacheKey = "api_gateway_load_balanced"
)

// CacheTTL bounds how stale a process's route table may be. Mutations
// invalidate and reload synchronously; other processes converge within
// the TTL, an accepted eventual-consistency trade-off.
const CacheTTL = time.Hour

// Table resolves inbound path+method pairs to routes. The relational
// store is the source of truth; the shared KV store caches the loaded
// tables so a fleet of gateways does not hammer the database.
type Table struct {
	kv       storage.KVStore
	db       storage.RouteStore
	balancer *LeastLoadBalancer
	logger   *slog.Logger

	mu       sync.RWMutex
	routes   map[string]*core.Route
	targets  map[string][]*core.Target
	loadedAt time.Time
}

// NewTable creates a route table over the given stores
func NewTable(kv storage.KVStore, db storage.RouteStore, logger *slog.Logger) *Table {
	return &Table{
		kv:       kv,
		db:       db,
		balancer: NewLeastLoadBalancer(),
		logger:   logger.With("component", "router"),
	}
}

// FindRoute resolves a request to a registered route. For paths with
// load-balanced targets, a target is selected to gate availability and
// account load, but the returned route is still the record keyed by
// path; the selected target rides along on the second return value.
func (t *Table) FindRoute(ctx context.Context, req core.Request) (*core.Route, *core.Target, error) {
	if err := t.ensureLoaded(ctx); err != nil {
		return nil, nil, err
	}

	path := req.Path()
	method := req.Method()

	t.mu.RLock()
	route := t.routes[path]
	targets := t.targets[path]
	t.mu.RUnlock()

	if route == nil || !route.AllowsMethod(method) {
		return nil, nil, errors.NewError(errors.ErrorTypeNotFound, "route not found").
			WithDetail("path", path).
			WithDetail("method", method)
	}

	if len(targets) > 0 {
		target, err := t.selectTarget(ctx, path, targets)
		if err != nil {
			return nil, nil, err
		}
		return route, target, nil
	}

	return route, nil, nil
}

// selectTarget picks the least-loaded healthy target and records the
// selection with an atomic increment in the backing store
func (t *Table) selectTarget(ctx context.Context, path string, targets []*core.Target) (*core.Target, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	selected, err := t.balancer.Select(targets)
	if err != nil {
		return nil, err
	}

	if err := t.db.AddTargetLoad(ctx, selected.ID, 1); err != nil {
		return nil, err
	}
	// Keep the snapshot consistent with the store so consecutive
	// selections within one cache window still rotate
	selected.CurrentLoad++

	t.logger.Debug("load-balanced target selected",
		"path", path,
		"target", selected.ID,
		"service", selected.TargetService,
		"load", selected.CurrentLoad,
	)

	cp := *selected
	return &cp, nil
}

// Register adds or replaces a route, invalidates the shared cache, and
// reloads synchronously
func (t *Table) Register(ctx context.Context, route core.Route) error {
	route.Normalize()
	if route.Path == "" {
		return errors.NewError(errors.ErrorTypeBadRequest, "route path is required")
	}
	if route.TargetService == "" {
		return errors.NewError(errors.ErrorTypeBadRequest, "route target service is required").
			WithDetail("path", route.Path)
	}
	if err := t.db.UpsertRoute(ctx, route); err != nil {
		return err
	}
	t.logger.Info("route registered", "path", route.Path, "service", route.TargetService)
	return t.Invalidate(ctx)
}

// Update modifies an existing route; unknown paths are an error
func (t *Table) Update(ctx context.Context, route core.Route) error {
	if err := t.ensureLoaded(ctx); err != nil {
		return err
	}

	t.mu.RLock()
	_, exists := t.routes[route.Path]
	t.mu.RUnlock()

	if !exists {
		return errors.NewError(errors.ErrorTypeNotFound, "route not registered").
			WithDetail("path", route.Path)
	}
	return t.Register(ctx, route)
}

// RegisterTarget adds or replaces a load-balanced target and reloads
func (t *Table) RegisterTarget(ctx context.Context, target core.Target) error {
	if target.ID == "" || target.Path == "" {
		return errors.NewError(errors.ErrorTypeBadRequest, "target id and path are required")
	}
	if err := t.db.UpsertTarget(ctx, target); err != nil {
		return err
	}
	t.logger.Info("load-balanced target registered",
		"id", target.ID, "path", target.Path, "service", target.TargetService)
	return t.Invalidate(ctx)
}

// Routes returns a copy of the currently loaded routes
func (t *Table) Routes(ctx context.Context) ([]core.Route, error) {
	if err := t.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	routes := make([]core.Route, 0, len(t.routes))
	for _, r := range t.routes {
		routes = append(routes, *r)
	}
	return routes, nil
}

// Invalidate drops the shared cache and reloads from the database
func (t *Table) Invalidate(ctx context.Context) error {
	if err := t.kv.Delete(ctx, routesCacheKey, targetsCacheKey); err != nil {
		return err
	}
	return t.load(ctx)
}

// ensureLoaded loads the table on first use or after the TTL lapses
func (t *Table) ensureLoaded(ctx context.Context) error {
	t.mu.RLock()
	loaded := t.routes != nil && time.Since(t.loadedAt) < CacheTTL
	t.mu.RUnlock()

	if loaded {
		return nil
	}
	return t.load(ctx)
}

// load fills the in-memory table from the shared cache, falling back
// to the database and populating the cache on miss
func (t *Table) load(ctx context.Context) error {
	routes, err := t.loadRoutes(ctx)
	if err != nil {
		return err
	}
	targets, err := t.loadTargets(ctx)
	if err != nil {
		return err
	}

	routeMap := make(map[string]*core.Route, len(routes))
	for i := range routes {
		routes[i].Normalize()
		routeMap[routes[i].Path] = &routes[i]
	}
	targetMap := make(map[string][]*core.Target)
	for i := range targets {
		targetMap[targets[i].Path] = append(targetMap[targets[i].Path], &targets[i])
	}

	t.mu.Lock()
	t.routes = routeMap
	t.targets = targetMap
	t.loadedAt = time.Now()
	t.mu.Unlock()

	t.logger.Info("route table loaded", "routes", len(routeMap), "load_balanced_paths", len(targetMap))
	return nil
}

func (t *Table) loadRoutes(ctx context.Context) ([]core.Route, error) {
	cached, found, err := t.kv.Get(ctx, routesCacheKey)
	if err != nil {
		return nil, err
	}
	if found {
		var routes []core.Route
		if err := json.Unmarshal([]byte(cached), &routes); err == nil {
			return routes, nil
		}
		// Corrupt cache entry: fall through to the database
		t.logger.Warn("discarding unreadable route cache")
	}

	routes, err := t.db.ListRoutes(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(routes); err == nil {
		if err := t.kv.Set(ctx, routesCacheKey, string(data), CacheTTL); err != nil {
			t.logger.Warn("failed to populate route cache", "error", err)
		}
	}
	return routes, nil
}

func (t *Table) loadTargets(ctx context.Context) ([]core.Target, error) {
	cached, found, err := t.kv.Get(ctx, targetsCacheKey)
	if err != nil {
		return nil, err
	}
	if found {
		var targets []core.Target
		if err := json.Unmarshal([]byte(cached), &targets); err == nil {
			return targets, nil
		}
		t.logger.Warn("discarding unreadable target cache")
	}

	targets, err := t.db.ListTargets(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(targets); err == nil {
		if err := t.kv.Set(ctx, targetsCacheKey, string(data), CacheTTL); err != nil {
			t.logger.Warn("failed to populate target cache", "error", err)
		}
	}
	return targets, nil
}
