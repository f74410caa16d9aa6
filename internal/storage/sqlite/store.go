package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"freightgate/internal/core"
	"freightgate/internal/storage"
)

// Store is a SQLite implementation of storage.RouteStore
type Store struct {
	db *sql.DB
}

// Ensure Store implements RouteStore
var _ storage.RouteStore = (*Store)(nil)

// New creates a new SQLite route store
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS routes (
			path TEXT PRIMARY KEY,
			allowed_methods TEXT NOT NULL,
			target_service TEXT NOT NULL,
			timeout_seconds INTEGER NOT NULL DEFAULT 30,
			connect_timeout_seconds INTEGER NOT NULL DEFAULT 10,
			auth_type TEXT NOT NULL DEFAULT 'none',
			load_balanced INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS lb_targets (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			target_service TEXT NOT NULL,
			weight INTEGER NOT NULL DEFAULT 1,
			is_healthy INTEGER NOT NULL DEFAULT 1,
			current_load INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lb_targets_path ON lb_targets(path)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// ListRoutes returns all registered routes
func (s *Store) ListRoutes(ctx context.Context) ([]core.Route, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, allowed_methods, target_service, timeout_seconds,
		        connect_timeout_seconds, auth_type, load_balanced
		 FROM routes ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}
	defer rows.Close()

	var routes []core.Route
	for rows.Next() {
		var r core.Route
		var methods string
		var timeoutSec, connectSec int64
		var loadBalanced int
		if err := rows.Scan(&r.Path, &methods, &r.TargetService,
			&timeoutSec, &connectSec, &r.AuthType, &loadBalanced); err != nil {
			return nil, fmt.Errorf("failed to scan route: %w", err)
		}
		r.AllowedMethods = splitMethods(methods)
		r.Timeout = time.Duration(timeoutSec) * time.Second
		r.ConnectTimeout = time.Duration(connectSec) * time.Second
		r.LoadBalanced = loadBalanced != 0
		r.Normalize()
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

// UpsertRoute inserts or replaces the route keyed by its path
func (s *Store) UpsertRoute(ctx context.Context, route core.Route) error {
	route.Normalize()
	loadBalanced := 0
	if route.LoadBalanced {
		loadBalanced = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO routes (path, allowed_methods, target_service,
		        timeout_seconds, connect_timeout_seconds, auth_type,
		        load_balanced, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		        allowed_methods = excluded.allowed_methods,
		        target_service = excluded.target_service,
		        timeout_seconds = excluded.timeout_seconds,
		        connect_timeout_seconds = excluded.connect_timeout_seconds,
		        auth_type = excluded.auth_type,
		        load_balanced = excluded.load_balanced,
		        updated_at = excluded.updated_at`,
		route.Path, joinMethods(route.AllowedMethods), route.TargetService,
		int64(route.Timeout.Seconds()), int64(route.ConnectTimeout.Seconds()),
		string(route.AuthType), loadBalanced, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert route %s: %w", route.Path, err)
	}
	return nil
}

// ListTargets returns all load-balanced targets
func (s *Store) ListTargets(ctx context.Context) ([]core.Target, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path, target_service, weight, is_healthy, current_load
		 FROM lb_targets ORDER BY path, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer rows.Close()

	var targets []core.Target
	for rows.Next() {
		var t core.Target
		var healthy int
		if err := rows.Scan(&t.ID, &t.Path, &t.TargetService, &t.Weight,
			&healthy, &t.CurrentLoad); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		t.Healthy = healthy != 0
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// UpsertTarget inserts or replaces a target by id
func (s *Store) UpsertTarget(ctx context.Context, target core.Target) error {
	healthy := 0
	if target.Healthy {
		healthy = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lb_targets (id, path, target_service, weight, is_healthy, current_load)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		        path = excluded.path,
		        target_service = excluded.target_service,
		        weight = excluded.weight,
		        is_healthy = excluded.is_healthy,
		        current_load = excluded.current_load`,
		target.ID, target.Path, target.TargetService, target.Weight,
		healthy, target.CurrentLoad)
	if err != nil {
		return fmt.Errorf("failed to upsert target %s: %w", target.ID, err)
	}
	return nil
}

// AddTargetLoad atomically adds delta to a target's current_load. The
// single UPDATE statement is the atomic increment; callers never read
// the counter first.
func (s *Store) AddTargetLoad(ctx context.Context, id string, delta int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE lb_targets SET current_load = current_load + ? WHERE id = ?`,
		delta, id)
	if err != nil {
		return fmt.Errorf("failed to update target load %s: %w", id, err)
	}
	return nil
}

// SetTargetHealth marks a target healthy or unhealthy
func (s *Store) SetTargetHealth(ctx context.Context, id string, healthy bool) error {
	v := 0
	if healthy {
		v = 1
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE lb_targets SET is_healthy = ? WHERE id = ?`, v, id)
	if err != nil {
		return fmt.Errorf("failed to update target health %s: %w", id, err)
	}
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func joinMethods(methods []string) string {
	return strings.Join(methods, ",")
}

func splitMethods(methods string) []string {
	if methods == "" {
		return nil
	}
	parts := strings.Split(methods, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
