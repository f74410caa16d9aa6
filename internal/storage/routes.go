package storage

import (
	"context"

	"freightgate/internal/core"
)

// RouteStore is the relational source of truth for registered routes
// and the load-balanced target table. The router reads it on cache
// miss and writes through it on register/update.
type RouteStore interface {
	// ListRoutes returns all registered routes
	ListRoutes(ctx context.Context) ([]core.Route, error)

	// UpsertRoute inserts or replaces the route keyed by its path
	UpsertRoute(ctx context.Context, route core.Route) error

	// ListTargets returns all load-balanced targets
	ListTargets(ctx context.Context) ([]core.Target, error)

	// UpsertTarget inserts or replaces a target by id
	UpsertTarget(ctx context.Context, target core.Target) error

	// AddTargetLoad atomically adds delta to a target's current_load
	AddTargetLoad(ctx context.Context, id string, delta int64) error

	// SetTargetHealth marks a target healthy or unhealthy
	SetTargetHealth(ctx context.Context, id string, healthy bool) error

	// Close releases the underlying connection
	Close() error
}
