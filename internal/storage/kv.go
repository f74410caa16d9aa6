package storage

import (
	"context"
	"time"
)

// KVStore is the shared backing store reachable by every gateway
// process: route-table caches, load-balancer counters, and all circuit
// breaker fields live here. Its atomic increment is the sole
// cross-process synchronization primitive; callers must never emulate
// it with read-modify-write.
type KVStore interface {
	// Get returns the value for key; found is false if the key is
	// absent or expired
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Set stores value under key with the given TTL (0 = no expiry)
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Increment atomically adds delta to the integer counter at key,
	// creating it at zero first, and refreshes its TTL. Returns the
	// new value.
	Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)

	// Delete removes keys; missing keys are not an error
	Delete(ctx context.Context, keys ...string) error

	// Close releases resources held by the store
	Close() error
}

// Config defines common tuning for KV store implementations
type Config struct {
	// CleanupInterval is how often in-memory implementations sweep
	// expired entries
	CleanupInterval time.Duration
	// MaxEntries caps in-memory implementations (0 = unlimited)
	MaxEntries int
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		CleanupInterval: 5 * time.Minute,
		MaxEntries:      100000,
	}
}
