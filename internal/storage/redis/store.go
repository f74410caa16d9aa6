package redis

import (
	"context"
	"fmt"
	"time"

	"freightgate/internal/storage"
	"freightgate/pkg/errors"
)

// incrScript atomically increments a counter and refreshes its TTL.
// INCRBY alone would leave a fresh key without expiry, so both steps
// run in one script.
const incrScript = `
	local value = redis.call('INCRBY', KEYS[1], ARGV[1])
	local ttl = tonumber(ARGV[2])
	if ttl > 0 then
		redis.call('EXPIRE', KEYS[1], ttl)
	end
	return value
`

// Store implements storage.KVStore on Redis. This is the production
// backing store: every gateway process shares its counters and caches.
type Store struct {
	client Client
}

// NewStore creates a new Redis-backed store
func NewStore(client Client) *Store {
	return &Store{client: client}
}

// Get returns the value for key
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	value, found, err := s.client.Get(ctx, key)
	if err != nil {
		return "", false, errors.NewError(errors.ErrorTypeInternal, "redis get failed").
			WithDetail("key", key).WithCause(err)
	}
	return value, found, nil
}

// Set stores value under key with the given TTL
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, int64(ttl.Seconds())); err != nil {
		return errors.NewError(errors.ErrorTypeInternal, "redis set failed").
			WithDetail("key", key).WithCause(err)
	}
	return nil
}

// Increment atomically adds delta to the counter at key and refreshes
// its TTL
func (s *Store) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	result, err := s.client.Eval(ctx, incrScript, []string{key}, delta, int64(ttl.Seconds()))
	if err != nil {
		return 0, errors.NewError(errors.ErrorTypeInternal, "redis increment failed").
			WithDetail("key", key).WithCause(err)
	}

	value, ok := result.(int64)
	if !ok {
		return 0, errors.NewError(errors.ErrorTypeInternal,
			fmt.Sprintf("unexpected increment script result %T", result)).
			WithDetail("key", key)
	}
	return value, nil
}

// Delete removes keys
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...); err != nil {
		return errors.NewError(errors.ErrorTypeInternal, "redis delete failed").WithCause(err)
	}
	return nil
}

// Close closes the store
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// secondsToDuration converts a TTL in seconds to a time.Duration
func secondsToDuration(seconds int64) time.Duration {
	return time.Duration(seconds) * time.Second
}

// Ensure Store implements storage.KVStore
var _ storage.KVStore = (*Store)(nil)
