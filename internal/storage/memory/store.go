package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"freightgate/internal/storage"
	"freightgate/pkg/errors"
)

// entry is a stored value with an optional expiry
type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Store implements storage.KVStore in process memory. It backs tests
// and single-process deployments; multi-process gateways need the
// redis store so counters are shared.
type Store struct {
	entries map[string]*entry
	mu      sync.Mutex
	config  *storage.Config
	done    chan struct{}
}

// NewStore creates a new memory store
func NewStore(config *storage.Config) *Store {
	if config == nil {
		config = storage.DefaultConfig()
	}

	s := &Store{
		entries: make(map[string]*entry),
		config:  config,
		done:    make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		go s.cleanup()
	}

	return s
}

// Get returns the value for key
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	if e.expired(time.Now()) {
		delete(s.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

// Set stores value under key with the given TTL
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.MaxEntries > 0 && len(s.entries) >= s.config.MaxEntries {
		if _, exists := s.entries[key]; !exists {
			s.evictOldestLocked()
		}
	}

	e := &entry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

// Increment atomically adds delta to the counter at key and refreshes
// its TTL. The single store mutex makes the read-add-write one step,
// matching the atomicity the redis store gets from its Lua script.
func (s *Store) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var current int64
	if e, ok := s.entries[key]; ok && !e.expired(now) {
		v, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, errors.NewError(errors.ErrorTypeInternal, "counter holds non-integer value").
				WithDetail("key", key).WithCause(err)
		}
		current = v
	}

	current += delta
	e := &entry{value: strconv.FormatInt(current, 10)}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	s.entries[key] = e
	return current, nil
}

// Delete removes keys
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.entries, key)
	}
	return nil
}

// Close stops the cleanup routine
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	default:
		close(s.done)
		return nil
	}
}

// cleanup periodically removes expired entries
func (s *Store) cleanup() {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.removeExpired()
		}
	}
}

// removeExpired drops all entries past their expiry
func (s *Store) removeExpired() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
		}
	}
}

// evictOldestLocked removes the entry closest to expiry; entries
// without expiry are only evicted when nothing else qualifies
func (s *Store) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time
	first := true

	for key, e := range s.entries {
		if e.expiresAt.IsZero() {
			continue
		}
		if first || e.expiresAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.expiresAt
			first = false
		}
	}

	if oldestKey == "" {
		for key := range s.entries {
			oldestKey = key
			break
		}
	}
	delete(s.entries, oldestKey)
}

// Ensure Store implements storage.KVStore
var _ storage.KVStore = (*Store)(nil)
