package circuitbreaker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"freightgate/internal/storage"
)

// State values stored per service. Absence of the state key is
// equivalent to StateClosed with zero counters: after prolonged
// inactivity the TTL silently resets a breaker, which callers treat as
// a self-healing event, not a bug.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"
)

// Config holds circuit breaker configuration
type Config struct {
	// FailureThreshold is the closed-state failure streak that trips
	// the breaker open
	FailureThreshold int
	// RecoveryTimeout is how long an open breaker blocks before a
	// probe is allowed
	RecoveryTimeout time.Duration
	// HalfOpenMaxCalls caps concurrent probes while half-open
	HalfOpenMaxCalls int
	// SuccessThreshold is the half-open success streak that closes
	// the breaker
	SuccessThreshold int
	// TTL is the expiry applied to every stored field, refreshed on
	// each write
	TTL time.Duration
	// Services are the configured service names reported by the
	// status and statistics read models
	Services []string
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		HalfOpenMaxCalls: 3,
		SuccessThreshold: 2,
		TTL:              time.Hour,
	}
}

// Service is a per-backend-service circuit breaker whose entire state
// lives in the shared KV store, so every gateway process sees the same
// breaker. Counter updates go through the store's atomic increment.
type Service struct {
	store  storage.KVStore
	config Config
	logger *slog.Logger

	// onStateChange, when set, observes every transition
	onStateChange func(service, state string)

	// now is swapped in tests
	now func() time.Time
}

// OnStateChange registers a hook invoked after each state transition
// with the service name and the state entered. Set it before the
// breaker handles traffic; it is not synchronized.
func (s *Service) OnStateChange(fn func(service, state string)) {
	s.onStateChange = fn
}

func (s *Service) notifyStateChange(service, state string) {
	if s.onStateChange != nil {
		s.onStateChange(service, state)
	}
}

// New creates a new circuit breaker service
func New(store storage.KVStore, config Config, logger *slog.Logger) *Service {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 60 * time.Second
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = 3
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.TTL <= 0 {
		config.TTL = time.Hour
	}

	return &Service{
		store:  store,
		config: config,
		logger: logger.With("component", "circuitbreaker"),
		now:    time.Now,
	}
}

// Storage keys, one per field so counters can be incremented atomically
func stateKey(service string) string {
	return fmt.Sprintf("circuit_breaker:%s:state", service)
}

func failuresKey(service string) string {
	return fmt.Sprintf("circuit_breaker:%s:failures", service)
}

func lastFailureKey(service string) string {
	return fmt.Sprintf("circuit_breaker:%s:last_failure", service)
}

func callsKey(service string) string {
	return fmt.Sprintf("circuit_breaker:%s:calls", service)
}

func successesKey(service string) string {
	return fmt.Sprintf("circuit_breaker:%s:successes", service)
}

// State returns the current state for a service
func (s *Service) State(ctx context.Context, service string) (string, error) {
	state, found, err := s.store.Get(ctx, stateKey(service))
	if err != nil {
		return "", err
	}
	if !found || state == "" {
		return StateClosed, nil
	}
	return state, nil
}

// IsOpen reports whether calls to the service are currently blocked.
// An open breaker whose recovery timeout has elapsed self-transitions
// to half-open and returns false for that check, letting a probe pass.
func (s *Service) IsOpen(ctx context.Context, service string) (bool, error) {
	state, err := s.State(ctx, service)
	if err != nil {
		return false, err
	}
	if state != StateOpen {
		return false, nil
	}

	lastFailure, err := s.lastFailureTime(ctx, service)
	if err != nil {
		return false, err
	}
	if lastFailure != nil && s.now().Sub(*lastFailure) < s.config.RecoveryTimeout {
		return true, nil
	}

	// Recovery window elapsed (or last_failure expired): allow a probe
	if err := s.toHalfOpen(ctx, service); err != nil {
		return false, err
	}
	return false, nil
}

// CanCall reports whether a call may be dispatched right now. In
// half-open state at most HalfOpenMaxCalls probes are permitted;
// callers must follow up with RecordCall before dispatching.
func (s *Service) CanCall(ctx context.Context, service string) (bool, error) {
	state, err := s.State(ctx, service)
	if err != nil {
		return false, err
	}

	switch state {
	case StateClosed:
		return true, nil
	case StateOpen:
		open, err := s.IsOpen(ctx, service)
		if err != nil {
			return false, err
		}
		return !open, nil
	case StateHalfOpen:
		calls, err := s.counter(ctx, callsKey(service))
		if err != nil {
			return false, err
		}
		return calls < int64(s.config.HalfOpenMaxCalls), nil
	default:
		return false, nil
	}
}

// RecordCall counts a dispatched probe; only meaningful in half-open
// state but harmless otherwise
func (s *Service) RecordCall(ctx context.Context, service string) error {
	_, err := s.store.Increment(ctx, callsKey(service), 1, s.config.TTL)
	return err
}

// RecordSuccess records a successful call. Any single success in
// closed state clears the failure streak; enough successes while
// half-open close the breaker.
func (s *Service) RecordSuccess(ctx context.Context, service string) error {
	state, err := s.State(ctx, service)
	if err != nil {
		return err
	}

	if state == StateHalfOpen {
		successes, err := s.store.Increment(ctx, successesKey(service), 1, s.config.TTL)
		if err != nil {
			return err
		}
		if successes >= int64(s.config.SuccessThreshold) {
			return s.toClosed(ctx, service)
		}
		return nil
	}

	return s.store.Set(ctx, failuresKey(service), "0", s.config.TTL)
}

// RecordFailure records a failed call. A half-open breaker reopens on
// any failure; a closed breaker trips once the streak reaches the
// failure threshold.
func (s *Service) RecordFailure(ctx context.Context, service string) error {
	state, err := s.State(ctx, service)
	if err != nil {
		return err
	}

	if state == StateHalfOpen {
		return s.toOpen(ctx, service)
	}

	failures, err := s.store.Increment(ctx, failuresKey(service), 1, s.config.TTL)
	if err != nil {
		return err
	}
	if failures >= int64(s.config.FailureThreshold) {
		return s.toOpen(ctx, service)
	}
	return nil
}

// Reset forces a breaker back to closed with all counters zeroed.
// Operator override; bypasses the normal transition rules.
func (s *Service) Reset(ctx context.Context, service string) error {
	if err := s.toClosed(ctx, service); err != nil {
		return err
	}
	s.logger.Info("circuit breaker reset", "service", service)
	return nil
}

// toClosed transitions to closed and zeroes every counter
func (s *Service) toClosed(ctx context.Context, service string) error {
	ttl := s.config.TTL
	if err := s.store.Set(ctx, stateKey(service), StateClosed, ttl); err != nil {
		return err
	}
	if err := s.store.Set(ctx, failuresKey(service), "0", ttl); err != nil {
		return err
	}
	if err := s.store.Set(ctx, callsKey(service), "0", ttl); err != nil {
		return err
	}
	if err := s.store.Set(ctx, successesKey(service), "0", ttl); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, lastFailureKey(service)); err != nil {
		return err
	}
	s.logger.Info("circuit breaker closed", "service", service)
	s.notifyStateChange(service, StateClosed)
	return nil
}

// toOpen transitions to open, recording the failure time and clearing
// the probe counter
func (s *Service) toOpen(ctx context.Context, service string) error {
	ttl := s.config.TTL
	if err := s.store.Set(ctx, stateKey(service), StateOpen, ttl); err != nil {
		return err
	}
	if err := s.store.Set(ctx, lastFailureKey(service),
		strconv.FormatInt(s.now().Unix(), 10), ttl); err != nil {
		return err
	}
	if err := s.store.Set(ctx, callsKey(service), "0", ttl); err != nil {
		return err
	}
	if err := s.store.Set(ctx, successesKey(service), "0", ttl); err != nil {
		return err
	}
	s.logger.Warn("circuit breaker opened", "service", service)
	s.notifyStateChange(service, StateOpen)
	return nil
}

// toHalfOpen transitions to half-open with a fresh probe counter
func (s *Service) toHalfOpen(ctx context.Context, service string) error {
	ttl := s.config.TTL
	if err := s.store.Set(ctx, stateKey(service), StateHalfOpen, ttl); err != nil {
		return err
	}
	if err := s.store.Set(ctx, callsKey(service), "0", ttl); err != nil {
		return err
	}
	if err := s.store.Set(ctx, successesKey(service), "0", ttl); err != nil {
		return err
	}
	s.logger.Info("circuit breaker half-open", "service", service)
	s.notifyStateChange(service, StateHalfOpen)
	return nil
}

// counter reads an integer field, zero if absent
func (s *Service) counter(ctx context.Context, key string) (int64, error) {
	value, found, err := s.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if !found || value == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter %s holds non-integer %q: %w", key, value, err)
	}
	return n, nil
}

// lastFailureTime reads the recorded failure time, nil if absent
func (s *Service) lastFailureTime(ctx context.Context, service string) (*time.Time, error) {
	value, found, err := s.store.Get(ctx, lastFailureKey(service))
	if err != nil {
		return nil, err
	}
	if !found || value == "" {
		return nil, nil
	}
	epoch, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("last failure for %s holds non-integer %q: %w", service, value, err)
	}
	t := time.Unix(epoch, 0)
	return &t, nil
}
