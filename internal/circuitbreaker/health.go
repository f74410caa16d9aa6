package circuitbreaker

import (
	"context"
	"time"
)

// Attention levels for open breakers
const (
	AttentionCritical = "critical"
	AttentionHigh     = "high"
	AttentionMedium   = "medium"
	AttentionLow      = "low"
)

// Thresholds for attention classification
const (
	criticalFailures = 10
	highFailures     = 5
	mediumIdle       = 5 * time.Minute
)

// Snapshot is the stored record for one service
type Snapshot struct {
	Service      string `json:"service"`
	State        string `json:"state"`
	FailureCount int64  `json:"failure_count"`
	CallCount    int64  `json:"call_count"`
	SuccessCount int64  `json:"success_count"`
	// LastFailureTime is epoch seconds, nil if no failure recorded
	LastFailureTime *int64 `json:"last_failure_time"`
}

// Health extends a snapshot with derived operational flags
type Health struct {
	Snapshot
	IsHealthy            bool   `json:"is_healthy"`
	CanMakeCalls         bool   `json:"can_make_calls"`
	TimeSinceLastFailure *int64 `json:"time_since_last_failure"`
	RecoveryEligible     bool   `json:"recovery_eligible"`
}

// Attention is an open breaker annotated with how urgently an operator
// should look at it
type Attention struct {
	Snapshot
	AttentionLevel string `json:"attention_level"`
}

// Statistics aggregates breaker state across the configured services
type Statistics struct {
	TotalServices int   `json:"total_services"`
	Closed        int   `json:"closed"`
	Open          int   `json:"open"`
	HalfOpen      int   `json:"half_open"`
	TotalFailures int64 `json:"total_failures"`
}

// snapshot reads the full stored record for a service
func (s *Service) snapshot(ctx context.Context, service string) (Snapshot, error) {
	state, err := s.State(ctx, service)
	if err != nil {
		return Snapshot{}, err
	}
	failures, err := s.counter(ctx, failuresKey(service))
	if err != nil {
		return Snapshot{}, err
	}
	calls, err := s.counter(ctx, callsKey(service))
	if err != nil {
		return Snapshot{}, err
	}
	successes, err := s.counter(ctx, successesKey(service))
	if err != nil {
		return Snapshot{}, err
	}
	lastFailure, err := s.lastFailureTime(ctx, service)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Service:      service,
		State:        state,
		FailureCount: failures,
		CallCount:    calls,
		SuccessCount: successes,
	}
	if lastFailure != nil {
		epoch := lastFailure.Unix()
		snap.LastFailureTime = &epoch
	}
	return snap, nil
}

// Status returns a per-configured-service snapshot
func (s *Service) Status(ctx context.Context) (map[string]Snapshot, error) {
	status := make(map[string]Snapshot, len(s.config.Services))
	for _, service := range s.config.Services {
		snap, err := s.snapshot(ctx, service)
		if err != nil {
			return nil, err
		}
		status[service] = snap
	}
	return status, nil
}

// GetStatistics aggregates state counts and total failures across the
// configured services
func (s *Service) GetStatistics(ctx context.Context) (Statistics, error) {
	stats := Statistics{TotalServices: len(s.config.Services)}
	for _, service := range s.config.Services {
		snap, err := s.snapshot(ctx, service)
		if err != nil {
			return Statistics{}, err
		}
		switch snap.State {
		case StateOpen:
			stats.Open++
		case StateHalfOpen:
			stats.HalfOpen++
		default:
			stats.Closed++
		}
		stats.TotalFailures += snap.FailureCount
	}
	return stats, nil
}

// CheckServiceHealth returns the snapshot for one service with derived
// health flags. It does not trigger state transitions.
func (s *Service) CheckServiceHealth(ctx context.Context, service string) (Health, error) {
	snap, err := s.snapshot(ctx, service)
	if err != nil {
		return Health{}, err
	}

	health := Health{
		Snapshot:  snap,
		IsHealthy: snap.State == StateClosed,
	}

	if snap.LastFailureTime != nil {
		since := s.now().Unix() - *snap.LastFailureTime
		if since < 0 {
			since = 0
		}
		health.TimeSinceLastFailure = &since
		health.RecoveryEligible = snap.State == StateOpen &&
			time.Duration(since)*time.Second >= s.config.RecoveryTimeout
	}

	switch snap.State {
	case StateClosed:
		health.CanMakeCalls = true
	case StateHalfOpen:
		health.CanMakeCalls = snap.CallCount < int64(s.config.HalfOpenMaxCalls)
	case StateOpen:
		health.CanMakeCalls = health.RecoveryEligible
	}

	return health, nil
}

// ServicesNeedingAttention returns every open breaker annotated with
// an attention level: critical (heavy failure count), high (at the
// trip threshold), medium (failing but idle for a while), low.
func (s *Service) ServicesNeedingAttention(ctx context.Context) ([]Attention, error) {
	var needing []Attention
	for _, service := range s.config.Services {
		snap, err := s.snapshot(ctx, service)
		if err != nil {
			return nil, err
		}
		if snap.State != StateOpen {
			continue
		}
		needing = append(needing, Attention{
			Snapshot:       snap,
			AttentionLevel: s.attentionLevel(snap),
		})
	}
	return needing, nil
}

func (s *Service) attentionLevel(snap Snapshot) string {
	switch {
	case snap.FailureCount >= criticalFailures:
		return AttentionCritical
	case snap.FailureCount >= highFailures:
		return AttentionHigh
	case snap.LastFailureTime != nil &&
		s.now().Sub(time.Unix(*snap.LastFailureTime, 0)) > mediumIdle:
		return AttentionMedium
	default:
		return AttentionLow
	}
}
