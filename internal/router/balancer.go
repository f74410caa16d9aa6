package router

import (
	"freightgate/internal/core"
	"freightgate/pkg/errors"
)

// LeastLoadBalancer picks the eligible target carrying the least load.
// Eligible means weight > 0 and healthy; ties go to the first target
// in table order.
type LeastLoadBalancer struct{}

// NewLeastLoadBalancer creates a new least-load balancer
func NewLeastLoadBalancer() *LeastLoadBalancer {
	return &LeastLoadBalancer{}
}

// Select returns the minimum-load eligible target. The caller is
// responsible for recording the selection in the backing store.
func (b *LeastLoadBalancer) Select(targets []*core.Target) (*core.Target, error) {
	var selected *core.Target
	var minLoad int64 = -1

	for _, t := range targets {
		if !t.Eligible() {
			continue
		}
		if minLoad == -1 || t.CurrentLoad < minLoad {
			selected = t
			minLoad = t.CurrentLoad
		}
	}

	if selected == nil {
		return nil, errors.NewError(errors.ErrorTypeUnavailable, "no healthy targets")
	}
	return selected, nil
}
