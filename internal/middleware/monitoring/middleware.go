package monitoring

import (
	"context"
	"log/slog"

	"freightgate/internal/core"
	"freightgate/internal/metrics"
)

// Name identifies this stage in chain diagnostics
const Name = "monitoring"

// Middleware observes requests that cleared the earlier stages. It
// never halts; its job is counters and a debug trail.
type Middleware struct {
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates the monitoring stage
func New(m *metrics.Metrics, logger *slog.Logger) *Middleware {
	return &Middleware{
		metrics: m,
		logger:  logger.With("middleware", Name),
	}
}

// Name returns the stage name
func (m *Middleware) Name() string { return Name }

// Handle records pipeline metrics and continues
func (m *Middleware) Handle(ctx context.Context, gc *core.GatewayContext) core.ChainResult {
	req := gc.Request()
	if m.metrics != nil {
		m.metrics.PipelineRequests.WithLabelValues(req.Method(), req.Path()).Inc()
	}

	m.logger.Debug("request cleared pipeline",
		"request_id", gc.RequestID(),
		"method", req.Method(),
		"path", req.Path(),
		"service", gc.Route().TargetService,
		"authenticated", gc.Get(core.DataUser) != nil,
	)

	return core.Continue()
}

// Ensure Middleware implements core.Middleware
var _ core.Middleware = (*Middleware)(nil)
