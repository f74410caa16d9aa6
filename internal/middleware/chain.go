package middleware

import (
	"context"
	"log/slog"

	"freightgate/internal/core"
	"freightgate/pkg/errors"
)

// Chain executes middleware stages in a fixed order: rate limit, auth,
// validation, transformation, monitoring. Execution is strictly
// sequential; each stage fully owns the gateway context until it
// returns.
type Chain struct {
	stages []core.Middleware
	logger *slog.Logger
}

// NewChain creates a chain over the given stages, in order
func NewChain(logger *slog.Logger, stages ...core.Middleware) *Chain {
	return &Chain{
		stages: stages,
		logger: logger.With("component", "middleware"),
	}
}

// Execute runs the chain. A stage halting with a response makes that
// response final (nil error); a stage halting with a failure aborts
// with a generic processing error. (nil, nil) means every stage
// continued and the request should proceed to the proxy.
func (c *Chain) Execute(ctx context.Context, gc *core.GatewayContext) (*core.Envelope, error) {
	for _, stage := range c.stages {
		result := stage.Handle(ctx, gc)
		switch result.Outcome() {
		case core.OutcomeContinue:
			continue
		case core.OutcomeHaltResponse:
			c.logger.Debug("middleware halted with response",
				"middleware", stage.Name(),
				"request_id", gc.RequestID(),
				"status", result.Response().StatusCode,
			)
			return result.Response(), nil
		default:
			return nil, errors.NewError(errors.ErrorTypeInternal, "middleware processing failed").
				WithDetail("middleware", stage.Name()).
				WithDetail("request_id", gc.RequestID())
		}
	}
	return nil, nil
}

// Stages returns the stage names in execution order
func (c *Chain) Stages() []string {
	names := make([]string, len(c.stages))
	for i, s := range c.stages {
		names[i] = s.Name()
	}
	return names
}
