package transform

import (
	"context"
	"encoding/json"
	"log/slog"

	"freightgate/internal/core"
)

// Name identifies this stage in chain diagnostics
const Name = "transformation"

// Middleware normalizes the request for proxying and stamps the
// gateway's identification headers onto the eventual response. JSON
// payloads that passed validation are re-marshaled compact so the
// upstream always receives canonical JSON.
type Middleware struct {
	logger *slog.Logger
}

// New creates the transformation stage
func New(logger *slog.Logger) *Middleware {
	return &Middleware{
		logger: logger.With("middleware", Name),
	}
}

// Name returns the stage name
func (m *Middleware) Name() string { return Name }

// Handle applies request and response transformations
func (m *Middleware) Handle(ctx context.Context, gc *core.GatewayContext) core.ChainResult {
	gc.SetHeader("X-Request-ID", gc.RequestID())
	gc.SetHeader("X-Gateway", "freightgate")

	if parsed := gc.Get(core.DataValidatedPayload); parsed != nil {
		compact, err := json.Marshal(parsed)
		if err != nil {
			// The payload already survived json.Unmarshal; a marshal
			// failure here means a programming error upstream
			m.logger.Error("failed to re-marshal payload", "request_id", gc.RequestID(), "error", err)
			return core.HaltWithFailure()
		}
		gc.Set(core.DataRawBody, compact)
	}

	return core.Continue()
}

// Ensure Middleware implements core.Middleware
var _ core.Middleware = (*Middleware)(nil)
