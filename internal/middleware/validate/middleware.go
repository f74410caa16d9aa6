package validate

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"freightgate/internal/core"
)

// Name identifies this stage in chain diagnostics
const Name = "validation"

// Config holds validation configuration
type Config struct {
	// MaxBodyBytes caps the request body the gateway will buffer
	MaxBodyBytes int64 `yaml:"maxBodyBytes"`
}

// DefaultMaxBodyBytes is applied when no limit is configured
const DefaultMaxBodyBytes = 10 << 20 // 10 MiB

// Middleware checks JSON request bodies: size capped, syntax valid.
// The buffered body is stored in the context so the proxy step can
// forward it after the original reader has been consumed.
type Middleware struct {
	config Config
	logger *slog.Logger
}

// New creates the validation stage
func New(config Config, logger *slog.Logger) *Middleware {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Middleware{
		config: config,
		logger: logger.With("middleware", Name),
	}
}

// Name returns the stage name
func (m *Middleware) Name() string { return Name }

// Handle validates the request payload
func (m *Middleware) Handle(ctx context.Context, gc *core.GatewayContext) core.ChainResult {
	req := gc.Request()
	if !hasBody(req.Method()) || !gc.IsJSONRequest() {
		return core.Continue()
	}

	body := req.Body()
	if body == nil {
		return core.Continue()
	}
	defer body.Close()

	payload, err := io.ReadAll(io.LimitReader(body, m.config.MaxBodyBytes+1))
	if err != nil {
		m.logger.Error("failed to read request body", "error", err, "request_id", gc.RequestID())
		return core.HaltWithFailure()
	}
	if int64(len(payload)) > m.config.MaxBodyBytes {
		return m.invalid(gc, map[string]any{
			"body": "payload exceeds maximum size",
			"max_bytes": m.config.MaxBodyBytes,
		})
	}

	if len(payload) > 0 {
		var parsed any
		if err := json.Unmarshal(payload, &parsed); err != nil {
			gc.Set(core.DataValidationErrors, map[string]any{"body": "malformed JSON"})
			return m.invalid(gc, map[string]any{"body": "malformed JSON"})
		}
		gc.Set(core.DataValidatedPayload, parsed)
	}

	// Keep the raw bytes for the proxy step; the original reader is spent
	gc.Set(core.DataRawBody, payload)
	return core.Continue()
}

func (m *Middleware) invalid(gc *core.GatewayContext, fieldErrors map[string]any) core.ChainResult {
	resp := gc.CreateErrorResponse("request validation failed", "VALIDATION_ERROR", 422, map[string]any{
		"errors": fieldErrors,
	})
	return core.HaltWithResponse(resp)
}

// hasBody reports whether the method conventionally carries a payload
func hasBody(method string) bool {
	switch method {
	case "POST", "PUT", "PATCH", "DELETE":
		return true
	default:
		return false
	}
}

// Ensure Middleware implements core.Middleware
var _ core.Middleware = (*Middleware)(nil)
