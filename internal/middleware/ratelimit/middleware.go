package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"freightgate/internal/core"
	"freightgate/internal/metrics"
	"freightgate/internal/storage"
)

// Name identifies this stage in chain diagnostics
const Name = "rate_limit"

// Config holds rate limit configuration
type Config struct {
	// Requests is the number of requests allowed per window
	Requests int64 `yaml:"requests"`
	// Window is the fixed counting window
	Window time.Duration `yaml:"window"`
}

// DefaultConfig returns the default rate limit configuration
func DefaultConfig() Config {
	return Config{
		Requests: 100,
		Window:   time.Minute,
	}
}

// Middleware enforces a fixed-window per-client limit. Counters live
// in the shared KV store under window-bucketed keys, so every gateway
// process counts against the same budget and a bucket expires on its
// own without per-call TTL bookkeeping.
type Middleware struct {
	store   storage.KVStore
	config  Config
	metrics *metrics.Metrics
	logger  *slog.Logger

	// now is swapped in tests
	now func() time.Time
}

// New creates the rate limit stage
func New(store storage.KVStore, config Config, m *metrics.Metrics, logger *slog.Logger) *Middleware {
	if config.Requests <= 0 {
		config.Requests = DefaultConfig().Requests
	}
	if config.Window <= 0 {
		config.Window = DefaultConfig().Window
	}
	return &Middleware{
		store:   store,
		config:  config,
		metrics: m,
		logger:  logger.With("middleware", Name),
		now:     time.Now,
	}
}

// Name returns the stage name
func (m *Middleware) Name() string { return Name }

// Handle counts the request against the client's current window
func (m *Middleware) Handle(ctx context.Context, gc *core.GatewayContext) core.ChainResult {
	clientIP, _ := gc.Meta(core.MetaClientIP).(string)
	key := m.bucketKey(clientIP, gc.Request().Path())

	count, err := m.store.Increment(ctx, key, 1, m.config.Window)
	if err != nil {
		m.logger.Error("rate limit store unavailable", "error", err, "request_id", gc.RequestID())
		return core.HaltWithFailure()
	}

	remaining := m.config.Requests - count
	if remaining < 0 {
		remaining = 0
	}

	gc.SetHeader("X-RateLimit-Limit", strconv.FormatInt(m.config.Requests, 10))
	gc.SetHeader("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	gc.Set(core.DataRateLimit, map[string]any{
		"limit":     m.config.Requests,
		"remaining": remaining,
		"window":    m.config.Window.String(),
	})

	if count > m.config.Requests {
		if m.metrics != nil {
			m.metrics.RateLimitRejected.WithLabelValues(gc.Request().Path()).Inc()
		}
		m.logger.Warn("rate limit exceeded",
			"client_ip", clientIP,
			"path", gc.Request().Path(),
			"count", count,
		)
		gc.SetHeader("Retry-After", strconv.Itoa(int(m.config.Window.Seconds())))
		resp := gc.CreateErrorResponse("rate limit exceeded", "RATE_LIMIT_EXCEEDED", 429, map[string]any{
			"limit":  m.config.Requests,
			"window": m.config.Window.String(),
		})
		return core.HaltWithResponse(resp)
	}

	return core.Continue()
}

// bucketKey derives the fixed-window counter key for a client
func (m *Middleware) bucketKey(clientIP, path string) string {
	bucket := m.now().Unix() / int64(m.config.Window.Seconds())
	return fmt.Sprintf("rate_limit:%s:%s:%d", clientIP, path, bucket)
}

// Ensure Middleware implements core.Middleware
var _ core.Middleware = (*Middleware)(nil)
