package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"freightgate/internal/core"
	"freightgate/internal/storage/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testContext(ip, path string) *core.GatewayContext {
	headers := map[string][]string{"X-Forwarded-For": {ip}}
	req := core.NewRequest("req-1", "GET", path, path, ip+":1234", headers, nil, context.Background())
	return core.NewGatewayContext(req, &core.Route{Path: path})
}

func newTestMiddleware(t *testing.T, config Config) *Middleware {
	t.Helper()
	store := memory.NewStore(nil)
	t.Cleanup(func() { store.Close() })
	return New(store, config, nil, testLogger())
}

func TestAllowsWithinLimit(t *testing.T) {
	m := newTestMiddleware(t, Config{Requests: 3, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		gc := testContext("203.0.113.1", "/orders")
		result := m.Handle(ctx, gc)
		if !result.Continues() {
			t.Fatalf("request %d blocked within limit", i+1)
		}
		if gc.Header("X-RateLimit-Limit") != "3" {
			t.Errorf("X-RateLimit-Limit = %q, want 3", gc.Header("X-RateLimit-Limit"))
		}
	}
}

func TestBlocksOverLimit(t *testing.T) {
	m := newTestMiddleware(t, Config{Requests: 2, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if result := m.Handle(ctx, testContext("203.0.113.1", "/orders")); !result.Continues() {
			t.Fatalf("request %d blocked within limit", i+1)
		}
	}

	gc := testContext("203.0.113.1", "/orders")
	result := m.Handle(ctx, gc)
	if result.Outcome() != core.OutcomeHaltResponse {
		t.Fatalf("outcome = %v, want halt-response", result.Outcome())
	}
	env := result.Response()
	if env.StatusCode != 429 {
		t.Errorf("StatusCode = %d, want 429", env.StatusCode)
	}
	body := env.Body.(core.ErrorBody)
	if body.Error.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("error code = %q, want RATE_LIMIT_EXCEEDED", body.Error.Code)
	}
	if gc.Header("Retry-After") != "60" {
		t.Errorf("Retry-After = %q, want 60", gc.Header("Retry-After"))
	}
	if gc.Header("X-RateLimit-Remaining") != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", gc.Header("X-RateLimit-Remaining"))
	}
}

func TestBucketsAreScopedPerClientAndPath(t *testing.T) {
	m := newTestMiddleware(t, Config{Requests: 1, Window: time.Minute})
	ctx := context.Background()

	if result := m.Handle(ctx, testContext("203.0.113.1", "/orders")); !result.Continues() {
		t.Fatal("first request blocked")
	}
	if result := m.Handle(ctx, testContext("203.0.113.1", "/orders")); result.Continues() {
		t.Fatal("same client and path not limited")
	}

	// A different client and a different path both have fresh budgets
	if result := m.Handle(ctx, testContext("203.0.113.2", "/orders")); !result.Continues() {
		t.Error("different client was limited")
	}
	if result := m.Handle(ctx, testContext("203.0.113.1", "/billing")); !result.Continues() {
		t.Error("different path was limited")
	}
}

func TestWindowRollsOver(t *testing.T) {
	m := newTestMiddleware(t, Config{Requests: 1, Window: time.Minute})
	ctx := context.Background()

	base := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return base }

	if result := m.Handle(ctx, testContext("203.0.113.1", "/orders")); !result.Continues() {
		t.Fatal("first request blocked")
	}
	if result := m.Handle(ctx, testContext("203.0.113.1", "/orders")); result.Continues() {
		t.Fatal("over-limit request allowed")
	}

	// Next fixed window: fresh bucket
	m.now = func() time.Time { return base.Add(time.Minute) }
	if result := m.Handle(ctx, testContext("203.0.113.1", "/orders")); !result.Continues() {
		t.Error("request blocked after window rollover")
	}
}

func TestStoreFailureHaltsWithFailure(t *testing.T) {
	store := memory.NewStore(nil)
	t.Cleanup(func() { store.Close() })
	m := New(store, Config{Requests: 5, Window: time.Minute}, nil, testLogger())
	ctx := context.Background()

	// Poison the exact bucket key so Increment fails
	gc := testContext("203.0.113.1", "/orders")
	key := m.bucketKey("203.0.113.1", "/orders")
	if err := store.Set(ctx, key, "garbage", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	result := m.Handle(ctx, gc)
	if result.Outcome() != core.OutcomeHaltFailure {
		t.Errorf("outcome = %v, want halt-failure on store error", result.Outcome())
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	m := newTestMiddleware(t, Config{})

	if m.config.Requests != 100 {
		t.Errorf("Requests = %d, want 100", m.config.Requests)
	}
	if m.config.Window != time.Minute {
		t.Errorf("Window = %v, want 1m", m.config.Window)
	}
	if m.Name() != Name {
		t.Errorf("Name() = %q, want %q", m.Name(), Name)
	}
}

func TestRateLimitDataRecorded(t *testing.T) {
	m := newTestMiddleware(t, Config{Requests: 10, Window: time.Minute})

	gc := testContext("203.0.113.1", "/orders")
	if result := m.Handle(context.Background(), gc); !result.Continues() {
		t.Fatal("request blocked")
	}

	data, ok := gc.Get(core.DataRateLimit).(map[string]any)
	if !ok {
		t.Fatalf("rate limit data has type %T, want map", gc.Get(core.DataRateLimit))
	}
	if data["limit"] != int64(10) {
		t.Errorf("limit = %v, want 10", data["limit"])
	}
	if data["remaining"] != int64(9) {
		t.Errorf("remaining = %v, want 9", data["remaining"])
	}
}
