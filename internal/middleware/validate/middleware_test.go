package validate

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"freightgate/internal/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testContext(method, contentType, body string) *core.GatewayContext {
	headers := make(map[string][]string)
	if contentType != "" {
		headers["Content-Type"] = []string{contentType}
	}
	var rc io.ReadCloser
	if body != "" {
		rc = io.NopCloser(strings.NewReader(body))
	}
	req := core.NewRequest("req-1", method, "/orders", "/orders", "10.0.0.1:1234",
		headers, rc, context.Background())
	return core.NewGatewayContext(req, &core.Route{Path: "/orders"})
}

func TestValidJSONBody(t *testing.T) {
	m := New(Config{}, testLogger())
	gc := testContext("POST", "application/json", `{"order_id": 42, "priority": "express"}`)

	result := m.Handle(context.Background(), gc)
	if !result.Continues() {
		t.Fatalf("valid JSON rejected: %+v", result.Response())
	}

	parsed, ok := gc.Get(core.DataValidatedPayload).(map[string]any)
	if !ok {
		t.Fatalf("validated payload has type %T, want map", gc.Get(core.DataValidatedPayload))
	}
	if parsed["priority"] != "express" {
		t.Errorf("priority = %v, want express", parsed["priority"])
	}

	raw, ok := gc.Get(core.DataRawBody).([]byte)
	if !ok || len(raw) == 0 {
		t.Error("raw body not buffered for the proxy step")
	}
}

func TestMalformedJSONRejected(t *testing.T) {
	m := New(Config{}, testLogger())
	gc := testContext("POST", "application/json", `{"order_id": `)

	result := m.Handle(context.Background(), gc)
	if result.Outcome() != core.OutcomeHaltResponse {
		t.Fatalf("outcome = %v, want halt-response", result.Outcome())
	}
	env := result.Response()
	if env.StatusCode != 422 {
		t.Errorf("StatusCode = %d, want 422", env.StatusCode)
	}
	body := env.Body.(core.ErrorBody)
	if body.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("error code = %q, want VALIDATION_ERROR", body.Error.Code)
	}
	if gc.Get(core.DataValidationErrors) == nil {
		t.Error("validation errors not recorded in context")
	}
}

func TestOversizeBodyRejected(t *testing.T) {
	m := New(Config{MaxBodyBytes: 16}, testLogger())
	gc := testContext("POST", "application/json", `{"note": "`+strings.Repeat("x", 64)+`"}`)

	result := m.Handle(context.Background(), gc)
	if result.Outcome() != core.OutcomeHaltResponse {
		t.Fatalf("outcome = %v, want halt-response", result.Outcome())
	}
	if result.Response().StatusCode != 422 {
		t.Errorf("StatusCode = %d, want 422", result.Response().StatusCode)
	}
}

func TestBodyAtLimitAccepted(t *testing.T) {
	payload := `{"a":"bb"}`
	m := New(Config{MaxBodyBytes: int64(len(payload))}, testLogger())
	gc := testContext("POST", "application/json", payload)

	if result := m.Handle(context.Background(), gc); !result.Continues() {
		t.Errorf("body exactly at the limit rejected")
	}
}

func TestNonJSONContentSkipped(t *testing.T) {
	m := New(Config{}, testLogger())
	gc := testContext("POST", "text/plain", "not json at all")

	if result := m.Handle(context.Background(), gc); !result.Continues() {
		t.Error("non-JSON request blocked")
	}
	if gc.Get(core.DataRawBody) != nil {
		t.Error("non-JSON body was buffered")
	}
}

func TestBodylessMethodsSkipped(t *testing.T) {
	m := New(Config{}, testLogger())

	for _, method := range []string{"GET", "HEAD", "OPTIONS"} {
		gc := testContext(method, "application/json", `{"ignored": true}`)
		if result := m.Handle(context.Background(), gc); !result.Continues() {
			t.Errorf("%s request blocked", method)
		}
	}
}

func TestEmptyBodyAccepted(t *testing.T) {
	m := New(Config{}, testLogger())
	gc := testContext("DELETE", "application/json", "")

	if result := m.Handle(context.Background(), gc); !result.Continues() {
		t.Error("empty-body DELETE blocked")
	}
}

func TestJSONArrayAccepted(t *testing.T) {
	m := New(Config{}, testLogger())
	gc := testContext("PUT", "application/json", `[1, 2, 3]`)

	if result := m.Handle(context.Background(), gc); !result.Continues() {
		t.Error("JSON array rejected")
	}
	if _, ok := gc.Get(core.DataValidatedPayload).([]any); !ok {
		t.Errorf("validated payload has type %T, want slice", gc.Get(core.DataValidatedPayload))
	}
}

func TestDefaultMaxBodyApplied(t *testing.T) {
	m := New(Config{}, testLogger())
	if m.config.MaxBodyBytes != DefaultMaxBodyBytes {
		t.Errorf("MaxBodyBytes = %d, want default %d", m.config.MaxBodyBytes, DefaultMaxBodyBytes)
	}
}
