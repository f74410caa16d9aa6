package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"freightgate/internal/core"
	tlsutil "freightgate/pkg/tls"
)

// echoProcessor records the request it saw and replies with a canned
// response
type echoProcessor struct {
	seen core.Request
	resp core.Response
}

func (p *echoProcessor) ProcessRequest(ctx context.Context, req core.Request) core.Response {
	p.seen = req
	return p.resp
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAdapter(cfg Config, processor Processor) *Adapter {
	return New(cfg, processor, nil, nil, testLogger())
}

func TestServeHTTPWritesPipelineResponse(t *testing.T) {
	processor := &echoProcessor{
		resp: core.NewResponseWithHeaders(201, map[string]string{"X-Out": "yes"}, []byte(`{"ok":true}`)),
	}
	adapter := newTestAdapter(Config{}, processor)

	req := httptest.NewRequest("POST", "/orders", strings.NewReader(`{"sku":"A"}`))
	rec := httptest.NewRecorder()
	adapter.ServeHTTP(rec, req)

	if rec.Code != 201 {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	if rec.Header().Get("X-Out") != "yes" {
		t.Errorf("X-Out = %q, want yes", rec.Header().Get("X-Out"))
	}
	if rec.Body.String() != `{"ok":true}` {
		t.Errorf("body = %q, want pipeline payload", rec.Body.String())
	}
}

func TestServeHTTPAssignsRequestID(t *testing.T) {
	processor := &echoProcessor{resp: core.NewResponse(200, nil)}
	adapter := newTestAdapter(Config{}, processor)

	rec := httptest.NewRecorder()
	adapter.ServeHTTP(rec, httptest.NewRequest("GET", "/orders", nil))

	if processor.seen.ID() == "" {
		t.Error("pipeline request has no id")
	}

	// Distinct requests get distinct ids
	first := processor.seen.ID()
	adapter.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/orders", nil))
	if processor.seen.ID() == first {
		t.Error("request ids repeat across requests")
	}
}

func TestServeHTTPWrapsRequest(t *testing.T) {
	processor := &echoProcessor{resp: core.NewResponse(200, nil)}
	adapter := newTestAdapter(Config{}, processor)

	req := httptest.NewRequest("PUT", "/orders/7?force=1", strings.NewReader("body"))
	req.Header.Set("X-Custom", "inbound")
	adapter.ServeHTTP(httptest.NewRecorder(), req)

	seen := processor.seen
	if seen.Method() != "PUT" || seen.Path() != "/orders/7" {
		t.Errorf("request = %s %s, want PUT /orders/7", seen.Method(), seen.Path())
	}
	if !strings.Contains(seen.URL(), "force=1") {
		t.Errorf("URL = %q, want query preserved", seen.URL())
	}
	if core.HeaderValue(seen, "X-Custom") != "inbound" {
		t.Error("inbound header lost")
	}
	if core.HeaderValue(seen, "X-Forwarded-Proto") != "http" {
		t.Errorf("X-Forwarded-Proto = %q, want http", core.HeaderValue(seen, "X-Forwarded-Proto"))
	}
}

func TestServeHTTPRejectsOversizeDeclaredBody(t *testing.T) {
	processor := &echoProcessor{resp: core.NewResponse(200, nil)}
	adapter := newTestAdapter(Config{MaxRequestSize: 8}, processor)

	req := httptest.NewRequest("POST", "/orders", strings.NewReader("0123456789abcdef"))
	rec := httptest.NewRecorder()
	adapter.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
	if processor.seen != nil {
		t.Error("pipeline invoked for an oversize request")
	}
}

func TestStartAndStop(t *testing.T) {
	processor := &echoProcessor{resp: core.NewResponse(204, nil)}
	adapter := newTestAdapter(Config{Host: "127.0.0.1", Port: 0}, processor)

	ctx := context.Background()
	if err := adapter.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := adapter.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStartFailsOnBrokenTLSConfig(t *testing.T) {
	adapter := newTestAdapter(Config{
		Host: "127.0.0.1",
		Port: 0,
		TLS: &tlsutil.Config{
			Enabled:  true,
			CertFile: "/nonexistent/cert.pem",
			KeyFile:  "/nonexistent/key.pem",
		},
	}, &echoProcessor{})

	if err := adapter.Start(context.Background()); err == nil {
		adapter.Stop(context.Background())
		t.Error("Start succeeded with unreadable TLS material")
	}
}
