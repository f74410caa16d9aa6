package backend

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"freightgate/internal/core"
	"freightgate/pkg/errors"
)

func testContext(method, rawURL string, headers map[string][]string, body io.ReadCloser, route *core.Route) *core.GatewayContext {
	if headers == nil {
		headers = make(map[string][]string)
	}
	path := rawURL
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	req := core.NewRequest("req-77", method, path, rawURL, "10.0.0.1:1234",
		headers, body, context.Background())
	return core.NewGatewayContext(req, route)
}

func TestForwardProxiesRequest(t *testing.T) {
	var seen *http.Request
	var seenBody []byte
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Clone(context.Background())
		seenBody, _ = io.ReadAll(r.Body)
		w.Header().Set("X-Upstream", "orders")
		w.WriteHeader(201)
		w.Write([]byte(`{"created": true}`))
	}))
	defer upstream.Close()

	c := NewHTTPConnector()
	gc := testContext("POST", "/orders?expand=items", map[string][]string{
		"Content-Type": {"application/json"},
		"Connection":   {"keep-alive"},
	}, nil, &core.Route{Path: "/orders"})
	gc.Set(core.DataRawBody, []byte(`{"sku": "A-1"}`))

	resp, err := c.Forward(context.Background(), gc, &core.Service{Name: "orders", BaseURL: upstream.URL})
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	defer resp.Body().Close()

	if resp.StatusCode() != 201 {
		t.Errorf("StatusCode = %d, want 201", resp.StatusCode())
	}
	if got := resp.Headers()["X-Upstream"]; len(got) == 0 || got[0] != "orders" {
		t.Errorf("X-Upstream = %v, want orders", got)
	}
	payload, _ := io.ReadAll(resp.Body())
	if string(payload) != `{"created": true}` {
		t.Errorf("body = %q, want upstream payload", payload)
	}

	if seen.URL.Path != "/orders" || seen.URL.RawQuery != "expand=items" {
		t.Errorf("upstream saw %q, want /orders?expand=items", seen.URL.String())
	}
	if string(seenBody) != `{"sku": "A-1"}` {
		t.Errorf("upstream body = %q, want the buffered raw body", seenBody)
	}
	if seen.Header.Get("Content-Type") != "application/json" {
		t.Error("Content-Type not forwarded")
	}
	if seen.Header.Get("Connection") != "" {
		t.Error("hop-by-hop Connection header forwarded")
	}
}

func TestForwardInjectsGatewayHeaders(t *testing.T) {
	var seen http.Header
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
		w.WriteHeader(200)
	}))
	defer upstream.Close()

	c := NewHTTPConnector()
	gc := testContext("GET", "/orders", map[string][]string{
		"X-Forwarded-For": {"203.0.113.9"},
	}, nil, &core.Route{Path: "/orders"})

	resp, err := c.Forward(context.Background(), gc, &core.Service{Name: "orders", BaseURL: upstream.URL})
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	resp.Body().Close()

	if seen.Get("X-Gateway-Request-ID") != "req-77" {
		t.Errorf("X-Gateway-Request-ID = %q, want req-77", seen.Get("X-Gateway-Request-ID"))
	}
	if seen.Get("X-Gateway-Timestamp") == "" {
		t.Error("X-Gateway-Timestamp missing")
	}
	if seen.Get("X-Forwarded-For") != "203.0.113.9" {
		t.Errorf("X-Forwarded-For = %q, want the original client", seen.Get("X-Forwarded-For"))
	}
}

func TestForwardUpstreamCredentials(t *testing.T) {
	var seen http.Header
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
		w.WriteHeader(200)
	}))
	defer upstream.Close()
	c := NewHTTPConnector()

	t.Run("bearer", func(t *testing.T) {
		gc := testContext("GET", "/billing", nil, nil, &core.Route{Path: "/billing", AuthType: core.AuthBearer})
		resp, err := c.Forward(context.Background(), gc,
			&core.Service{Name: "billing", BaseURL: upstream.URL, Token: "svc-token"})
		if err != nil {
			t.Fatalf("Forward: %v", err)
		}
		resp.Body().Close()
		if seen.Get("Authorization") != "Bearer svc-token" {
			t.Errorf("Authorization = %q, want Bearer svc-token", seen.Get("Authorization"))
		}
	})

	t.Run("apikey", func(t *testing.T) {
		gc := testContext("GET", "/orders", nil, nil, &core.Route{Path: "/orders", AuthType: core.AuthAPIKey})
		resp, err := c.Forward(context.Background(), gc,
			&core.Service{Name: "orders", BaseURL: upstream.URL, APIKey: "svc-key"})
		if err != nil {
			t.Fatalf("Forward: %v", err)
		}
		resp.Body().Close()
		if seen.Get("X-API-Key") != "svc-key" {
			t.Errorf("X-API-Key = %q, want svc-key", seen.Get("X-API-Key"))
		}
	})
}

func TestForwardNon2xxIsError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer upstream.Close()

	c := NewHTTPConnector()
	gc := testContext("GET", "/orders", nil, nil, &core.Route{Path: "/orders"})

	_, err := c.Forward(context.Background(), gc, &core.Service{Name: "orders", BaseURL: upstream.URL})
	if err == nil {
		t.Fatal("Forward succeeded on a 500 upstream")
	}
	var gerr *errors.Error
	if !errors.As(err, &gerr) || gerr.Type != errors.ErrorTypeUnavailable {
		t.Fatalf("error = %v, want unavailable", err)
	}
	if gerr.Details["status"] != 500 {
		t.Errorf("status detail = %v, want 500", gerr.Details["status"])
	}
	if gerr.Details["service"] != "orders" {
		t.Errorf("service detail = %v, want orders", gerr.Details["service"])
	}
}

func TestForwardConnectionRefused(t *testing.T) {
	// Reserve a port, then close it so nothing is listening
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead := upstream.URL
	upstream.Close()

	c := NewHTTPConnector()
	gc := testContext("GET", "/orders", nil, nil, &core.Route{Path: "/orders"})

	_, err := c.Forward(context.Background(), gc, &core.Service{Name: "orders", BaseURL: dead})
	if err == nil {
		t.Fatal("Forward succeeded against a dead upstream")
	}
	var gerr *errors.Error
	if !errors.As(err, &gerr) || gerr.Type != errors.ErrorTypeUnavailable {
		t.Errorf("error = %v, want unavailable", err)
	}
	if gerr.Cause == nil {
		t.Error("transport error lost its cause")
	}
}

func TestForwardRouteTimeout(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer upstream.Close()

	c := NewHTTPConnector()
	gc := testContext("GET", "/orders", nil, nil,
		&core.Route{Path: "/orders", Timeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := c.Forward(context.Background(), gc, &core.Service{Name: "orders", BaseURL: upstream.URL})
	if err == nil {
		t.Fatal("Forward succeeded past the route timeout")
	}
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("Forward took %v, want the route timeout to cut it short", elapsed)
	}
}

func TestForwardEmptyBaseURL(t *testing.T) {
	c := NewHTTPConnector()
	gc := testContext("GET", "/orders", nil, nil, &core.Route{Path: "/orders"})

	_, err := c.Forward(context.Background(), gc, &core.Service{Name: "orders"})
	if err == nil {
		t.Fatal("Forward succeeded without a base URL")
	}
}

func TestForwardStripsTrailingSlashFromBase(t *testing.T) {
	var seenPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenPath = r.URL.Path
		w.WriteHeader(200)
	}))
	defer upstream.Close()

	c := NewHTTPConnector()
	gc := testContext("GET", "/orders", nil, nil, &core.Route{Path: "/orders"})

	resp, err := c.Forward(context.Background(), gc, &core.Service{Name: "orders", BaseURL: upstream.URL + "/"})
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	resp.Body().Close()

	if seenPath != "/orders" {
		t.Errorf("upstream path = %q, want /orders", seenPath)
	}
}

func TestClientPooledPerConnectTimeout(t *testing.T) {
	c := NewHTTPConnector()

	a := c.client(5 * time.Second)
	b := c.client(5 * time.Second)
	other := c.client(10 * time.Second)

	if a != b {
		t.Error("same connect timeout returned distinct clients")
	}
	if a == other {
		t.Error("distinct connect timeouts share a client")
	}
}

func TestIsHopByHopHeader(t *testing.T) {
	for _, h := range []string{"connection", "Keep-Alive", "transfer-encoding", "Upgrade"} {
		if !isHopByHopHeader(h) {
			t.Errorf("isHopByHopHeader(%q) = false, want true", h)
		}
	}
	for _, h := range []string{"Content-Type", "Authorization", "X-Request-ID"} {
		if isHopByHopHeader(h) {
			t.Errorf("isHopByHopHeader(%q) = true, want false", h)
		}
	}
}
