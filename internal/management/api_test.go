package management

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"freightgate/internal/circuitbreaker"
	"freightgate/internal/core"
	"freightgate/internal/router"
	"freightgate/internal/storage/memory"
)

type fakeRouteStore struct {
	routes  map[string]core.Route
	targets map[string]core.Target
}

func newFakeRouteStore() *fakeRouteStore {
	return &fakeRouteStore{
		routes:  make(map[string]core.Route),
		targets: make(map[string]core.Target),
	}
}

func (f *fakeRouteStore) ListRoutes(ctx context.Context) ([]core.Route, error) {
	routes := make([]core.Route, 0, len(f.routes))
	for _, r := range f.routes {
		routes = append(routes, r)
	}
	return routes, nil
}

func (f *fakeRouteStore) UpsertRoute(ctx context.Context, route core.Route) error {
	f.routes[route.Path] = route
	return nil
}

func (f *fakeRouteStore) ListTargets(ctx context.Context) ([]core.Target, error) {
	targets := make([]core.Target, 0, len(f.targets))
	for _, t := range f.targets {
		targets = append(targets, t)
	}
	return targets, nil
}

func (f *fakeRouteStore) UpsertTarget(ctx context.Context, target core.Target) error {
	f.targets[target.ID] = target
	return nil
}

func (f *fakeRouteStore) AddTargetLoad(ctx context.Context, id string, delta int64) error {
	return nil
}

func (f *fakeRouteStore) SetTargetHealth(ctx context.Context, id string, healthy bool) error {
	return nil
}

func (f *fakeRouteStore) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAPI(t *testing.T) (*API, *circuitbreaker.Service, *fakeRouteStore) {
	t.Helper()
	kv := memory.NewStore(nil)
	t.Cleanup(func() { kv.Close() })

	logger := testLogger()
	db := newFakeRouteStore()
	breaker := circuitbreaker.New(kv, circuitbreaker.Config{
		FailureThreshold: 2,
		Services:         []string{"orders", "billing"},
	}, logger)
	table := router.NewTable(kv, db, logger)

	return NewAPI(Config{}, breaker, table, logger), breaker, db
}

func do(api *API, method, path string, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	api.mux.ServeHTTP(rec, req)
	return rec
}

func TestLiveness(t *testing.T) {
	api, _, _ := newTestAPI(t)

	rec := do(api, "GET", "/management/health/live", "")
	if rec.Code != 200 || rec.Body.String() != "OK" {
		t.Errorf("liveness = (%d, %q), want (200, OK)", rec.Code, rec.Body.String())
	}

	rec = do(api, "POST", "/management/health/live", "")
	if rec.Code != 405 {
		t.Errorf("POST liveness = %d, want 405", rec.Code)
	}
}

func TestInfo(t *testing.T) {
	api, _, _ := newTestAPI(t)

	rec := do(api, "GET", "/management/info", "")
	if rec.Code != 200 {
		t.Fatalf("info = %d, want 200", rec.Code)
	}
	var info InfoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if info.GoVersion == "" {
		t.Error("goVersion missing")
	}
}

func TestRegisterAndListRoutes(t *testing.T) {
	api, _, _ := newTestAPI(t)

	rec := do(api, "POST", "/management/routes",
		`{"path": "/orders", "allowed_methods": ["GET"], "target_service": "orders"}`)
	if rec.Code != 200 {
		t.Fatalf("register = %d body %s, want 200", rec.Code, rec.Body.String())
	}

	rec = do(api, "GET", "/management/routes", "")
	if rec.Code != 200 {
		t.Fatalf("list = %d, want 200", rec.Code)
	}
	var listing struct {
		Routes []core.Route `json:"routes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(listing.Routes) != 1 || listing.Routes[0].Path != "/orders" {
		t.Errorf("routes = %+v, want the registered route", listing.Routes)
	}
}

func TestRegisterRouteValidation(t *testing.T) {
	api, _, _ := newTestAPI(t)

	rec := do(api, "POST", "/management/routes", `{"allowed_methods": ["GET"]}`)
	if rec.Code != 400 {
		t.Errorf("invalid route = %d, want 400", rec.Code)
	}

	rec = do(api, "POST", "/management/routes", `{not json`)
	if rec.Code != 400 {
		t.Errorf("malformed payload = %d, want 400", rec.Code)
	}
}

func TestUpdateUnknownRoute(t *testing.T) {
	api, _, _ := newTestAPI(t)

	rec := do(api, "PUT", "/management/routes",
		`{"path": "/ghost", "allowed_methods": ["GET"], "target_service": "ghost"}`)
	if rec.Code != 404 {
		t.Errorf("update unknown = %d, want 404", rec.Code)
	}
}

func TestRegisterTarget(t *testing.T) {
	api, _, db := newTestAPI(t)

	rec := do(api, "POST", "/management/routes/targets",
		`{"id": "t1", "path": "/tracking", "target_service": "tracking", "weight": 1, "is_healthy": true}`)
	if rec.Code != 200 {
		t.Fatalf("register target = %d body %s, want 200", rec.Code, rec.Body.String())
	}
	if _, ok := db.targets["t1"]; !ok {
		t.Error("target not persisted")
	}
}

func TestBreakerStatusAndStatistics(t *testing.T) {
	api, breaker, _ := newTestAPI(t)
	ctx := context.Background()

	breaker.RecordFailure(ctx, "orders")
	breaker.RecordFailure(ctx, "orders")

	rec := do(api, "GET", "/management/circuit-breakers", "")
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var status map[string]circuitbreaker.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if status["orders"].State != circuitbreaker.StateOpen {
		t.Errorf("orders state = %q, want open", status["orders"].State)
	}

	rec = do(api, "GET", "/management/circuit-breakers/statistics", "")
	if rec.Code != 200 {
		t.Fatalf("statistics = %d, want 200", rec.Code)
	}
	var stats circuitbreaker.Statistics
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stats.Open != 1 || stats.TotalServices != 2 {
		t.Errorf("stats = %+v, want 1 open of 2", stats)
	}
}

func TestBreakerAttentionEmptyIsArray(t *testing.T) {
	api, _, _ := newTestAPI(t)

	rec := do(api, "GET", "/management/circuit-breakers/attention", "")
	if rec.Code != 200 {
		t.Fatalf("attention = %d, want 200", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("attention body = %q, want empty array", got)
	}
}

func TestBreakerServiceHealthAndReset(t *testing.T) {
	api, breaker, _ := newTestAPI(t)
	ctx := context.Background()

	breaker.RecordFailure(ctx, "orders")
	breaker.RecordFailure(ctx, "orders")

	rec := do(api, "GET", "/management/circuit-breakers/orders", "")
	if rec.Code != 200 {
		t.Fatalf("health = %d, want 200", rec.Code)
	}
	var health circuitbreaker.Health
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if health.State != circuitbreaker.StateOpen || health.IsHealthy {
		t.Errorf("health = %+v, want unhealthy open breaker", health)
	}

	rec = do(api, "POST", "/management/circuit-breakers/orders/reset", "")
	if rec.Code != 200 {
		t.Fatalf("reset = %d, want 200", rec.Code)
	}
	var resetResp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resetResp)
	if resetResp["state"] != circuitbreaker.StateClosed {
		t.Errorf("reset response = %v, want closed", resetResp)
	}

	state, err := breaker.State(ctx, "orders")
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state != circuitbreaker.StateClosed {
		t.Errorf("state after reset = %q, want closed", state)
	}
}

func TestBreakerResetRequiresPost(t *testing.T) {
	api, _, _ := newTestAPI(t)

	rec := do(api, "GET", "/management/circuit-breakers/orders/reset", "")
	if rec.Code != 405 {
		t.Errorf("GET reset = %d, want 405", rec.Code)
	}
}

func TestTokenAuth(t *testing.T) {
	api, _, _ := newTestAPI(t)
	api.config.Auth = &Auth{Type: "token", Token: "secret"}
	handler := api.authMiddleware(api.mux)

	req := httptest.NewRequest("GET", "/management/health/live", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != 401 {
		t.Errorf("no token = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest("GET", "/management/health/live", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Errorf("bearer token = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest("GET", "/management/health/live?token=secret", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Errorf("query token = %d, want 200", rec.Code)
	}
}

func TestBasicAuth(t *testing.T) {
	api, _, _ := newTestAPI(t)
	api.config.Auth = &Auth{Type: "basic", Users: map[string]string{"ops": "hunter2"}}
	handler := api.authMiddleware(api.mux)

	req := httptest.NewRequest("GET", "/management/health/live", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != 401 {
		t.Errorf("no credentials = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest("GET", "/management/health/live", nil)
	req.SetBasicAuth("ops", "hunter2")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Errorf("valid credentials = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest("GET", "/management/health/live", nil)
	req.SetBasicAuth("ops", "wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != 401 {
		t.Errorf("wrong password = %d, want 401", rec.Code)
	}
}
