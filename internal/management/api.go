package management

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"time"

	"freightgate/internal/circuitbreaker"
	"freightgate/internal/core"
	"freightgate/internal/metrics"
	"freightgate/internal/router"
	"freightgate/pkg/errors"
)

// Config holds management API configuration
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	BasePath string `yaml:"basePath"`
	Auth     *Auth  `yaml:"auth,omitempty"`
}

// Auth configures management endpoint authentication
type Auth struct {
	Type  string            `yaml:"type"` // token | basic
	Token string            `yaml:"token,omitempty"`
	Users map[string]string `yaml:"users,omitempty"`
}

// API provides runtime management endpoints: circuit breaker
// inspection and reset, route registration, and the metrics scrape
// endpoint.
type API struct {
	config  Config
	logger  *slog.Logger
	server  *http.Server
	mux     *http.ServeMux
	breaker *circuitbreaker.Service
	routes  *router.Table

	startTime time.Time
}

// NewAPI creates a new management API
func NewAPI(cfg Config, breaker *circuitbreaker.Service, routes *router.Table, logger *slog.Logger) *API {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
	if cfg.BasePath == "" {
		cfg.BasePath = "/management"
	}

	api := &API{
		config:    cfg,
		logger:    logger.With("component", "management-api"),
		mux:       http.NewServeMux(),
		breaker:   breaker,
		routes:    routes,
		startTime: time.Now(),
	}
	api.setupRoutes()
	return api
}

// setupRoutes configures all management endpoints
func (api *API) setupRoutes() {
	basePath := api.config.BasePath

	api.mux.HandleFunc(basePath+"/health/live", api.handleLiveness)
	api.mux.HandleFunc(basePath+"/info", api.handleInfo)

	api.mux.HandleFunc(basePath+"/routes", api.handleRoutes)
	api.mux.HandleFunc(basePath+"/routes/targets", api.handleTargets)

	api.mux.HandleFunc(basePath+"/circuit-breakers", api.handleBreakerStatus)
	api.mux.HandleFunc(basePath+"/circuit-breakers/statistics", api.handleBreakerStatistics)
	api.mux.HandleFunc(basePath+"/circuit-breakers/attention", api.handleBreakerAttention)
	api.mux.HandleFunc(basePath+"/circuit-breakers/", api.handleBreakerService)

	api.mux.Handle("/metrics", metrics.Handler())
}

// Start starts the management API server
func (api *API) Start(ctx context.Context) error {
	if !api.config.Enabled {
		return nil
	}

	handler := http.Handler(api.mux)
	if api.config.Auth != nil {
		handler = api.authMiddleware(handler)
	}

	addr := fmt.Sprintf("%s:%d", api.config.Host, api.config.Port)
	api.server = &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		api.logger.Info("starting management API", "address", addr)
		if err := api.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			api.logger.Error("management API error", "error", err)
		}
	}()

	return nil
}

// Stop stops the management API server
func (api *API) Stop(ctx context.Context) error {
	if api.server == nil {
		return nil
	}
	api.logger.Info("stopping management API")
	return api.server.Shutdown(ctx)
}

// authMiddleware implements authentication for management endpoints
func (api *API) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch api.config.Auth.Type {
		case "token":
			token := r.Header.Get("Authorization")
			if token == "" {
				token = r.URL.Query().Get("token")
			}
			if token != "Bearer "+api.config.Auth.Token && token != api.config.Auth.Token {
				api.writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

		case "basic":
			username, password, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="Management API"`)
				api.writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			expectedPass, exists := api.config.Auth.Users[username]
			if !exists || password != expectedPass {
				api.writeError(w, http.StatusUnauthorized, "Invalid credentials")
				return
			}

		default:
			api.writeError(w, http.StatusInternalServerError, "Invalid auth configuration")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// InfoResponse describes the running process
type InfoResponse struct {
	Version   string    `json:"version"`
	StartTime time.Time `json:"startTime"`
	Uptime    string    `json:"uptime"`
	GoVersion string    `json:"goVersion"`
}

func (api *API) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (api *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	api.writeJSON(w, http.StatusOK, InfoResponse{
		Version:   "1.0.0",
		StartTime: api.startTime,
		Uptime:    time.Since(api.startTime).String(),
		GoVersion: runtime.Version(),
	})
}

// handleRoutes lists routes on GET, registers on POST, updates on PUT
func (api *API) handleRoutes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		routes, err := api.routes.Routes(r.Context())
		if err != nil {
			api.writeServiceError(w, err)
			return
		}
		api.writeJSON(w, http.StatusOK, map[string]any{"routes": routes})

	case http.MethodPost, http.MethodPut:
		var route core.Route
		if err := json.NewDecoder(r.Body).Decode(&route); err != nil {
			api.writeError(w, http.StatusBadRequest, "Invalid route payload")
			return
		}
		var err error
		if r.Method == http.MethodPost {
			err = api.routes.Register(r.Context(), route)
		} else {
			err = api.routes.Update(r.Context(), route)
		}
		if err != nil {
			api.writeServiceError(w, err)
			return
		}
		api.writeJSON(w, http.StatusOK, map[string]any{"registered": route.Path})

	default:
		api.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleTargets registers a load-balanced target
func (api *API) handleTargets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var target core.Target
	if err := json.NewDecoder(r.Body).Decode(&target); err != nil {
		api.writeError(w, http.StatusBadRequest, "Invalid target payload")
		return
	}
	if err := api.routes.RegisterTarget(r.Context(), target); err != nil {
		api.writeServiceError(w, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"registered": target.ID})
}

// handleBreakerStatus returns a snapshot of every configured breaker
func (api *API) handleBreakerStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	status, err := api.breaker.Status(r.Context())
	if err != nil {
		api.writeServiceError(w, err)
		return
	}
	api.writeJSON(w, http.StatusOK, status)
}

func (api *API) handleBreakerStatistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	stats, err := api.breaker.GetStatistics(r.Context())
	if err != nil {
		api.writeServiceError(w, err)
		return
	}
	api.writeJSON(w, http.StatusOK, stats)
}

func (api *API) handleBreakerAttention(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	attention, err := api.breaker.ServicesNeedingAttention(r.Context())
	if err != nil {
		api.writeServiceError(w, err)
		return
	}
	if attention == nil {
		attention = []circuitbreaker.Attention{}
	}
	api.writeJSON(w, http.StatusOK, attention)
}

// handleBreakerService routes /circuit-breakers/{service} and
// /circuit-breakers/{service}/reset
func (api *API) handleBreakerService(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, api.config.BasePath+"/circuit-breakers/")
	if rest == "" {
		api.writeError(w, http.StatusNotFound, "Service not specified")
		return
	}

	if service, ok := strings.CutSuffix(rest, "/reset"); ok {
		if r.Method != http.MethodPost {
			api.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		if err := api.breaker.Reset(r.Context(), service); err != nil {
			api.writeServiceError(w, err)
			return
		}
		api.writeJSON(w, http.StatusOK, map[string]string{"service": service, "state": circuitbreaker.StateClosed})
		return
	}

	if r.Method != http.MethodGet {
		api.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	health, err := api.breaker.CheckServiceHealth(r.Context(), rest)
	if err != nil {
		api.writeServiceError(w, err)
		return
	}
	api.writeJSON(w, http.StatusOK, health)
}

func (api *API) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		api.logger.Error("failed to encode response", "error", err)
	}
}

func (api *API) writeError(w http.ResponseWriter, status int, message string) {
	api.writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps structured errors to their HTTP status
func (api *API) writeServiceError(w http.ResponseWriter, err error) {
	var gerr *errors.Error
	if errors.As(err, &gerr) {
		api.writeError(w, gerr.HTTPStatusCode(), gerr.Message)
		return
	}
	api.logger.Error("management operation failed", "error", err)
	api.writeError(w, http.StatusInternalServerError, "Internal error")
}
