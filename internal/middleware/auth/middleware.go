package auth

import (
	"context"
	"log/slog"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"freightgate/internal/core"
)

// Name identifies this stage in chain diagnostics
const Name = "auth"

// Config holds authentication configuration
type Config struct {
	// JWTSecret verifies HS256 bearer tokens
	JWTSecret string `yaml:"jwtSecret"`
}

// Middleware authenticates requests according to the matched route's
// auth type. Routes with AuthNone pass through untouched; bearer
// routes need a valid HS256 JWT; apikey routes need the X-API-Key the
// registry holds for the target service.
type Middleware struct {
	config   Config
	registry core.ServiceRegistry
	logger   *slog.Logger
}

// New creates the auth stage
func New(config Config, registry core.ServiceRegistry, logger *slog.Logger) *Middleware {
	return &Middleware{
		config:   config,
		registry: registry,
		logger:   logger.With("middleware", Name),
	}
}

// Name returns the stage name
func (m *Middleware) Name() string { return Name }

// Handle authenticates the request per the route's auth type
func (m *Middleware) Handle(ctx context.Context, gc *core.GatewayContext) core.ChainResult {
	route := gc.Route()
	if route == nil {
		return core.HaltWithFailure()
	}

	switch route.AuthType {
	case core.AuthBearer:
		return m.handleBearer(gc)
	case core.AuthAPIKey:
		return m.handleAPIKey(gc)
	default:
		return core.Continue()
	}
}

func (m *Middleware) handleBearer(gc *core.GatewayContext) core.ChainResult {
	header := core.HeaderValue(gc.Request(), "Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return m.unauthorized(gc, "missing bearer token")
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(m.config.JWTSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		m.logger.Debug("bearer token rejected", "error", err, "request_id", gc.RequestID())
		return m.unauthorized(gc, "invalid bearer token")
	}

	user := make(map[string]any, len(claims))
	for k, v := range claims {
		user[k] = v
	}
	gc.Set(core.DataUser, user)
	return core.Continue()
}

func (m *Middleware) handleAPIKey(gc *core.GatewayContext) core.ChainResult {
	key := core.HeaderValue(gc.Request(), "X-API-Key")
	if key == "" {
		return m.unauthorized(gc, "missing API key")
	}

	svc, err := m.registry.Resolve(gc.Route().TargetService)
	if err != nil {
		m.logger.Error("cannot resolve service for API key check",
			"service", gc.Route().TargetService, "error", err)
		return core.HaltWithFailure()
	}
	if svc.APIKey == "" || key != svc.APIKey {
		return m.unauthorized(gc, "invalid API key")
	}

	gc.Set(core.DataUser, map[string]any{"auth": "apikey", "service": svc.Name})
	return core.Continue()
}

func (m *Middleware) unauthorized(gc *core.GatewayContext, message string) core.ChainResult {
	resp := gc.CreateErrorResponse(message, "UNAUTHORIZED", 401, map[string]any{
		"auth_type": string(gc.Route().AuthType),
	})
	return core.HaltWithResponse(resp)
}

// Ensure Middleware implements core.Middleware
var _ core.Middleware = (*Middleware)(nil)
