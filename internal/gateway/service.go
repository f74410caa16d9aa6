package gateway

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"freightgate/internal/circuitbreaker"
	"freightgate/internal/core"
	"freightgate/internal/metrics"
	"freightgate/internal/middleware"
	"freightgate/internal/router"
	"freightgate/pkg/errors"
)

// Connector proxies a request to a resolved backend endpoint
type Connector interface {
	Forward(ctx context.Context, gc *core.GatewayContext, endpoint *core.Service) (core.Response, error)
}

// Error bodies returned by the orchestrator itself. These deliberately
// skip the success/meta envelope: clients distinguish gateway-level
// failures from backend responses by shape as well as by code.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Path      string `json:"path,omitempty"`
	Method    string `json:"method,omitempty"`
	Service   string `json:"service,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Service orchestrates the full request pipeline: route resolution,
// circuit breaker gating, the middleware chain, the proxy hop, and
// breaker feedback.
type Service struct {
	routes   *router.Table
	breaker  *circuitbreaker.Service
	chain    *middleware.Chain
	registry core.ServiceRegistry
	proxy    Connector
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	logger   *slog.Logger
}

// New creates the gateway service
func New(
	routes *router.Table,
	breaker *circuitbreaker.Service,
	chain *middleware.Chain,
	registry core.ServiceRegistry,
	proxy Connector,
	m *metrics.Metrics,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Service {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("gateway")
	}
	return &Service{
		routes:   routes,
		breaker:  breaker,
		chain:    chain,
		registry: registry,
		proxy:    proxy,
		metrics:  m,
		tracer:   tracer,
		logger:   logger.With("component", "gateway"),
	}
}

// ProcessRequest runs a request through the pipeline and returns the
// response to write. It never returns an error; every failure mode maps
// to a response.
func (s *Service) ProcessRequest(ctx context.Context, req core.Request) core.Response {
	ctx, span := s.tracer.Start(ctx, "gateway.process_request",
		trace.WithAttributes(
			attribute.String("request.id", req.ID()),
			attribute.String("http.method", req.Method()),
			attribute.String("http.path", req.Path()),
		))
	defer span.End()

	route, target, err := s.routes.FindRoute(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, "route resolution failed")
		return s.routeFailure(ctx, req, err)
	}
	span.SetAttributes(attribute.String("gateway.service", route.TargetService))

	service := route.TargetService
	if target != nil {
		span.SetAttributes(attribute.String("gateway.target", target.ID))
	}

	open, err := s.breaker.IsOpen(ctx, service)
	if err != nil {
		// Availability over strictness: an unreadable breaker is
		// treated as closed
		s.logger.Warn("circuit breaker state unavailable, proceeding",
			"service", service, "request_id", req.ID(), "error", err)
		open = false
	}
	if open {
		span.AddEvent("circuit open, short-circuiting")
		if s.metrics != nil {
			s.metrics.BreakerShortCircuits.WithLabelValues(service).Inc()
		}
		s.logger.Warn("circuit breaker open, rejecting request",
			"service", service, "request_id", req.ID())
		return s.serviceUnavailable(service)
	}

	halfOpen, err := s.gateHalfOpen(ctx, service)
	if err != nil {
		s.logger.Warn("circuit breaker probe gate unavailable, proceeding",
			"service", service, "request_id", req.ID(), "error", err)
	} else if !halfOpen {
		span.AddEvent("half-open probe budget exhausted")
		if s.metrics != nil {
			s.metrics.BreakerShortCircuits.WithLabelValues(service).Inc()
		}
		return s.serviceUnavailable(service)
	}

	gc := core.NewGatewayContext(req, route)

	chainResp, err := s.chain.Execute(ctx, gc)
	if err != nil {
		span.SetStatus(codes.Error, "middleware chain failed")
		s.logger.Error("middleware chain failed",
			"request_id", req.ID(), "error", err)
		return s.gatewayError(req.ID())
	}
	if chainResp != nil {
		// A middleware-built response is final; the backend was never
		// invoked, which counts as a successful call for the breaker
		if err := s.breaker.RecordSuccess(ctx, service); err != nil {
			s.logger.Warn("failed to record circuit success",
				"service", service, "error", err)
		}
		return chainResp.Response()
	}

	endpoint, err := s.registry.Resolve(service)
	if err != nil {
		span.SetStatus(codes.Error, "service not registered")
		s.logger.Error("no endpoint configured for service",
			"service", service, "request_id", req.ID(), "error", err)
		return s.gatewayError(req.ID())
	}

	return s.proxyAndRecord(ctx, span, gc, service, endpoint)
}

// gateHalfOpen enforces the probe budget: in half-open state a request
// may only dispatch while the call counter is under the cap, and each
// dispatched probe is counted before the call goes out
func (s *Service) gateHalfOpen(ctx context.Context, service string) (bool, error) {
	state, err := s.breaker.State(ctx, service)
	if err != nil {
		return true, err
	}
	if state != circuitbreaker.StateHalfOpen {
		return true, nil
	}
	allowed, err := s.breaker.CanCall(ctx, service)
	if err != nil {
		return true, err
	}
	if !allowed {
		return false, nil
	}
	if err := s.breaker.RecordCall(ctx, service); err != nil {
		return true, err
	}
	return true, nil
}

// proxyAndRecord performs the upstream hop and feeds the outcome back
// into the circuit breaker
func (s *Service) proxyAndRecord(ctx context.Context, span trace.Span, gc *core.GatewayContext, service string, endpoint *core.Service) core.Response {
	req := gc.Request()

	start := time.Now()
	upstream, err := s.proxy.Forward(ctx, gc, endpoint)
	elapsed := time.Since(start)

	if s.metrics != nil {
		s.metrics.UpstreamRequestDuration.WithLabelValues(service).Observe(elapsed.Seconds())
	}

	if err != nil {
		span.SetStatus(codes.Error, "upstream call failed")
		if s.metrics != nil {
			s.metrics.UpstreamErrors.WithLabelValues(service, "transport").Inc()
			s.metrics.UpstreamRequestsTotal.WithLabelValues(service, "error").Inc()
		}
		if recordErr := s.breaker.RecordFailure(ctx, service); recordErr != nil {
			s.logger.Warn("failed to record circuit failure",
				"service", service, "error", recordErr)
		}
		// Upstream details stay in the log; the caller gets an opaque error
		s.logger.Error("upstream call failed",
			"service", service,
			"request_id", req.ID(),
			"method", req.Method(),
			"path", req.Path(),
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		return s.gatewayError(req.ID())
	}

	if s.metrics != nil {
		s.metrics.UpstreamRequestsTotal.WithLabelValues(service, strconv.Itoa(upstream.StatusCode())).Inc()
	}
	if err := s.breaker.RecordSuccess(ctx, service); err != nil {
		s.logger.Warn("failed to record circuit success",
			"service", service, "error", err)
	}

	// Headers recorded by the pipeline ride along on the proxied
	// response; upstream values win on collision
	applyContextHeaders(upstream, gc.Headers())

	s.logger.Info("request proxied",
		"service", service,
		"request_id", req.ID(),
		"method", req.Method(),
		"path", req.Path(),
		"status", upstream.StatusCode(),
		"duration_ms", elapsed.Milliseconds(),
	)
	return upstream
}

// routeFailure maps a route resolution error to its response: unknown
// path or method yields the 404 shape. An exhausted target pool is
// treated like a transport failure and recorded against "unknown",
// since resolution never produced a service name.
func (s *Service) routeFailure(ctx context.Context, req core.Request, err error) core.Response {
	var gerr *errors.Error
	if errors.As(err, &gerr) && gerr.Type == errors.ErrorTypeUnavailable {
		if recordErr := s.breaker.RecordFailure(ctx, "unknown"); recordErr != nil {
			s.logger.Warn("failed to record circuit failure",
				"service", "unknown", "error", recordErr)
		}
		s.logger.Error("no healthy targets for path",
			"path", req.Path(), "request_id", req.ID(), "error", err)
		return s.gatewayError(req.ID())
	}

	s.logger.Info("route not found",
		"path", req.Path(), "method", req.Method(), "request_id", req.ID())
	env := core.NewEnvelope(404, errorBody{
		Error: errorDetail{
			Code:    "ROUTE_NOT_FOUND",
			Message: "no route registered for this path and method",
			Path:    req.Path(),
			Method:  req.Method(),
		},
	})
	return env.Response()
}

// applyContextHeaders folds context headers into a response without
// overwriting anything the upstream already set
func applyContextHeaders(resp core.Response, headers map[string]string) {
	out := resp.Headers()
	for name, value := range headers {
		if hasHeader(out, name) {
			continue
		}
		out[name] = []string{value}
	}
}

func hasHeader(headers map[string][]string, name string) bool {
	for existing := range headers {
		if strings.EqualFold(existing, name) {
			return true
		}
	}
	return false
}

func (s *Service) serviceUnavailable(service string) core.Response {
	env := core.NewEnvelope(503, errorBody{
		Error: errorDetail{
			Code:    "SERVICE_UNAVAILABLE",
			Message: "service is temporarily unavailable",
			Service: service,
		},
	})
	return env.Response()
}

func (s *Service) gatewayError(requestID string) core.Response {
	env := core.NewEnvelope(500, errorBody{
		Error: errorDetail{
			Code:      "GATEWAY_ERROR",
			Message:   "an internal error occurred while processing the request",
			RequestID: requestID,
		},
	})
	return env.Response()
}
