package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gateway
type Metrics struct {
	// Inbound request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  *prometheus.GaugeVec

	// Upstream proxy metrics
	UpstreamRequestsTotal   *prometheus.CounterVec
	UpstreamRequestDuration *prometheus.HistogramVec
	UpstreamErrors          *prometheus.CounterVec

	// Circuit breaker metrics
	BreakerTransitions   *prometheus.CounterVec
	BreakerShortCircuits *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitRejected *prometheus.CounterVec

	// Pipeline metrics
	PipelineRequests *prometheus.CounterVec
}

// New creates a Metrics instance on the default registry
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance on a custom registry
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_requests_total",
				Help: "Total number of requests processed by the gateway",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_request_duration_seconds",
				Help:    "Gateway request latencies in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		ActiveRequests: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_requests_active",
				Help: "Number of requests currently in flight",
			},
			[]string{"method", "path"},
		),
		UpstreamRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_upstream_requests_total",
				Help: "Total number of proxied upstream requests",
			},
			[]string{"service", "status"},
		),
		UpstreamRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_upstream_request_duration_seconds",
				Help:    "Upstream request latencies in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service"},
		),
		UpstreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_upstream_errors_total",
				Help: "Total number of upstream transport failures",
			},
			[]string{"service", "error_type"},
		),
		BreakerTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_circuit_breaker_transitions_total",
				Help: "Circuit breaker state transitions",
			},
			[]string{"service", "to_state"},
		),
		BreakerShortCircuits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_circuit_breaker_short_circuits_total",
				Help: "Requests rejected because the circuit was open",
			},
			[]string{"service"},
		),
		RateLimitRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_rate_limit_rejected_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"path"},
		),
		PipelineRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_pipeline_requests_total",
				Help: "Requests that cleared the middleware pipeline",
			},
			[]string{"method", "path"},
		),
	}
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a metrics handler for a custom gatherer
func HandlerFor(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
