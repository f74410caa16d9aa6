package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"freightgate/internal/core"
	"freightgate/internal/metrics"
	"freightgate/internal/telemetry"
	"freightgate/pkg/requestid"
)

// Processor runs a request through the gateway pipeline
type Processor interface {
	ProcessRequest(ctx context.Context, req core.Request) core.Response
}

// Adapter is the inbound HTTP listener. It assigns request ids, wraps
// requests for the pipeline, and writes pipeline responses back out.
type Adapter struct {
	config    Config
	server    *http.Server
	processor Processor
	telemetry *telemetry.Telemetry
	metrics   *metrics.Metrics
	reqNum    atomic.Uint64
	logger    *slog.Logger
}

// New creates a new HTTP adapter
func New(cfg Config, processor Processor, tel *telemetry.Telemetry, m *metrics.Metrics, logger *slog.Logger) *Adapter {
	return &Adapter{
		config:    cfg,
		processor: processor,
		telemetry: tel,
		metrics:   m,
		logger:    logger.With("component", "http"),
	}
}

// Start starts the HTTP server
func (a *Adapter) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", a.config.Host, a.config.Port)

	tlsConfig, err := a.config.TLS.Build()
	if err != nil {
		return err
	}

	a.server = &http.Server{
		Addr:         addr,
		Handler:      a,
		ReadTimeout:  a.config.ReadTimeout,
		WriteTimeout: a.config.WriteTimeout,
		TLSConfig:    tlsConfig,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	// Bind synchronously so startup failures surface immediately
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %w", addr, err)
	}

	if tlsConfig != nil {
		a.logger.Info("starting TLS server", "addr", addr, "cert", a.config.TLS.CertFile)
		listener = tls.NewListener(listener, tlsConfig)
	} else {
		a.logger.Info("starting server", "addr", addr)
	}

	go func() {
		if err := a.server.Serve(listener); err != http.ErrServerClosed {
			a.logger.Error("server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully stops the server
func (a *Adapter) Stop(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	a.logger.Info("stopping server", "requests", a.reqNum.Load())
	return a.server.Shutdown(ctx)
}

// ServeHTTP implements http.Handler
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.reqNum.Add(1)
	start := time.Now()

	reqID := requestid.Generate()
	r.Header.Set("X-Request-ID", reqID)

	if a.config.MaxRequestSize > 0 {
		if r.ContentLength > a.config.MaxRequestSize {
			a.logger.Warn("request body too large",
				"request_id", reqID,
				"content_length", r.ContentLength,
				"max_size", a.config.MaxRequestSize,
			)
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxRequestSize)
		}
	}

	ctx := r.Context()
	var span trace.Span
	if a.telemetry != nil {
		ctx, span = a.telemetry.StartHTTPServerSpan(r)
	}

	req := newRequest(reqID, r)

	if a.metrics != nil {
		a.metrics.ActiveRequests.WithLabelValues(r.Method, r.URL.Path).Inc()
		defer a.metrics.ActiveRequests.WithLabelValues(r.Method, r.URL.Path).Dec()
	}

	resp := a.processor.ProcessRequest(ctx, req)

	a.writeResponse(w, reqID, req, resp)

	if span != nil {
		telemetry.EndHTTPServerSpan(span, resp.StatusCode())
	}

	if a.metrics != nil {
		a.metrics.RequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(resp.StatusCode())).Inc()
		a.metrics.RequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	}
}

// writeResponse copies a pipeline response onto the wire
func (a *Adapter) writeResponse(w http.ResponseWriter, reqID string, req core.Request, resp core.Response) {
	for k, values := range resp.Headers() {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}

	w.WriteHeader(resp.StatusCode())

	if body := resp.Body(); body != nil {
		defer body.Close()
		if _, err := io.Copy(w, body); err != nil {
			// Headers are already sent; nothing to do but log
			a.logger.Error("failed to copy response body",
				"error", err,
				"request_id", reqID,
				"path", req.Path())
		}
	}
}
