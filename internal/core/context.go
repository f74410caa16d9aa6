package core

import (
	"strings"
	"time"
)

// Metadata keys seeded at context construction
const (
	MetaRequestID = "request_id"
	MetaClientIP  = "client_ip"
	MetaUserAgent = "user_agent"
)

// Well-known data keys written by middleware stages
const (
	DataUser             = "user"
	DataRateLimit        = "rate_limit"
	DataValidatedPayload = "validated_payload"
	DataValidationErrors = "validation_errors"
	DataRawBody          = "raw_body"
)

// GatewayContext is the per-request mutable bag passed through the
// middleware chain. It owns no persistent state and is discarded after
// the request completes. It is not safe for concurrent use; the chain
// is strictly sequential.
type GatewayContext struct {
	req      Request
	route    *Route
	data     map[string]any
	headers  map[string]string
	errs     []ContextError
	metadata map[string]any
	response *Envelope
	start    time.Time
}

// NewGatewayContext builds a context for an inbound request and its
// matched route. The start time uses the monotonic clock.
func NewGatewayContext(req Request, route *Route) *GatewayContext {
	gc := &GatewayContext{
		req:      req,
		route:    route,
		data:     make(map[string]any),
		headers:  make(map[string]string),
		metadata: make(map[string]any),
		start:    time.Now(),
	}
	gc.metadata[MetaRequestID] = req.ID()
	gc.metadata[MetaClientIP] = clientIP(req)
	gc.metadata[MetaUserAgent] = HeaderValue(req, "User-Agent")
	return gc
}

// Request returns the inbound request
func (gc *GatewayContext) Request() Request { return gc.req }

// Route returns the matched route
func (gc *GatewayContext) Route() *Route { return gc.route }

// Get returns a data value, nil if absent
func (gc *GatewayContext) Get(key string) any { return gc.data[key] }

// Set stores a data value
func (gc *GatewayContext) Set(key string, value any) { gc.data[key] = value }

// Data returns the underlying data map
func (gc *GatewayContext) Data() map[string]any { return gc.data }

// Header returns an outbound response header, empty string if absent
func (gc *GatewayContext) Header(name string) string { return gc.headers[name] }

// SetHeader records a header to apply to the outbound response
func (gc *GatewayContext) SetHeader(name, value string) { gc.headers[name] = value }

// Headers returns the outbound response header map
func (gc *GatewayContext) Headers() map[string]string { return gc.headers }

// Meta returns a metadata value, nil if absent
func (gc *GatewayContext) Meta(key string) any { return gc.metadata[key] }

// SetMeta stores a metadata value
func (gc *GatewayContext) SetMeta(key string, value any) { gc.metadata[key] = value }

// RequestID returns the request id seeded at construction
func (gc *GatewayContext) RequestID() string {
	id, _ := gc.metadata[MetaRequestID].(string)
	return id
}

// AddError records a non-fatal error; it surfaces as a warning on
// success envelopes
func (gc *GatewayContext) AddError(code, message string, errCtx map[string]any) {
	if errCtx == nil {
		errCtx = make(map[string]any)
	}
	gc.errs = append(gc.errs, ContextError{
		Code:      code,
		Message:   message,
		Context:   errCtx,
		Timestamp: time.Now().UTC(),
	})
}

// Errors returns the recorded non-fatal errors in order
func (gc *GatewayContext) Errors() []ContextError { return gc.errs }

// HasErrors reports whether any non-fatal errors were recorded
func (gc *GatewayContext) HasErrors() bool { return len(gc.errs) > 0 }

// Response returns the canonical response set by an envelope builder,
// nil if none was built
func (gc *GatewayContext) Response() *Envelope { return gc.response }

// ProcessingTime returns elapsed seconds since construction. The start
// time carries a monotonic reading, so the result is never negative.
func (gc *GatewayContext) ProcessingTime() float64 {
	return time.Since(gc.start).Seconds()
}

// CreateSuccessResponse builds the success envelope, stores it as the
// canonical response, and returns it. A non-positive statusCode means 200.
func (gc *GatewayContext) CreateSuccessResponse(data any, statusCode int) *Envelope {
	if statusCode <= 0 {
		statusCode = 200
	}
	body := SuccessBody{
		Success: true,
		Data:    data,
		Meta: Meta{
			RequestID:      gc.RequestID(),
			ProcessingTime: gc.ProcessingTime(),
		},
	}
	if len(gc.errs) > 0 {
		body.Warnings = gc.errs
	}
	env := NewEnvelope(statusCode, body)
	for k, v := range gc.headers {
		env.SetHeader(k, v)
	}
	gc.response = env
	return env
}

// CreateErrorResponse builds the error envelope, stores it as the
// canonical response, and returns it. Empty code defaults to
// GENERIC_ERROR, non-positive statusCode to 400.
func (gc *GatewayContext) CreateErrorResponse(message, code string, statusCode int, errCtx map[string]any) *Envelope {
	if code == "" {
		code = "GENERIC_ERROR"
	}
	if statusCode <= 0 {
		statusCode = 400
	}
	if errCtx == nil {
		errCtx = make(map[string]any)
	}
	body := ErrorBody{
		Success: false,
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Context: errCtx,
		},
		Meta: Meta{
			RequestID:      gc.RequestID(),
			ProcessingTime: gc.ProcessingTime(),
		},
	}
	env := NewEnvelope(statusCode, body)
	for k, v := range gc.headers {
		env.SetHeader(k, v)
	}
	gc.response = env
	return env
}

// IsJSONRequest reports whether the Content-Type header mentions JSON
func (gc *GatewayContext) IsJSONRequest() bool {
	return strings.Contains(HeaderValue(gc.req, "Content-Type"), "application/json")
}

// AcceptsJSON reports whether the Accept header mentions JSON
func (gc *GatewayContext) AcceptsJSON() bool {
	return strings.Contains(HeaderValue(gc.req, "Accept"), "application/json")
}

// Clone returns an independent copy for speculative or parallel use.
// The request and route references are shared; all maps and the error
// list are copied.
func (gc *GatewayContext) Clone() *GatewayContext {
	cp := &GatewayContext{
		req:      gc.req,
		route:    gc.route,
		data:     make(map[string]any, len(gc.data)),
		headers:  make(map[string]string, len(gc.headers)),
		metadata: make(map[string]any, len(gc.metadata)),
		response: gc.response,
		start:    gc.start,
	}
	for k, v := range gc.data {
		cp.data[k] = v
	}
	for k, v := range gc.headers {
		cp.headers[k] = v
	}
	for k, v := range gc.metadata {
		cp.metadata[k] = v
	}
	cp.errs = append(cp.errs, gc.errs...)
	return cp
}

// Merge folds another context into this one: additive union of the
// data, header, and metadata maps with the other side winning on key
// collisions, and the other side's errors appended in order.
func (gc *GatewayContext) Merge(other *GatewayContext) {
	if other == nil {
		return
	}
	for k, v := range other.data {
		gc.data[k] = v
	}
	for k, v := range other.headers {
		gc.headers[k] = v
	}
	for k, v := range other.metadata {
		gc.metadata[k] = v
	}
	gc.errs = append(gc.errs, other.errs...)
}

// clientIP resolves the originating client address, preferring the
// first X-Forwarded-For entry over the transport peer
func clientIP(req Request) string {
	if fwd := HeaderValue(req, "X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	addr := req.RemoteAddr()
	if i := strings.LastIndexByte(addr, ':'); i > 0 && !strings.Contains(addr[i:], "]") {
		return addr[:i]
	}
	return addr
}
