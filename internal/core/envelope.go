package core

import (
	"encoding/json"
	"time"
)

// Meta is attached to every gateway-built response body
type Meta struct {
	RequestID      string  `json:"request_id"`
	ProcessingTime float64 `json:"processing_time"`
}

// ErrorDetail is the error section of an error envelope
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Context map[string]any `json:"context"`
}

// SuccessBody is the JSON body of a success envelope
type SuccessBody struct {
	Success  bool           `json:"success"`
	Data     any            `json:"data"`
	Meta     Meta           `json:"meta"`
	Warnings []ContextError `json:"warnings,omitempty"`
}

// ErrorBody is the JSON body of an error envelope
type ErrorBody struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
	Meta    Meta        `json:"meta"`
}

// Envelope is a gateway-built response: a status code, headers to apply,
// and a JSON-marshalable body
type Envelope struct {
	StatusCode int
	Headers    map[string]string
	Body       any
}

// NewEnvelope creates an envelope with the given status and body
func NewEnvelope(statusCode int, body any) *Envelope {
	return &Envelope{
		StatusCode: statusCode,
		Headers:    make(map[string]string),
		Body:       body,
	}
}

// SetHeader sets a response header on the envelope
func (e *Envelope) SetHeader(name, value string) {
	e.Headers[name] = value
}

// Response renders the envelope as a buffered JSON response
func (e *Envelope) Response() Response {
	body, err := json.Marshal(e.Body)
	if err != nil {
		// Marshal of the fixed envelope shapes cannot fail; map payloads
		// with unmarshalable values degrade to an empty body.
		body = nil
	}
	headers := map[string]string{"Content-Type": "application/json"}
	for k, v := range e.Headers {
		headers[k] = v
	}
	return NewResponseWithHeaders(e.StatusCode, headers, body)
}

// ContextError is a non-fatal error raised during request processing
type ContextError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context"`
	Timestamp time.Time      `json:"timestamp"`
}
