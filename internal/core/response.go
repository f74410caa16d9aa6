package core

import (
	"bytes"
	"io"
)

// response is a simple buffered Response implementation
type response struct {
	statusCode int
	headers    map[string][]string
	body       *bytes.Buffer
}

// NewResponse creates a buffered response for error cases or simple payloads
func NewResponse(statusCode int, body []byte) Response {
	buf := new(bytes.Buffer)
	if body != nil {
		buf.Write(body)
	}
	return &response{
		statusCode: statusCode,
		headers:    make(map[string][]string),
		body:       buf,
	}
}

// NewResponseWithHeaders creates a buffered response carrying headers
func NewResponseWithHeaders(statusCode int, headers map[string]string, body []byte) Response {
	resp := NewResponse(statusCode, body).(*response)
	for k, v := range headers {
		resp.headers[k] = []string{v}
	}
	return resp
}

func (r *response) StatusCode() int              { return r.statusCode }
func (r *response) Headers() map[string][]string { return r.headers }
func (r *response) Body() io.ReadCloser {
	return io.NopCloser(bytes.NewReader(r.body.Bytes()))
}
