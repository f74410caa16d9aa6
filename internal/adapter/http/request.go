package http

import (
	"context"
	"io"
	"net/http"

	"freightgate/internal/core"
)

// httpRequest adapts *http.Request to core.Request
type httpRequest struct {
	id  string
	raw *http.Request
}

func newRequest(id string, r *http.Request) core.Request {
	if r.TLS != nil {
		r.Header.Set("X-Forwarded-Proto", "https")
	} else if r.Header.Get("X-Forwarded-Proto") == "" {
		r.Header.Set("X-Forwarded-Proto", "http")
	}
	return &httpRequest{id: id, raw: r}
}

func (r *httpRequest) ID() string         { return r.id }
func (r *httpRequest) Method() string     { return r.raw.Method }
func (r *httpRequest) Path() string       { return r.raw.URL.Path }
func (r *httpRequest) URL() string        { return r.raw.URL.String() }
func (r *httpRequest) RemoteAddr() string { return r.raw.RemoteAddr }

func (r *httpRequest) Headers() map[string][]string {
	return r.raw.Header
}

func (r *httpRequest) Body() io.ReadCloser {
	return r.raw.Body
}

func (r *httpRequest) Context() context.Context {
	return r.raw.Context()
}

var _ core.Request = (*httpRequest)(nil)
