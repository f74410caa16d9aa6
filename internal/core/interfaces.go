package core

import (
	"context"
	"io"
)

// Request represents an inbound request
type Request interface {
	ID() string
	Method() string
	Path() string
	URL() string
	RemoteAddr() string
	Headers() map[string][]string
	Body() io.ReadCloser
	Context() context.Context
}

// Response represents an outgoing response
type Response interface {
	StatusCode() int
	Headers() map[string][]string
	Body() io.ReadCloser
}

// Service describes a backend service endpoint from the registry
type Service struct {
	Name    string
	BaseURL string
	Token   string
	APIKey  string
}

// ServiceRegistry resolves logical service names to endpoints
type ServiceRegistry interface {
	Resolve(name string) (*Service, error)
}
