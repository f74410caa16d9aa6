package core

import "time"

// AuthType selects how the gateway authenticates the proxied call
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBearer AuthType = "bearer"
	AuthAPIKey AuthType = "apikey"
)

// Default timeouts applied when a route does not specify its own
const (
	DefaultTimeout        = 30 * time.Second
	DefaultConnectTimeout = 10 * time.Second
)

// Route is a registered mapping from an inbound path to a backend service.
// Path is the unique lookup key; matching is exact path plus method membership.
type Route struct {
	Path           string        `json:"path"`
	AllowedMethods []string      `json:"allowed_methods"`
	TargetService  string        `json:"target_service"`
	Timeout        time.Duration `json:"timeout"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
	AuthType       AuthType      `json:"auth_type"`
	LoadBalanced   bool          `json:"load_balanced"`
}

// AllowsMethod reports whether the route accepts the given HTTP method
func (r *Route) AllowsMethod(method string) bool {
	for _, m := range r.AllowedMethods {
		if m == method {
			return true
		}
	}
	return false
}

// Normalize fills in defaults for unset optional fields
func (r *Route) Normalize() {
	if r.Timeout <= 0 {
		r.Timeout = DefaultTimeout
	}
	if r.ConnectTimeout <= 0 {
		r.ConnectTimeout = DefaultConnectTimeout
	}
	if r.AuthType == "" {
		r.AuthType = AuthNone
	}
}

// Target is a weighted backend instance for a load-balanced path.
// Selection only considers targets with Weight > 0 and Healthy == true.
type Target struct {
	ID            string `json:"id"`
	Path          string `json:"path"`
	TargetService string `json:"target_service"`
	Weight        int    `json:"weight"`
	Healthy       bool   `json:"is_healthy"`
	CurrentLoad   int64  `json:"current_load"`
}

// Eligible reports whether the target may be selected
func (t *Target) Eligible() bool {
	return t.Weight > 0 && t.Healthy
}
