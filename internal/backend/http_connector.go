package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"freightgate/internal/core"
	"freightgate/pkg/errors"
)

// HTTPConnector proxies requests to backend services. Connect and
// total timeouts come from the route; clients are cached per connect
// timeout so the connection pool survives across requests.
type HTTPConnector struct {
	mu      sync.Mutex
	clients map[time.Duration]*http.Client
}

// NewHTTPConnector creates a new HTTP connector
func NewHTTPConnector() *HTTPConnector {
	return &HTTPConnector{
		clients: make(map[time.Duration]*http.Client),
	}
}

// Forward proxies the request to the resolved service endpoint. Any
// transport-level problem, including a non-2xx upstream status, comes
// back as an error so the caller can record a circuit failure.
func (c *HTTPConnector) Forward(ctx context.Context, gc *core.GatewayContext, endpoint *core.Service) (core.Response, error) {
	req := gc.Request()
	route := gc.Route()

	timeout := core.DefaultTimeout
	if route != nil && route.Timeout > 0 {
		timeout = route.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	targetURL, err := buildTargetURL(req, endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build target URL")
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method(), targetURL, c.requestBody(gc))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create upstream request")
	}

	c.setForwardHeaders(httpReq, gc)
	c.setAuthHeaders(httpReq, route, endpoint)

	connectTimeout := core.DefaultConnectTimeout
	if route != nil && route.ConnectTimeout > 0 {
		connectTimeout = route.ConnectTimeout
	}

	resp, err := c.client(connectTimeout).Do(httpReq)
	if err != nil {
		return nil, errors.NewError(errors.ErrorTypeUnavailable, "upstream request failed").
			WithDetail("service", endpoint.Name).
			WithCause(err)
	}

	// The upstream contract treats any non-2xx as a failed call
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, errors.NewError(errors.ErrorTypeUnavailable, "upstream returned error status").
			WithDetail("service", endpoint.Name).
			WithDetail("status", resp.StatusCode)
	}

	headers := make(map[string][]string, len(resp.Header))
	for key, values := range resp.Header {
		if key == "Transfer-Encoding" || key == "Connection" {
			continue
		}
		headers[key] = values
	}

	return &httpResponse{
		statusCode: resp.StatusCode,
		headers:    headers,
		body:       resp.Body,
	}, nil
}

// requestBody returns the buffered body captured by the validation
// stage when present, else the original request reader
func (c *HTTPConnector) requestBody(gc *core.GatewayContext) io.Reader {
	if raw, ok := gc.Get(core.DataRawBody).([]byte); ok {
		return bytes.NewReader(raw)
	}
	return gc.Request().Body()
}

// setForwardHeaders copies inbound headers minus the hop-by-hop set
// and injects the gateway identification headers
func (c *HTTPConnector) setForwardHeaders(httpReq *http.Request, gc *core.GatewayContext) {
	for key, values := range gc.Request().Headers() {
		if isHopByHopHeader(key) || strings.EqualFold(key, "Host") {
			continue
		}
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	clientIP, _ := gc.Meta(core.MetaClientIP).(string)
	httpReq.Header.Set("X-Gateway-Request-ID", gc.RequestID())
	httpReq.Header.Set("X-Gateway-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	httpReq.Header.Set("X-Forwarded-For", clientIP)
}

// setAuthHeaders attaches upstream credentials per the route's auth type
func (c *HTTPConnector) setAuthHeaders(httpReq *http.Request, route *core.Route, endpoint *core.Service) {
	if route == nil {
		return
	}
	switch route.AuthType {
	case core.AuthBearer:
		if endpoint.Token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+endpoint.Token)
		}
	case core.AuthAPIKey:
		if endpoint.APIKey != "" {
			httpReq.Header.Set("X-API-Key", endpoint.APIKey)
		}
	}
}

// client returns the pooled client for a connect timeout
func (c *HTTPConnector) client(connectTimeout time.Duration) *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[connectTimeout]; ok {
		return client
	}

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   connectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	c.clients[connectTimeout] = client
	return client
}

// buildTargetURL joins the service base URL with the inbound path and query
func buildTargetURL(req core.Request, endpoint *core.Service) (string, error) {
	u, err := url.Parse(req.URL())
	if err != nil {
		return "", err
	}
	base := strings.TrimRight(endpoint.BaseURL, "/")
	if base == "" {
		return "", fmt.Errorf("service %s has no base URL", endpoint.Name)
	}
	return base + u.RequestURI(), nil
}

// isHopByHopHeader checks if a header is a hop-by-hop header
func isHopByHopHeader(header string) bool {
	switch http.CanonicalHeaderKey(header) {
	case "Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
		"Te", "Trailers", "Transfer-Encoding", "Upgrade":
		return true
	}
	return false
}

// httpResponse implements core.Response for upstream responses
type httpResponse struct {
	statusCode int
	headers    map[string][]string
	body       io.ReadCloser
}

func (r *httpResponse) StatusCode() int              { return r.statusCode }
func (r *httpResponse) Headers() map[string][]string { return r.headers }
func (r *httpResponse) Body() io.ReadCloser          { return r.body }
