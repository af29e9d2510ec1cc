package resilience

import (
	"net/http"
)

// RoundTripper is the abstract transport the client drives. The zero
// configuration uses a standard *http.Client; tests and callers may supply
// anything that can turn a request into a response.
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc adapts a function to the RoundTripper interface.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Middleware wraps a transport call for cross-cutting concerns (auth headers,
// tracing, logging). Middleware run inside the breaker and retry layers.
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// CacheCondition reports whether a request's response may be cached.
type CacheCondition func(req *http.Request) bool

// CacheKeyFunc derives the cache key for a request.
type CacheKeyFunc func(req *http.Request) string

// DedupCondition reports whether concurrent identical requests should be
// merged into a single transport call.
type DedupCondition func(req *http.Request) bool

// Option configures a Client.
type Option func(*Client)

// DefaultCacheCondition caches GET requests only. Mutating calls are never
// cacheable.
func DefaultCacheCondition(req *http.Request) bool {
	return req.Method == http.MethodGet
}

// DefaultDedupCondition merges concurrent identical GET requests.
func DefaultDedupCondition(req *http.Request) bool {
	return req.Method == http.MethodGet
}

// DefaultCacheKeyFunc builds a key from the method and URL. Query parameters
// are re-encoded in sorted order so equivalent requests collide on the same
// entry regardless of how the caller ordered them.
func DefaultCacheKeyFunc(req *http.Request) string {
	if req.URL == nil {
		return req.Method + ":"
	}
	u := *req.URL
	u.RawQuery = u.Query().Encode()
	return req.Method + ":" + u.String()
}

// getEndpointFromRequest extracts a host+path label for metrics and logging.
func getEndpointFromRequest(req *http.Request) string {
	if req.URL == nil {
		return "unknown"
	}

	endpoint := req.URL.Host
	if req.URL.Path != "" && req.URL.Path != "/" {
		endpoint += req.URL.Path
	} else {
		endpoint += "/"
	}

	return endpoint
}
