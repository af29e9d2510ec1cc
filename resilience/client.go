package resilience

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// maxBodySnapshot bounds how much of a response body the cache will hold.
const maxBodySnapshot = 10 << 20 // 10MB

// Client composes the cache, circuit breaker and retry executor around an
// HTTP transport. It is safe for concurrent use.
//
// Composition order for GET: cache lookup, then the retry executor wrapping
// the breaker-guarded transport call; a fresh cache entry short-circuits
// everything. POST skips the cache but keeps breaker and retry.
type Client struct {
	httpClient     *http.Client
	transport      RoundTripper
	middleware     []Middleware
	policy         RetryPolicy
	retryOn        func(error) bool
	classifier     Classifier
	registry       *BreakerRegistry
	breaker        *CircuitBreaker
	breakerName    string
	breakerConfig  CircuitBreakerConfig
	limiter        *rate.Limiter
	cache          Cache
	cacheKeyFunc   CacheKeyFunc
	cacheCondition CacheCondition
	dedup          *singleflight.Group
	dedupCondition DedupCondition
	metrics        *MetricsCollector
	logger         *slog.Logger
	requestIDGen   func() string
	validationErr  error
}

// New constructs a Client from functional options. Configuration is validated
// best effort; call IsValid / ValidationError to inspect the result.
func New(options ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		policy:         DefaultRetryPolicy(),
		classifier:     DefaultClassifier,
		breakerName:    "default",
		breakerConfig:  CircuitBreakerConfig{}.withDefaults(),
		cacheKeyFunc:   DefaultCacheKeyFunc,
		cacheCondition: DefaultCacheCondition,
		dedupCondition: DefaultDedupCondition,
		requestIDGen:   defaultRequestID,
	}

	for _, option := range options {
		option(c)
	}

	if c.retryOn == nil {
		c.retryOn = IsTransient
	}
	if c.registry == nil {
		c.registry = NewBreakerRegistry(c.breakerConfig)
	}
	if c.logger != nil {
		c.registry.SetLogger(c.logger)
	}
	c.breaker = c.registry.GetWithConfig(c.breakerName, c.breakerConfig)

	if err := c.validateConfiguration(); err != nil {
		c.validationErr = err
	}

	return c
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationErr == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationErr
}

// Get performs an HTTP GET with context.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Post performs an HTTP POST with the given content type.
func (c *Client) Post(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(req)
}

// Do executes a prepared request applying all reliability layers.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	endpoint := getEndpointFromRequest(req)
	requestID := c.requestIDGen()

	c.metrics.RecordRequestStart(req.Method, endpoint)
	defer c.metrics.RecordRequestEnd(req.Method, endpoint)

	cacheEnabled := c.cache != nil && c.cacheCondition(req)

	if cacheEnabled {
		cacheKey := c.cacheKeyFunc(req)
		if v, ok := c.cache.Get(cacheKey); ok {
			if snapshot, ok := v.(*CachedResponse); ok {
				c.debugLog(req.Context(), "cache hit", "requestID", requestID, "cacheKey", cacheKey)
				c.metrics.RecordCacheHit(req.Method, endpoint)
				c.metrics.RecordRequest(req.Method, endpoint, snapshot.StatusCode, time.Since(start))
				return snapshot.Response(), nil
			}
		}
		c.debugLog(req.Context(), "cache miss", "requestID", requestID, "cacheKey", cacheKey)
		c.metrics.RecordCacheMiss(req.Method, endpoint)
	}

	var resp *http.Response
	var err error

	if c.dedup != nil && c.dedupCondition(req) {
		resp, err = c.doDeduplicated(req, requestID)
	} else {
		resp, err = c.execute(req, requestID)
	}

	duration := time.Since(start)
	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}
	c.metrics.RecordRequest(req.Method, endpoint, statusCode, duration)

	if cacheEnabled && err == nil && resp.StatusCode < 400 {
		cacheKey := c.cacheKeyFunc(req)
		snapshot, snapErr := snapshotResponse(resp)
		if snapErr == nil {
			c.cache.Set(cacheKey, snapshot)
			c.metrics.RecordCacheSize("default", cacheSize(c.cache))
			c.debugLog(req.Context(), "response cached", "requestID", requestID, "cacheKey", cacheKey)
			return snapshot.Response(), nil
		}
	}

	return resp, err
}

// doDeduplicated merges concurrent identical requests into one transport
// call. Every waiter receives its own response materialized from a shared
// snapshot, so bodies are independently readable.
func (c *Client) doDeduplicated(req *http.Request, requestID string) (*http.Response, error) {
	key := c.cacheKeyFunc(req)
	endpoint := getEndpointFromRequest(req)

	v, err, shared := c.dedup.Do(key, func() (any, error) {
		resp, err := c.execute(req, requestID)
		if err != nil {
			return nil, err
		}
		return snapshotResponse(resp)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.metrics.RecordDedupHit(req.Method, endpoint)
		c.debugLog(req.Context(), "deduplication hit", "requestID", requestID, "dedupKey", key)
	}
	return v.(*CachedResponse).Response(), nil
}

// execute runs the retry loop around the breaker-guarded transport call. Each
// attempt independently reports its outcome to the breaker, so a transient
// transport failure can retry several times before the breaker accumulates a
// failure pattern across calls.
func (c *Client) execute(req *http.Request, requestID string) (*http.Response, error) {
	endpoint := getEndpointFromRequest(req)

	// Capture the body once so it can be replayed on retries.
	var bodyBytes []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, &ClientError{
				Type:      ErrorTypeNetwork,
				Message:   "failed to read request body",
				Cause:     err,
				RequestID: requestID,
				Method:    req.Method,
				URL:       req.URL.String(),
				Endpoint:  endpoint,
				Timestamp: time.Now(),
			}
		}
	}

	executor := NewRetryExecutor(c.policy, c.retryOn)
	executor.logger = c.logger

	var resp *http.Response
	attempt := 0

	err := executor.Execute(req.Context(), func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			c.metrics.RecordRetry(req.Method, endpoint, attempt-1)
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.metrics.RecordError(ErrorTypeRateLimit, req.Method, endpoint)
			return &ClientError{
				Type:      ErrorTypeRateLimit,
				Message:   "rate limit exceeded",
				RequestID: requestID,
				Method:    req.Method,
				URL:       req.URL.String(),
				Endpoint:  endpoint,
				Attempt:   attempt,
				Timestamp: time.Now(),
			}
		}

		attemptReq := req
		if bodyBytes != nil {
			attemptReq = req.Clone(ctx)
			attemptReq.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		var attemptErr error
		cbErr := c.breaker.Execute(func() error {
			r, terr := c.transportDo(attemptReq)
			class := c.classifier(r, terr)

			switch class {
			case ClassTransient:
				drainAndClose(r)
				attemptErr = c.transientError(r, terr, requestID, attemptReq, attempt)
				c.recordTransient(r, terr, req.Method, endpoint)
				return attemptErr
			case ClassThrottled:
				drainAndClose(r)
				attemptErr = c.transientError(r, terr, requestID, attemptReq, attempt)
				// Upstream push-back is not a service failure; the breaker
				// records a success while the retry layer backs off.
				return nil
			case ClassTerminal:
				if terr != nil {
					attemptErr = terr
					return errSkipRecording
				}
				// Client errors pass through to the caller unretried.
				resp, attemptErr = r, nil
				return nil
			default:
				resp, attemptErr = r, nil
				return nil
			}
		})
		c.metrics.RecordCircuitBreakerState(c.breakerName, c.breaker.State())

		var open *CircuitOpenError
		if errors.As(cbErr, &open) {
			c.debugLog(ctx, "circuit breaker rejected call",
				"requestID", requestID, "breaker", c.breakerName, "retryAfter", open.RetryAfter)
			c.metrics.RecordError("CircuitOpen", req.Method, endpoint)
			return open
		}

		return attemptErr
	})

	if err != nil {
		return nil, err
	}
	return resp, nil
}

// transportDo runs the middleware chain ending at the configured transport.
func (c *Client) transportDo(req *http.Request) (*http.Response, error) {
	base := c.transport
	if base == nil {
		base = RoundTripperFunc(c.httpClient.Do)
	}

	if len(c.middleware) == 0 {
		return base.RoundTrip(req)
	}

	current := base
	for i := len(c.middleware) - 1; i >= 0; i-- {
		middleware := c.middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return middleware(r, next)
		})
	}

	return current.RoundTrip(req)
}

// transientError builds the ClientError for a retryable transport outcome.
func (c *Client) transientError(resp *http.Response, err error, requestID string, req *http.Request, attempt int) *ClientError {
	ce := &ClientError{
		Type:      errorTypeFor(resp, err),
		Cause:     err,
		RequestID: requestID,
		Method:    req.Method,
		URL:       req.URL.String(),
		Endpoint:  getEndpointFromRequest(req),
		Attempt:   attempt,
		Timestamp: time.Now(),
	}
	switch ce.Type {
	case ErrorTypeTimeout:
		ce.Message = "request timed out"
	case ErrorTypeNetwork:
		ce.Message = "network request failed"
	case ErrorTypeRateLimited:
		ce.Message = "upstream rate limited the request"
	default:
		ce.Message = "server error response"
	}
	if resp != nil {
		ce.StatusCode = resp.StatusCode
	}
	return ce
}

func (c *Client) recordTransient(resp *http.Response, err error, method, endpoint string) {
	if err != nil {
		c.metrics.RecordError(ErrorTypeNetwork, method, endpoint)
	} else if resp != nil {
		c.metrics.RecordError(ErrorTypeServer, method, endpoint)
	}
}

func (c *Client) debugLog(ctx context.Context, msg string, args ...any) {
	if c.logger != nil {
		c.logger.DebugContext(ctx, msg, args...)
	}
}

// CacheStats returns the cache snapshot, or false when no cache is enabled.
func (c *Client) CacheStats() (CacheStats, bool) {
	if c.cache == nil {
		return CacheStats{}, false
	}
	return c.cache.Stats(), true
}

// BreakerStats returns a snapshot for every breaker in the client's registry.
func (c *Client) BreakerStats() map[string]BreakerStats {
	return c.registry.AllStats()
}

// ResetAllBreakers forces every breaker in the client's registry to closed.
func (c *Client) ResetAllBreakers() {
	c.registry.ResetAll()
}

// Registry exposes the breaker registry for composition roots that share it
// across clients.
func (c *Client) Registry() *BreakerRegistry {
	return c.registry
}

// CachedResponse is the snapshot of a response held in the cache. Each caller
// materializes an independent *http.Response from it.
type CachedResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Response materializes a fresh response with a readable body.
func (cr *CachedResponse) Response() *http.Response {
	return &http.Response{
		StatusCode: cr.StatusCode,
		Header:     cr.Header.Clone(),
		Body:       io.NopCloser(bytes.NewReader(cr.Body)),
	}
}

// snapshotResponse consumes resp's body into a CachedResponse.
func snapshotResponse(resp *http.Response) (*CachedResponse, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySnapshot))
	if err != nil && err != io.EOF {
		return nil, err
	}
	resp.Body.Close()

	return &CachedResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}

func drainAndClose(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySnapshot))
		resp.Body.Close()
	}
}

func cacheSize(cache Cache) int {
	return cache.Stats().Size
}
