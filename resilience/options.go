package resilience

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// WithRetryPolicy sets the retry policy for all requests.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.policy = policy.normalized()
	}
}

// WithRetryOn sets the predicate deciding which failures are retried. The
// default is IsTransient.
func WithRetryOn(fn func(error) bool) Option {
	return func(c *Client) {
		c.retryOn = fn
	}
}

// WithClassifier sets the failure classification function.
func WithClassifier(fn Classifier) Option {
	return func(c *Client) {
		c.classifier = fn
	}
}

// WithCache enables response caching backed by a TTLCache of the given
// capacity and TTL.
func WithCache(capacity int, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = NewTTLCache(capacity, ttl)
	}
}

// WithCustomCache sets a caller-supplied cache implementation.
func WithCustomCache(cache Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithCacheKeyFunc sets a custom cache key function.
func WithCacheKeyFunc(fn CacheKeyFunc) Option {
	return func(c *Client) {
		c.cacheKeyFunc = fn
	}
}

// WithCacheCondition sets a custom cache condition function.
func WithCacheCondition(fn CacheCondition) Option {
	return func(c *Client) {
		c.cacheCondition = fn
	}
}

// WithBreaker names the circuit protecting this client's calls and fixes its
// configuration. The breaker is resolved through the registry, so clients
// sharing a registry and a name share the breaker.
func WithBreaker(name string, config CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.breakerName = name
		c.breakerConfig = config.withDefaults()
	}
}

// WithBreakerRegistry shares an existing registry with this client.
func WithBreakerRegistry(registry *BreakerRegistry) Option {
	return func(c *Client) {
		c.registry = registry
	}
}

// WithRateLimit applies a local token-bucket limit to outbound calls.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithDeduplication merges concurrent identical GET requests into a single
// transport call.
func WithDeduplication() Option {
	return func(c *Client) {
		c.dedup = new(singleflight.Group)
	}
}

// WithDedupCondition sets a custom deduplication condition function.
func WithDedupCondition(fn DedupCondition) Option {
	return func(c *Client) {
		c.dedupCondition = fn
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTransport replaces the transport entirely. Middleware still applies.
func WithTransport(rt RoundTripper) Option {
	return func(c *Client) {
		c.transport = rt
	}
}

// WithMiddleware adds middleware to the client.
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithTimeout sets the request timeout on the underlying HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if c.httpClient != nil {
			c.httpClient.Timeout = d
		}
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithLogger sets a structured logger for debug output and breaker state
// transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		c.requestIDGen = gen
	}
}

func defaultRequestID() string {
	return uuid.NewString()
}

// validateConfiguration checks the composed configuration and returns a
// Validation-typed ClientError listing every problem found.
func (c *Client) validateConfiguration() error {
	var problems []string

	if c.policy.MaxAttempts < 1 {
		problems = append(problems, "retry MaxAttempts must be at least 1")
	}
	if c.policy.InitialDelay <= 0 {
		problems = append(problems, "retry InitialDelay must be positive")
	}
	if c.policy.MaxDelay < c.policy.InitialDelay {
		problems = append(problems, "retry MaxDelay must be >= InitialDelay")
	}
	if c.policy.Multiplier <= 0 {
		problems = append(problems, "retry Multiplier must be positive")
	}

	if c.breakerConfig.FailureThreshold <= 0 {
		problems = append(problems, "breaker FailureThreshold must be positive")
	}
	if c.breakerConfig.SuccessThreshold <= 0 {
		problems = append(problems, "breaker SuccessThreshold must be positive")
	}
	if c.breakerConfig.OpenDuration <= 0 {
		problems = append(problems, "breaker OpenDuration must be positive")
	}
	if c.breakerConfig.HalfOpenMaxCalls <= 0 {
		problems = append(problems, "breaker HalfOpenMaxCalls must be positive")
	}

	if c.httpClient == nil && c.transport == nil {
		problems = append(problems, "either an HTTP client or a transport is required")
	}
	if c.cacheKeyFunc == nil {
		problems = append(problems, "cache key function cannot be nil")
	}
	if c.classifier == nil {
		problems = append(problems, "classifier cannot be nil")
	}

	for i, middleware := range c.middleware {
		if middleware == nil {
			problems = append(problems, fmt.Sprintf("middleware[%d] cannot be nil", i))
		}
	}

	if len(problems) > 0 {
		return &ClientError{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", problems),
		}
	}

	return nil
}
