// Package resilience provides the reliability layer for outbound Tabcorp API
// calls, built from three composable primitives:
//
//   - Retries with deterministic exponential backoff
//   - In-memory TTL cache with LRU eviction and hit/miss statistics
//   - Circuit breaker (closed / open / half-open) with a named registry
//
// A Client composes all three around an abstract HTTP transport. GET requests
// consult the cache first; on a miss the call proceeds through breaker
// admission, the transport, and the retry loop. POST requests skip the cache
// entirely. The composition order is fixed: cache, then retry wrapping the
// breaker-guarded transport call, so every retry attempt reports its outcome
// to the breaker independently.
//
// Design goals:
//   - Small surface area, functional options configure everything
//   - Explicit failure classification instead of retry-on-everything
//   - Safe concurrent use of a single *Client instance
//   - Pluggable cache, metrics and transport
//
// Typical usage:
//
//	client := resilience.New(
//	    resilience.WithRetryPolicy(resilience.RetryPolicy{MaxAttempts: 3}),
//	    resilience.WithCache(256, 5*time.Minute),
//	    resilience.WithBreaker("tabcorp_api", resilience.CircuitBreakerConfig{}),
//	)
//	resp, err := client.Get(ctx, "https://api.beta.tab.com.au/v1/...")
//
// Failures surface as *ClientError values carrying a type, the attempt count
// and the underlying cause; circuit rejections surface as *CircuitOpenError
// with the estimated wait until the next probe is admitted.
package resilience
