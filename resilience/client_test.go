package resilience

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fastPolicy keeps retry delays negligible in tests.
func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestClientGetSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := New(WithRetryPolicy(fastPolicy(3)))
	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Errorf("Expected body ok, got %q", body)
	}
}

func TestClientGetCachesResponses(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte("payload"))
	}))
	defer server.Close()

	client := New(
		WithRetryPolicy(fastPolicy(3)),
		WithCache(10, time.Minute),
	)

	for i := 0; i < 2; i++ {
		resp, err := client.Get(context.Background(), server.URL+"/racing/dates")
		if err != nil {
			t.Fatalf("Unexpected error on call %d: %v", i+1, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if string(body) != "payload" {
			t.Errorf("Expected identical payload on call %d, got %q", i+1, body)
		}
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected 1 upstream call, got %d", got)
	}

	stats, ok := client.CacheStats()
	if !ok {
		t.Fatal("Expected cache stats to be available")
	}
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Expected 1 hit and 1 miss, got %d/%d", stats.Hits, stats.Misses)
	}
}

func TestClientPostNeverCached(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte("created"))
	}))
	defer server.Close()

	client := New(
		WithRetryPolicy(fastPolicy(3)),
		WithCache(10, time.Minute),
	)

	for i := 0; i < 2; i++ {
		resp, err := client.Post(context.Background(), server.URL, "application/json", strings.NewReader(`{"amount":5}`))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		resp.Body.Close()
	}

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("Expected 2 upstream calls for POST, got %d", got)
	}
}

func TestClientQueryParameterOrderNormalized(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := New(
		WithRetryPolicy(fastPolicy(3)),
		WithCache(10, time.Minute),
	)

	if _, err := client.Get(context.Background(), server.URL+"/races?jurisdiction=NSW&date=2026-08-30"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := client.Get(context.Background(), server.URL+"/races?date=2026-08-30&jurisdiction=NSW"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected parameter order to share one cache entry, upstream calls=%d", got)
	}
}

func TestClientRetriesTransientFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer server.Close()

	client := New(WithRetryPolicy(fastPolicy(3)))
	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected recovery on the third attempt, got %v", err)
	}
	defer resp.Body.Close()

	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("Expected 3 upstream calls, got %d", got)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "recovered" {
		t.Errorf("Expected recovered, got %q", body)
	}
}

func TestClientRetriesExhausted(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(WithRetryPolicy(fastPolicy(3)))
	_, err := client.Get(context.Background(), server.URL)

	var exhausted *RetriesExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Expected RetriesExhaustedError, got %T: %v", err, err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", exhausted.Attempts)
	}

	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatal("Expected the last ClientError to be wrapped")
	}
	if clientErr.Type != ErrorTypeServer {
		t.Errorf("Expected Server error type, got %q", clientErr.Type)
	}
	if clientErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", clientErr.StatusCode)
	}

	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("Expected 3 upstream calls, got %d", got)
	}
}

func TestClientClientErrorsPassThroughUnretried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("no such race"))
	}))
	defer server.Close()

	client := New(WithRetryPolicy(fastPolicy(3)))
	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected the 404 response to pass through, got %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected no retries for a client error, upstream calls=%d", got)
	}
}

func TestClientErrorResponsesNotCached(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := New(
		WithRetryPolicy(fastPolicy(1)),
		WithCache(10, time.Minute),
	)

	for i := 0; i < 2; i++ {
		resp, err := client.Get(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		resp.Body.Close()
	}

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("Expected error responses to bypass the cache, upstream calls=%d", got)
	}
}

func TestClientEachAttemptReportsToBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(
		WithRetryPolicy(fastPolicy(3)),
		WithBreaker("api", CircuitBreakerConfig{FailureThreshold: 3, SuccessThreshold: 1, OpenDuration: time.Minute, HalfOpenMaxCalls: 1}),
	)

	// A single exhausted call carries three attempts, enough to trip the
	// breaker on its own.
	if _, err := client.Get(context.Background(), server.URL); err == nil {
		t.Fatal("Expected failure")
	}

	stats := client.BreakerStats()
	if stats["api"].State != StateOpen {
		t.Errorf("Expected breaker open after 3 failed attempts, got %v", stats["api"].State)
	}
}

func TestClientCircuitOpenEndsRetrySequence(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(
		WithRetryPolicy(fastPolicy(3)),
		WithBreaker("api", CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, OpenDuration: time.Minute, HalfOpenMaxCalls: 1}),
	)

	_, err := client.Get(context.Background(), server.URL)

	// The first attempt opens the breaker, the second is rejected without
	// reaching the transport, and the rejection is terminal to the retry
	// layer.
	var open *CircuitOpenError
	if !errors.As(err, &open) {
		t.Fatalf("Expected CircuitOpenError, got %T: %v", err, err)
	}
	var exhausted *RetriesExhaustedError
	if errors.As(err, &exhausted) {
		t.Error("Expected the rejection to propagate unwrapped")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected 1 upstream call, got %d", got)
	}
}

func TestClientTimeoutFailuresOpenBreaker(t *testing.T) {
	var calls int32
	client := New(
		WithRetryPolicy(fastPolicy(2)),
		WithBreaker("slow-api", CircuitBreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, OpenDuration: time.Minute, HalfOpenMaxCalls: 1}),
		WithTransport(RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			atomic.AddInt32(&calls, 1)
			return nil, &url.Error{Op: "Get", URL: r.URL.String(), Err: context.DeadlineExceeded}
		})),
	)

	_, err := client.Get(context.Background(), "http://api.invalid/slow")

	var exhausted *RetriesExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Expected RetriesExhaustedError, got %T: %v", err, err)
	}
	var clientErr *ClientError
	if !errors.As(err, &clientErr) || clientErr.Type != ErrorTypeTimeout {
		t.Fatalf("Expected a Timeout failure, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("Expected 2 transport calls, got %d", got)
	}
	if got := client.BreakerStats()["slow-api"].State; got != StateOpen {
		t.Errorf("Expected repeated timeouts to open the breaker, got %v", got)
	}
}

func TestClientCancellationLeavesBreakerCountersAlone(t *testing.T) {
	var calls int32
	client := New(
		WithRetryPolicy(fastPolicy(1)),
		WithBreaker("cancel-api", CircuitBreakerConfig{FailureThreshold: 3, SuccessThreshold: 1, OpenDuration: time.Minute, HalfOpenMaxCalls: 1}),
		WithTransport(RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			if atomic.AddInt32(&calls, 1) <= 2 {
				return nil, errors.New("connection reset")
			}
			return nil, &url.Error{Op: "Get", URL: r.URL.String(), Err: context.Canceled}
		})),
	)

	for i := 0; i < 2; i++ {
		client.Get(context.Background(), "http://api.invalid/feed")
	}

	_, err := client.Get(context.Background(), "http://api.invalid/feed")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected the cancellation to propagate, got %v", err)
	}

	stats := client.BreakerStats()["cancel-api"]
	if stats.State != StateClosed {
		t.Fatalf("Expected closed, got %v", stats.State)
	}
	if stats.Failures != 2 {
		t.Errorf("Expected cancellation to leave the failure count at 2, got %d", stats.Failures)
	}
}

func TestClientCircuitOpenRejectsWithoutTransport(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(
		WithRetryPolicy(fastPolicy(1)),
		WithBreaker("api", CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, OpenDuration: time.Hour, HalfOpenMaxCalls: 1}),
	)

	client.Get(context.Background(), server.URL)
	before := atomic.LoadInt32(&calls)

	_, err := client.Get(context.Background(), server.URL)
	var open *CircuitOpenError
	if !errors.As(err, &open) {
		t.Fatalf("Expected CircuitOpenError, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != before {
		t.Errorf("Expected no transport call while open, got %d extra", got-before)
	}

	client.ResetAllBreakers()
	resp, err := client.Get(context.Background(), server.URL)
	if err != nil && resp == nil {
		var exhausted *RetriesExhaustedError
		if !errors.As(err, &exhausted) {
			t.Errorf("Expected calls to flow after reset, got %v", err)
		}
	}
}

func TestClientThrottledResponseRetriedNotBreakerFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := New(
		WithRetryPolicy(fastPolicy(3)),
		WithBreaker("api", CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, OpenDuration: time.Hour, HalfOpenMaxCalls: 1}),
	)

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected recovery after throttling, got %v", err)
	}
	resp.Body.Close()

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("Expected 2 upstream calls, got %d", got)
	}
	if state := client.BreakerStats()["api"].State; state != StateClosed {
		t.Errorf("Expected throttling to leave the breaker closed, got %v", state)
	}
}

func TestClientRateLimitRejectionIsTerminal(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := New(
		WithRetryPolicy(fastPolicy(3)),
		WithRateLimit(0.001, 1),
	)

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected the first request inside the burst, got %v", err)
	}
	resp.Body.Close()

	_, err = client.Get(context.Background(), server.URL)
	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("Expected ClientError, got %T: %v", err, err)
	}
	if clientErr.Type != ErrorTypeRateLimit {
		t.Errorf("Expected RateLimit error type, got %q", clientErr.Type)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected the rejected request to never reach the transport, calls=%d", got)
	}
}

func TestClientPostBodyReplayedOnRetry(t *testing.T) {
	var bodies []string
	var mu sync.Mutex
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		mu.Unlock()
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("accepted"))
	}))
	defer server.Close()

	client := New(WithRetryPolicy(fastPolicy(3)))
	resp, err := client.Post(context.Background(), server.URL, "application/json", strings.NewReader(`{"bet":"win"}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	resp.Body.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 2 {
		t.Fatalf("Expected 2 attempts, got %d", len(bodies))
	}
	for i, body := range bodies {
		if body != `{"bet":"win"}` {
			t.Errorf("Expected full body on attempt %d, got %q", i+1, body)
		}
	}
}

func TestClientDeduplicationMergesConcurrentGets(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		<-release
		w.Write([]byte("shared"))
	}))
	defer server.Close()

	client := New(
		WithRetryPolicy(fastPolicy(1)),
		WithDeduplication(),
	)

	const waiters = 4
	var wg sync.WaitGroup
	results := make([]string, waiters)
	errs := make([]error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			resp, err := client.Get(context.Background(), server.URL+"/next-to-go")
			if err != nil {
				errs[n] = err
				return
			}
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			results[n] = string(body)
		}(i)
	}

	// Let every goroutine reach the singleflight gate before the upstream
	// responds.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for n := 0; n < waiters; n++ {
		if errs[n] != nil {
			t.Fatalf("Waiter %d failed: %v", n, errs[n])
		}
		if results[n] != "shared" {
			t.Errorf("Waiter %d got %q, want shared", n, results[n])
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected 1 upstream call for concurrent identical GETs, got %d", got)
	}
}

func TestClientMiddlewareOrdering(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get("X-Trace")))
	}))
	defer server.Close()

	appendTrace := func(value string) Middleware {
		return func(req *http.Request, next RoundTripper) (*http.Response, error) {
			trace := req.Header.Get("X-Trace")
			req.Header.Set("X-Trace", trace+value)
			return next.RoundTrip(req)
		}
	}

	client := New(
		WithRetryPolicy(fastPolicy(1)),
		WithMiddleware(appendTrace("a"), appendTrace("b")),
	)

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ab" {
		t.Errorf("Expected middleware applied in registration order, got %q", body)
	}
}

func TestClientSharedBreakerRegistry(t *testing.T) {
	registry := NewBreakerRegistry(CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, OpenDuration: time.Hour, HalfOpenMaxCalls: 1})

	first := New(WithBreakerRegistry(registry), WithBreaker("shared", CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, OpenDuration: time.Hour, HalfOpenMaxCalls: 1}))
	second := New(WithBreakerRegistry(registry), WithBreaker("shared", CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, OpenDuration: time.Hour, HalfOpenMaxCalls: 1}))

	if first.Registry() != second.Registry() {
		t.Fatal("Expected both clients to share the registry")
	}
	if registry.Get("shared") != first.Registry().Get("shared") {
		t.Error("Expected the shared breaker instance")
	}
}

func TestClientConfigurationValidation(t *testing.T) {
	client := New(
		WithHTTPClient(nil),
		WithMiddleware(nil),
	)

	if client.IsValid() {
		t.Fatal("Expected validation to fail")
	}

	var clientErr *ClientError
	if !errors.As(client.ValidationError(), &clientErr) {
		t.Fatalf("Expected ClientError, got %T", client.ValidationError())
	}
	if clientErr.Type != ErrorTypeValidation {
		t.Errorf("Expected Validation type, got %q", clientErr.Type)
	}

	valid := New(WithRetryPolicy(fastPolicy(3)))
	if !valid.IsValid() {
		t.Errorf("Expected default configuration to validate, got %v", valid.ValidationError())
	}
}
