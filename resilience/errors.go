package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Error type identifiers carried by ClientError.
const (
	ErrorTypeNetwork          = "Network"
	ErrorTypeTimeout          = "Timeout"
	ErrorTypeServer           = "Server"
	ErrorTypeRateLimit        = "RateLimit"
	ErrorTypeRateLimited      = "RateLimited" // upstream 429
	ErrorTypeRetriesExhausted = "RetriesExhausted"
	ErrorTypeValidation       = "Validation"
)

// ClientError is the failure value surfaced by the client. Type identifies the
// failure kind; Cause carries the underlying error when there is one.
type ClientError struct {
	Type       string
	Message    string
	Cause      error
	RequestID  string
	Method     string
	URL        string
	Endpoint   string
	StatusCode int
	Attempt    int
	Timestamp  time.Time
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d)", msg, e.Attempt)
	}
	return msg
}

// DebugInfo returns a verbose single-line description for debug logging.
func (e *ClientError) DebugInfo() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("type=%s message=%q method=%s url=%s endpoint=%s status=%d attempt=%d requestID=%s cause=%v",
		e.Type, e.Message, e.Method, e.URL, e.Endpoint, e.StatusCode, e.Attempt, e.RequestID, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*ClientError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// CircuitOpenError is returned when a breaker rejects a call without
// attempting it. RetryAfter estimates how long until the breaker admits a
// probe again; it is zero when the rejection was a half-open capacity limit.
type CircuitOpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("circuit breaker %q is open, retry in %.1fs", e.Name, e.RetryAfter.Seconds())
	}
	return fmt.Sprintf("circuit breaker %q is half-open and at capacity", e.Name)
}

// RetriesExhaustedError wraps the last underlying failure after the retry
// policy's attempt budget ran out. The raw failure is never surfaced alone so
// callers can distinguish "failed once" from "kept failing".
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Last
}

// FailureClass is the explicit classification of a transport outcome. The
// retry and breaker layers never inspect raw errors themselves; they act on
// the class a Classifier assigns.
type FailureClass int

const (
	// ClassSuccess means the call completed and the response, whatever its
	// status, is the caller's to interpret.
	ClassSuccess FailureClass = iota

	// ClassTransient marks network errors, timeouts and 5xx responses:
	// retryable, and counted as a failure by the circuit breaker.
	ClassTransient

	// ClassThrottled marks upstream 429 responses: retryable after backoff,
	// but not a breaker failure since the service is up and pushing back.
	ClassThrottled

	// ClassTerminal marks failures that must propagate immediately: circuit
	// rejections and context cancellation. Terminal errors are recorded
	// neither for nor against the breaker.
	ClassTerminal
)

// Classifier maps a transport outcome to a FailureClass.
type Classifier func(resp *http.Response, err error) FailureClass

// DefaultClassifier implements the standard taxonomy: circuit rejections and
// context cancellation are terminal, network errors and timeouts and 5xx are
// transient, 429 is throttled, everything else is success. Deadline expiry is
// a timeout, so it stays transient and counts against the breaker.
func DefaultClassifier(resp *http.Response, err error) FailureClass {
	if err != nil {
		var open *CircuitOpenError
		if errors.As(err, &open) {
			return ClassTerminal
		}
		if errors.Is(err, context.Canceled) {
			return ClassTerminal
		}
		// Timeouts, deadline expiry included, and all other network-level
		// failures are transient.
		return ClassTransient
	}
	if resp != nil {
		if resp.StatusCode == http.StatusTooManyRequests {
			return ClassThrottled
		}
		if resp.StatusCode >= 500 {
			return ClassTransient
		}
	}
	return ClassSuccess
}

// IsTransient reports whether an error represents a transient failure that
// might succeed on retry. Circuit rejections are deliberately not transient:
// retrying into a known-open circuit wastes the delay budget without ever
// reaching the transport.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var open *CircuitOpenError
	if errors.As(err, &open) {
		return false
	}

	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Type {
		case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeServer, ErrorTypeRateLimited:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

// errorTypeFor picks the ClientError type for a transient transport outcome.
func errorTypeFor(resp *http.Response, err error) string {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ErrorTypeTimeout
		}
		return ErrorTypeNetwork
	}
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		return ErrorTypeRateLimited
	}
	return ErrorTypeServer
}
