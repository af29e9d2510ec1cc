package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/bencousins22/tab-mcp/internal/backoff"
)

// RetryPolicy is the immutable configuration for a retry sequence. Construct
// once and reuse across calls; it holds no mutable state.
type RetryPolicy struct {
	// MaxAttempts is the total number of invocations, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// InitialDelay is the wait after the first failed attempt.
	InitialDelay time.Duration

	// MaxDelay clamps the exponential schedule.
	MaxDelay time.Duration

	// Multiplier grows the delay between attempts.
	Multiplier float64
}

// DefaultRetryPolicy mirrors the upstream API defaults: three attempts,
// one second initial delay doubling up to four seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     4 * time.Second,
		Multiplier:   2.0,
	}
}

// normalized fills zero fields with defaults so a partially specified policy
// behaves sensibly.
func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 1 * time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2.0
	}
	return p
}

// Delay returns the wait before retry attempt n (0-based: Delay(0) follows
// the first failure). The sequence is deterministic, no jitter.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	n := p.normalized()
	return backoff.Exponential(attempt, n.InitialDelay, n.MaxDelay, n.Multiplier)
}

// Sleeper abstracts time-based waiting so tests can run retry sequences
// without real delays.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryExecutor re-invokes a fallible operation per a RetryPolicy. Attempts
// are strictly sequential: the delay suspends the calling goroutine, so an
// abandoned context ends the sequence with no orphaned background retries.
type RetryExecutor struct {
	policy  RetryPolicy
	retryOn func(error) bool
	sleeper Sleeper
	logger  *slog.Logger
}

// NewRetryExecutor builds an executor. retryOn decides which failures are
// retried; nil means IsTransient.
func NewRetryExecutor(policy RetryPolicy, retryOn func(error) bool) *RetryExecutor {
	if retryOn == nil {
		retryOn = IsTransient
	}
	return &RetryExecutor{
		policy:  policy.normalized(),
		retryOn: retryOn,
		sleeper: realSleeper{},
	}
}

// Policy returns the executor's normalized policy.
func (e *RetryExecutor) Policy() RetryPolicy {
	return e.policy
}

// Execute invokes op up to MaxAttempts times. A failure the retryOn function
// rejects propagates immediately. Once attempts are exhausted the last
// failure is wrapped in a *RetriesExhaustedError, never surfaced raw.
func (e *RetryExecutor) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !e.retryOn(err) {
			return err
		}

		if attempt == e.policy.MaxAttempts {
			break
		}

		delay := e.policy.Delay(attempt - 1)
		if e.logger != nil {
			e.logger.Debug("scheduling retry",
				"attempt", attempt,
				"maxAttempts", e.policy.MaxAttempts,
				"delay", delay,
				"error", err.Error(),
			)
		}
		if serr := e.sleeper.Sleep(ctx, delay); serr != nil {
			return serr
		}
	}

	return &RetriesExhaustedError{Attempts: e.policy.MaxAttempts, Last: lastErr}
}
