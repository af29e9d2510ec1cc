// Package backoff computes retry delays. It centralizes the exponential
// schedule so the executor and its tests share one implementation.
package backoff

import "time"

// Exponential returns the delay before retry attempt n (0-based: attempt 0 is
// the delay after the first failure). The schedule is deterministic:
//
//	initial, initial*multiplier, initial*multiplier^2, ...
//
// clamped at max. There is no jitter.
func Exponential(attempt int, initial, max time.Duration, multiplier float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Limit the exponent so the float math cannot overflow into a negative
	// duration.
	if attempt > 30 {
		attempt = 30
	}

	d := time.Duration(float64(initial) * Pow(multiplier, attempt))
	if d < 0 || d > max {
		d = max
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Pow calculates base^exponent using integer exponentiation.
func Pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
