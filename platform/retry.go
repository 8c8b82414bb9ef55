package platform

import (
	"context"
	"math"
	"time"
)

// RetryPolicy retries transient failures with exponential backoff:
// BackoffFactor^attempt seconds between attempts, up to MaxRetries retries
// after the initial attempt.
type RetryPolicy struct {
	MaxRetries    int
	BackoffFactor float64
}

// DefaultRetryPolicy matches the collection defaults (3 retries, factor 2).
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, BackoffFactor: 2}

// Wait returns the backoff before retry number attempt (0-based).
func (p RetryPolicy) Wait(attempt int) time.Duration {
	f := p.BackoffFactor
	if f <= 0 {
		f = 2
	}
	return time.Duration(math.Pow(f, float64(attempt)) * float64(time.Second))
}

// Do invokes fn until it succeeds, fails with a non-transient error, or the
// retry budget is exhausted. Only errors tagged Transient are retried; the
// last error is returned unwrapped from the tag's perspective (callers wrap
// it in UnavailableError). The inter-attempt sleep honors ctx cancellation.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		lastErr = err
		if attempt >= p.MaxRetries {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Wait(attempt)):
		}
	}
}
