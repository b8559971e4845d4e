package updater

import (
	"context"
	"time"
)

// RetryPolicy retries a broker call with exponential backoff. It is applied
// explicitly at the broker-call boundary rather than as a cross-cutting
// wrapper, so callers can see exactly which calls retry.
type RetryPolicy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64
}

// DefaultRetryPolicy matches the broker's documented rate tolerances: three
// attempts, 500ms initial delay, doubling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		InitialDelay:  500 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

// Do calls fn up to MaxAttempts times, sleeping between attempts with
// exponential backoff. It returns nil on the first success, the last error
// when all attempts fail, and the context error if cancelled between attempts.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.InitialDelay

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}

		// No sleep after the final attempt.
		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * p.BackoffFactor)
		}
	}
	return err
}
