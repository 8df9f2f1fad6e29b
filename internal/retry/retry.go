// Package retry runs an operation under a bounded, fixed-backoff retry policy.
package retry

import (
	"context"
	"time"
)

// Policy bounds how often an operation is attempted.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Backoff is the pause before every retry.
	Backoff time.Duration
	// ShouldRetry decides whether an error is worth another attempt. A nil
	// ShouldRetry retries every error.
	ShouldRetry func(error) bool
	// OnRetry, if set, is called before sleeping ahead of attempt number next.
	OnRetry func(next int, err error)
}

// Default returns the policy used for public market reads: one retry after 3s.
func Default(shouldRetry func(error) bool) Policy {
	return Policy{MaxAttempts: 2, Backoff: 3 * time.Second, ShouldRetry: shouldRetry}
}

// Once returns a policy that never retries.
func Once() Policy {
	return Policy{MaxAttempts: 1}
}

// Do calls fn until it succeeds, returns a non-retryable error, or the attempts
// run out. The last error is returned unchanged. Cancelling ctx during backoff
// returns the last error of fn.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := max(p.MaxAttempts, 1)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if attempt == attempts || (p.ShouldRetry != nil && !p.ShouldRetry(err)) {
			return err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err)
		}
		if p.Backoff > 0 {
			timer := time.NewTimer(p.Backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return err
			}
		}
	}
	return err
}
