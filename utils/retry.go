package utils

import (
	"context"
	"fmt"
	"time"
)

// Backoff computes the delay before the given retry attempt (1-based).
type Backoff func(attempt int) time.Duration

// ExponentialBackoff doubles the base delay on every attempt.
func ExponentialBackoff(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
		}
		return d
	}
}

// LinearBackoff scales the base delay by the attempt number
// (base, 2*base, 3*base, ...).
func LinearBackoff(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return base * time.Duration(attempt)
	}
}

// RetryConfig is the single retry policy injected into every adapter
// operation: max attempts plus a backoff function.
type RetryConfig struct {
	MaxAttempts int
	Backoff     Backoff
	Logger      *Logger
}

// Do executes fn until it succeeds or MaxAttempts is exhausted.
func (r *RetryConfig) Do(operationName string, fn func() error) error {
	return r.DoContext(context.Background(), operationName, fn)
}

// DoContext is Do with cancellation: the wait between attempts aborts as
// soon as ctx is done, and no further attempts run.
func (r *RetryConfig) DoContext(ctx context.Context, operationName string, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s canceled: %w", operationName, err)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if attempt < r.MaxAttempts {
			delay := r.Backoff(attempt)
			if r.Logger != nil {
				r.Logger.Warn("[retry] %s failed (attempt %d/%d): %v — retrying in %v",
					operationName, attempt, r.MaxAttempts, lastErr, delay)
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
			}
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, r.MaxAttempts, lastErr)
}
