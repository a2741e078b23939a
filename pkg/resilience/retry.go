package resilience

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig bounds RetryWithResult
type RetryConfig struct {
	MaxAttempts int
	// Delay between attempts; zero retries at once
	Delay time.Duration
	// Retryable reports whether err is worth another attempt. nil retries everything.
	Retryable func(error) bool
}

// ImmediateRetryConfig allows one extra attempt with no delay for errors accepted by retryable
func ImmediateRetryConfig(retryable func(error) bool) *RetryConfig {
	return &RetryConfig{MaxAttempts: 2, Retryable: retryable}
}

// RetryWithResult calls fn until it succeeds, returns a non-retryable error,
// or runs out of attempts. A cancelled ctx stops it between attempts.
func RetryWithResult[T any](ctx context.Context, config *RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	attempts := max(config.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		if config.Retryable != nil && !config.Retryable(err) {
			return zero, err
		}
		lastErr = err

		if attempt < attempts && config.Delay > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(config.Delay):
			}
		}
	}

	return zero, fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
}
