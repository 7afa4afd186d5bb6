package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
	Backoff     bool // linear backoff: attempt * Delay
	// Retryable reports whether err is worth another attempt. Nil retries everything.
	Retryable func(error) bool
}

// ErrNotRetryable can be wrapped by callers to stop retrying early.
var ErrNotRetryable = errors.New("not retryable")

func WithRetry(ctx context.Context, config RetryConfig, fn func() error) error {
	_, err := Do(ctx, config, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Do calls fn until it succeeds, the attempts run out, the error is not
// retryable, or ctx is done.
func Do[T any](ctx context.Context, config RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	attempts := config.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; ; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if errors.Is(err, ErrNotRetryable) || (config.Retryable != nil && !config.Retryable(err)) {
			return zero, err
		}
		if attempt >= attempts {
			if attempts == 1 {
				return zero, err
			}
			return zero, fmt.Errorf("failed after %d attempts: %w", attempts, err)
		}

		delay := config.Delay
		if config.Backoff {
			delay = time.Duration(attempt) * config.Delay
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}
