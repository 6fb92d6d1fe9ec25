// Package retry provides generic retry logic with jittered exponential
// backoff for transient failures. It uses Go generics for type-safe retry
// operations and respects context cancellation.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts  int           // Maximum number of attempts (including initial attempt)
	InitialDelay time.Duration // Initial delay between retries
	MaxDelay     time.Duration // Maximum delay between retries
	Multiplier   float64       // Multiplier for exponential backoff
	Jitter       float64       // Fractional jitter applied to each delay, e.g. 0.25 for ±25%
}

// DefaultConfig provides sensible defaults for retry operations.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     5 * time.Second,
	Multiplier:   2.0,
	Jitter:       0.25,
}

// Delay returns the backoff delay before retry number attempt (0-based).
// Jitter spreads concurrent clients so they do not retry in lockstep.
func (c Config) Delay(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if maxd := float64(c.MaxDelay); d > maxd {
		d = maxd
	}
	if c.Jitter > 0 {
		d *= 1 + c.Jitter*(2*rand.Float64()-1)
	}
	return time.Duration(d)
}

// IsRetryable determines if an error should trigger a retry.
type IsRetryable func(error) bool

// WithRetry executes a function with retry logic using generics for type
// safety. It applies jittered exponential backoff and respects context
// cancellation. Non-retryable errors are returned immediately.
func WithRetry[T any](
	ctx context.Context,
	config Config,
	isRetryable IsRetryable,
	fn func() (T, error),
) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("context cancelled: %w", err)
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !isRetryable(err) {
			return zero, err
		}

		// No sleep after the last attempt.
		if attempt < config.MaxAttempts-1 {
			select {
			case <-time.After(config.Delay(attempt)):
			case <-ctx.Done():
				return zero, fmt.Errorf("cancelled after %d attempts: %w", attempt+1, ctx.Err())
			}
		}
	}

	return zero, fmt.Errorf("gave up after %d attempts: %w", config.MaxAttempts, lastErr)
}

// WithSimpleRetry uses default configuration for retry operations.
func WithSimpleRetry[T any](
	ctx context.Context,
	fn func() (T, error),
	isRetryable IsRetryable,
) (T, error) {
	return WithRetry(ctx, DefaultConfig, isRetryable, fn)
}
