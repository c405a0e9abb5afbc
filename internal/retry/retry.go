// Package retry provides bounded retries with exponential backoff for
// transient failures. It is shared by the file writer and the upstream
// market-data client.
//
// Only errors explicitly marked with Transient are retried; validation and
// security failures pass through on the first attempt. Backoff sleeps
// select on the context, so callers can abandon a retry loop early.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config controls the retry loop.
type Config struct {
	// MaxAttempts bounds the total attempts. Zero is treated as one attempt.
	MaxAttempts int

	// InitialWait is the delay before the second attempt.
	InitialWait time.Duration

	// MaxWait caps the delay between attempts.
	MaxWait time.Duration

	// Multiplier grows the delay each attempt.
	Multiplier float64

	// Jitter randomizes each delay by up to the given fraction (0..1).
	Jitter float64
}

// DefaultConfig returns the retry policy used for file writes and upstream
// requests: three attempts with 100ms initial backoff doubling to at most
// five seconds.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		InitialWait: 100 * time.Millisecond,
		MaxWait:     5 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.1,
	}
}

// TransientError marks an error as safe to retry.
type TransientError struct {
	Err error
}

func (e TransientError) Error() string {
	return e.Err.Error()
}

func (e TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps an error to mark it as retryable. A nil error stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return TransientError{Err: err}
}

// IsTransient reports whether the error was marked with Transient.
func IsTransient(err error) bool {
	var te TransientError
	return errors.As(err, &te)
}

// Do runs fn until it succeeds, returns a non-transient error, the attempt
// budget is exhausted, or the context is canceled. The attempt number
// passed to fn starts at 1.
func Do(ctx context.Context, cfg Config, fn func(attempt int) error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsTransient(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, cfg, attempt); err != nil {
			return err
		}
	}
	return lastErr
}

// DoWithResult runs fn with the same policy as Do and returns its result.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func(attempt int) (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func(attempt int) error {
		r, err := fn(attempt)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

// sleep blocks for the attempt's backoff delay or until the context is done.
func sleep(ctx context.Context, cfg Config, attempt int) error {
	wait := float64(cfg.InitialWait) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if max := float64(cfg.MaxWait); cfg.MaxWait > 0 && wait > max {
		wait = max
	}
	if cfg.Jitter > 0 {
		wait += wait * cfg.Jitter * (rand.Float64()*2 - 1)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(wait)):
		return nil
	}
}
