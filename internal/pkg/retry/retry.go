// Package retry provides a generic retry helper with exponential backoff,
// shared by the RPC client and the off-chain price fetcher.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Config controls how attempts are spaced out.
type Config struct {
	// MaxRetries is the number of additional attempts after the first one.
	MaxRetries int
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration
	// MaxBackoff caps exponential growth of the delay.
	MaxBackoff time.Duration
	// BackoffFactor multiplies the delay after each retry.
	BackoffFactor float64
	// Jitter randomizes each delay as delay + rand(0, delay).
	Jitter bool
}

// DefaultConfig matches the RPC client defaults: 3 retries, 1s initial delay
// doubling up to 30s.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}

// RetryableFunc decides whether an error is worth another attempt.
type RetryableFunc func(error) bool

// ObserverFunc is invoked before each retry sleep. attempt is 1-indexed.
type ObserverFunc func(attempt int, err error, backoff time.Duration)

// Do runs fn until it succeeds, returns a non-retryable error, or the retry
// budget is spent. The context aborts the backoff sleep, not fn itself, so fn
// must honor the same context.
func Do[T any](
	ctx context.Context,
	cfg Config,
	retryable RetryableFunc,
	observe ObserverFunc,
	fn func() (T, error),
) (T, error) {
	var zero T

	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = 2.0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}

	backoff := cfg.InitialBackoff
	var lastErr error

	for attempt := 0; ; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !retryable(err) {
			return zero, err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		delay := backoff
		if cfg.Jitter {
			delay += time.Duration(rand.Int63n(int64(backoff)))
		}
		if observe != nil {
			observe(attempt+1, err, delay)
		}

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-time.After(delay):
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffFactor)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	return zero, &ExhaustedError{Attempts: cfg.MaxRetries + 1, LastErr: lastErr}
}

// DoVoid is Do for functions without a result value.
func DoVoid(
	ctx context.Context,
	cfg Config,
	retryable RetryableFunc,
	observe ObserverFunc,
	fn func() error,
) error {
	_, err := Do(ctx, cfg, retryable, observe, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
