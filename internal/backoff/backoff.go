package backoff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = time.Second

	// legacyExhaustedText is what the provider used to put in rate-limit messages.
	legacyExhaustedText = "Resource exhausted"
)

var ErrRetriesExhausted = errors.New("api call failed after multiple retries")

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s (%d attempts): %v", ErrRetriesExhausted.Error(), e.Attempts, e.Last)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrRetriesExhausted
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Options tune a retry loop. Non-positive MaxAttempts and BaseDelay fall back
// to the defaults.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Retryable   func(error) bool
	Sleep       func(ctx context.Context, d time.Duration) error
	OnRetry     func(attempt int, delay time.Duration, err error)
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.Retryable == nil {
		o.Retryable = IsResourceExhausted
	}
	if o.Sleep == nil {
		o.Sleep = SleepContext
	}
	return o
}

// Delay returns the wait after the failed attempt with the given zero-based index.
func (o Options) Delay(attempt int) time.Duration {
	o = o.withDefaults()
	return o.BaseDelay * time.Duration(1<<uint(attempt))
}

// Do invokes op until it succeeds, fails with a non-retryable error, or runs
// out of attempts. Waits grow as BaseDelay * 2^attempt with no jitter.
func Do[T any](ctx context.Context, opts Options, op func(ctx context.Context) (T, error)) (T, error) {
	opts = opts.withDefaults()

	var zero T
	var lastErr error
	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !opts.Retryable(err) {
			return zero, err
		}
		lastErr = err

		if attempt == opts.MaxAttempts-1 {
			break
		}
		delay := opts.Delay(attempt)
		if opts.OnRetry != nil {
			opts.OnRetry(attempt+1, delay, err)
		}
		if err := opts.Sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
	return zero, &ExhaustedError{Attempts: opts.MaxAttempts, Last: lastErr}
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsResourceExhausted reports whether err is a rate-limit condition. Errors that
// classify themselves through ResourceExhausted() win; the message match only
// covers errors that carry no structure.
func IsResourceExhausted(err error) bool {
	if err == nil {
		return false
	}
	var classified interface{ ResourceExhausted() bool }
	if errors.As(err, &classified) {
		return classified.ResourceExhausted()
	}
	return strings.Contains(err.Error(), legacyExhaustedText)
}
