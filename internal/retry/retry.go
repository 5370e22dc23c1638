// Package retry implements exponential-backoff retries for calls to
// generation services and other flaky externals. Only errors explicitly
// marked transient are retried; everything else propagates immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// TransientError marks a failure as worth retrying.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

func (e *TransientError) Transient() bool { return true }

// Transient wraps err so a Policy will retry it. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Transientf is fmt.Errorf followed by Transient.
func Transientf(format string, args ...any) error {
	return &TransientError{Err: fmt.Errorf(format, args...)}
}

// IsTransient reports whether err (or anything it wraps) declares itself
// retryable via a `Transient() bool` method.
func IsTransient(err error) bool {
	var t interface{ Transient() bool }
	return errors.As(err, &t) && t.Transient()
}

// ExhaustedRetries is returned when every allowed attempt failed with a
// transient error. LastErr is the failure from the final attempt.
type ExhaustedRetries struct {
	Op       string
	Attempts int
	LastErr  error
}

func (e *ExhaustedRetries) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempts: %v", e.Op, e.Attempts, e.LastErr)
}

func (e *ExhaustedRetries) Unwrap() error { return e.LastErr }

// Policy holds retry parameters. The zero value is unusable; use New or
// fill MaxAttempts and BaseDelay explicitly.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Log         *slog.Logger

	// sleep is swapped in tests to count delays without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(maxAttempts int, baseDelay time.Duration) Policy {
	return Policy{MaxAttempts: maxAttempts, BaseDelay: baseDelay}
}

func (p Policy) logger() *slog.Logger {
	if p.Log != nil {
		return p.Log
	}
	return slog.Default()
}

func (p Policy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs op up to MaxAttempts times. Attempt k (1-based) that fails with a
// transient error is followed by a BaseDelay * 2^(k-1) pause. Permanent
// errors and context cancellation are returned as-is.
func (p Policy) Do(ctx context.Context, name string, op func(context.Context) error) error {
	_, err := DoValue(ctx, p, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, name string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if !IsTransient(err) {
			return zero, err
		}
		last = err
		if attempt == attempts {
			break
		}
		delay := p.BaseDelay << (attempt - 1)
		p.logger().Warn("transient failure, retrying",
			"op", name, "attempt", attempt, "of", attempts, "delay", delay, "err", err)
		if werr := p.wait(ctx, delay); werr != nil {
			return zero, werr
		}
	}
	return zero, &ExhaustedRetries{Op: name, Attempts: attempts, LastErr: last}
}
