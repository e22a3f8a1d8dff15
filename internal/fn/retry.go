package fn

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryOpts configures retry behavior.
type RetryOpts struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Jitter      bool
	// ShouldRetry reports whether err is worth another attempt. Nil means
	// always retry (the prior behavior). Callers that distinguish
	// transient from permanent failures (e.g. internal/domain.IsRetryable)
	// should set this so a permanent error fails fast instead of burning
	// through MaxAttempts.
	ShouldRetry func(error) bool
}

// DefaultRetry provides sensible retry defaults: base 1s, cap 60s, up to
// 5 attempts.
var DefaultRetry = RetryOpts{
	MaxAttempts: 5,
	InitialWait: time.Second,
	MaxWait:     60 * time.Second,
	Jitter:      true,
}

// retryAfterer is implemented by errors that carry a server-specified
// retry delay (e.g. domain.TransientBackendError). When present it
// overrides the computed backoff for that attempt.
type retryAfterer interface {
	error
	RetryAfterDuration() time.Duration
}

// Retry retries f up to MaxAttempts times with exponential backoff,
// honoring a RetryAfter hint on the returned error when present.
func Retry[T any](ctx context.Context, opts RetryOpts, f func(context.Context) Result[T]) Result[T] {
	var result Result[T]
	wait := opts.InitialWait
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultRetry.MaxAttempts
	}

	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		result = f(ctx)
		if result.IsOk() {
			return result
		}
		if opts.ShouldRetry != nil && !opts.ShouldRetry(result.Error()) {
			return result
		}
		if attempt == opts.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return Err[T](ctx.Err())
		default:
		}

		sleepDur := wait
		var ra retryAfterer
		if errors.As(result.Error(), &ra) {
			if d := ra.RetryAfterDuration(); d > 0 {
				sleepDur = d
			}
		} else if opts.Jitter {
			sleepDur = time.Duration(float64(wait) * (0.5 + rand.Float64()))
		}
		if sleepDur > opts.MaxWait {
			sleepDur = opts.MaxWait
		}

		select {
		case <-ctx.Done():
			return Err[T](ctx.Err())
		case <-time.After(sleepDur):
		}

		wait *= 2
		if wait > opts.MaxWait {
			wait = opts.MaxWait
		}
	}
	return result
}

// RetryStage wraps a Stage with retry logic.
func RetryStage[In, Out any](opts RetryOpts, stage Stage[In, Out]) Stage[In, Out] {
	return func(ctx context.Context, in In) Result[Out] {
		return Retry(ctx, opts, func(ctx context.Context) Result[Out] {
			return stage(ctx, in)
		})
	}
}
