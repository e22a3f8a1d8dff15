// Package resilience provides circuit breaker and rate limiter primitives
// shared by every consumed port (LLM, Embedder, GraphStore, VectorStore,
// RelationalStore).
package resilience

import (
	"context"
	"errors"
	"sync"

	"github.com/cognipipe/cognipipe/internal/fn"
	"golang.org/x/time/rate"
)

var ErrRateLimited = errors.New("rate limited")

// LimiterOpts configures the token bucket rate limiter.
type LimiterOpts struct {
	// Rate is the number of tokens added per second.
	Rate float64
	// Burst is the maximum number of tokens (bucket capacity).
	Burst int
}

// Limiter implements a token bucket rate limiter over
// golang.org/x/time/rate, preserving the method surface the pipeline and
// provider adapters call against.
type Limiter struct {
	rl *rate.Limiter
}

// NewLimiter creates a token bucket rate limiter.
func NewLimiter(opts LimiterOpts) *Limiter {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Limiter{rl: rate.NewLimiter(rate.Limit(opts.Rate), opts.Burst)}
}

// Allow checks if a request is allowed (non-blocking).
func (l *Limiter) Allow() bool {
	return l.rl.Allow()
}

// Wait blocks until a token is available or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.rl.Wait(ctx)
}

// Call executes f if a token is available, otherwise returns ErrRateLimited.
func (l *Limiter) Call(ctx context.Context, f func(context.Context) error) error {
	if !l.Allow() {
		return ErrRateLimited
	}
	return f(ctx)
}

// CallWait waits for a token then executes f.
func (l *Limiter) CallWait(ctx context.Context, f func(context.Context) error) error {
	if err := l.Wait(ctx); err != nil {
		return err
	}
	return f(ctx)
}

// LimiterStage wraps an fn.Stage with rate limiting (non-blocking, returns error if limited).
func LimiterStage[In, Out any](l *Limiter, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	return func(ctx context.Context, in In) fn.Result[Out] {
		if !l.Allow() {
			return fn.Err[Out](ErrRateLimited)
		}
		return stage(ctx, in)
	}
}

// LimiterStageWait wraps an fn.Stage with rate limiting (blocking, waits for token).
func LimiterStageWait[In, Out any](l *Limiter, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	return func(ctx context.Context, in In) fn.Result[Out] {
		if err := l.Wait(ctx); err != nil {
			return fn.Err[Out](err)
		}
		return stage(ctx, in)
	}
}

// LimiterGroup holds one Limiter per (provider, resource) key; limiters
// are shared across tenants. Limiters are created lazily with the group's
// default options.
type LimiterGroup struct {
	mu       sync.Mutex
	defaults LimiterOpts
	limiters map[string]*Limiter
}

// NewLimiterGroup creates a group that lazily constructs limiters with
// defaults when first asked for a (provider, resource) pair.
func NewLimiterGroup(defaults LimiterOpts) *LimiterGroup {
	return &LimiterGroup{defaults: defaults, limiters: make(map[string]*Limiter)}
}

// For returns the Limiter for (provider, resource), creating it on first
// use.
func (g *LimiterGroup) For(provider, resource string) *Limiter {
	key := provider + "\x00" + resource
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.limiters[key]
	if !ok {
		l = NewLimiter(g.defaults)
		g.limiters[key] = l
	}
	return l
}
