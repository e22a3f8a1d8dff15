package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLimiterAllowBurst(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 10, Burst: 3})
	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Fatalf("expected allow on call %d", i)
		}
	}
	if l.Allow() {
		t.Fatal("expected rejection after burst exhausted")
	}
}

func TestLimiterGroupScopesByProviderAndResource(t *testing.T) {
	g := NewLimiterGroup(LimiterOpts{Rate: 10, Burst: 1})
	a := g.For("openai", "chat")
	b := g.For("openai", "embeddings")
	if a == b {
		t.Fatalf("distinct resources must get distinct limiters")
	}
	if g.For("openai", "chat") != a {
		t.Fatalf("same key must return the same limiter")
	}
}

func TestCallReturnsErrRateLimited(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 1, Burst: 1})
	ctx := context.Background()
	if err := l.Call(ctx, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.Call(ctx, func(context.Context) error { return nil }); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 2, Timeout: time.Hour})
	ctx := context.Background()
	failing := func(context.Context) error { return errors.New("boom") }

	b.Call(ctx, failing)
	if b.State() != StateClosed {
		t.Fatalf("expected closed after 1 failure")
	}
	b.Call(ctx, failing)
	if b.State() != StateOpen {
		t.Fatalf("expected open after reaching threshold")
	}
	if err := b.Call(ctx, func(context.Context) error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen while tripped, got %v", err)
	}
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	fixed := time.Now()
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: time.Minute, HalfOpenMax: 1})
	b.now = func() time.Time { return fixed }
	ctx := context.Background()

	b.Call(ctx, func(context.Context) error { return errors.New("boom") })
	if b.State() != StateOpen {
		t.Fatalf("expected open")
	}

	b.now = func() time.Time { return fixed.Add(2 * time.Minute) }
	if got := b.State(); got != StateHalfOpen {
		t.Fatalf("expected half-open after timeout elapsed, got %s", got)
	}

	if err := b.Call(ctx, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("expected probe to succeed: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after successful probe")
	}
}
