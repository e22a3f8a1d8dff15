// Package eventbus implements the Pipeline Engine's run-event broadcast:
// each PipelineRun gets an in-memory single-producer-many-consumer
// channel, lossy to slow subscribers (drop-oldest) so a stalled WebSocket
// client can never back-pressure the run itself. An optional NATS mirror
// publishes the same events for out-of-process subscribers.
package eventbus

import (
	"context"
	"sync"

	"github.com/cognipipe/cognipipe/internal/natsutil"
	"github.com/nats-io/nats.go"
)

// EventType names a PipelineRun lifecycle event.
type EventType string

const (
	EventRunStarted     EventType = "run_started"
	EventStageStarted   EventType = "stage_started"
	EventStageCompleted EventType = "stage_completed"
	EventRunCompleted   EventType = "run_completed"
	EventRunFailed      EventType = "run_failed"
	EventRunCancelled   EventType = "run_cancelled"
)

// Event is one broadcast message for a run.
type Event struct {
	RunID string         `json:"run_id"`
	Type  EventType      `json:"type"`
	Stage string         `json:"stage,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// subscriberBuffer bounds how many events a slow subscriber can lag by
// before the broadcaster starts dropping its oldest unread event.
const subscriberBuffer = 64

// RunBroadcaster fans out events for one run to any number of
// subscribers, dropping each subscriber's oldest buffered event rather
// than blocking the publisher.
type RunBroadcaster struct {
	mu          sync.Mutex
	subs        map[int]chan Event
	next        int
	nc          *nats.Conn
	natsSubject string
}

// NewRunBroadcaster creates a broadcaster for one run. nc may be nil, in
// which case events are only delivered to in-process subscribers.
func NewRunBroadcaster(nc *nats.Conn, natsSubject string) *RunBroadcaster {
	return &RunBroadcaster{subs: make(map[int]chan Event), nc: nc, natsSubject: natsSubject}
}

// Subscribe returns a channel receiving this run's events and an unsubscribe
// function. The caller must call unsubscribe when done to free the slot.
func (b *RunBroadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

// Publish delivers ev to every current subscriber, dropping each
// subscriber's oldest event on overflow, and mirrors to NATS if
// configured.
func (b *RunBroadcaster) Publish(ctx context.Context, ev Event) {
	b.mu.Lock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Drop-oldest: make room then retry once.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
	b.mu.Unlock()

	if b.nc != nil {
		_ = natsutil.Publish(ctx, b.nc, b.natsSubject, ev)
	}
}

// Close closes every subscriber channel. The broadcaster is unusable
// afterward.
func (b *RunBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Registry looks up or creates a RunBroadcaster per run ID, so the
// pipeline engine and an external subscription API can share one
// broadcaster per run without coordinating construction order.
type Registry struct {
	mu           sync.Mutex
	broadcasters map[string]*RunBroadcaster
	nc           *nats.Conn
	natsSubject  func(runID string) string
}

func NewRegistry(nc *nats.Conn, natsSubject func(runID string) string) *Registry {
	return &Registry{broadcasters: make(map[string]*RunBroadcaster), nc: nc, natsSubject: natsSubject}
}

func (r *Registry) For(runID string) *RunBroadcaster {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.broadcasters[runID]
	if !ok {
		subject := ""
		if r.natsSubject != nil {
			subject = r.natsSubject(runID)
		}
		b = NewRunBroadcaster(r.nc, subject)
		r.broadcasters[runID] = b
	}
	return b
}

func (r *Registry) Remove(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.broadcasters[runID]; ok {
		b.Close()
		delete(r.broadcasters, runID)
	}
}
