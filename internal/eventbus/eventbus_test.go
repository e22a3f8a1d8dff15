package eventbus

import (
	"context"
	"testing"
	"time"
)

func TestSubscribeReceivesPublishedEvents(t *testing.T) {
	b := NewRunBroadcaster(nil, "")
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	b.Publish(context.Background(), Event{RunID: "r1", Type: EventRunStarted})

	select {
	case ev := <-ch:
		if ev.Type != EventRunStarted {
			t.Fatalf("unexpected event type %v", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSlowSubscriberDropsOldestWithoutBlockingPublisher(t *testing.T) {
	b := NewRunBroadcaster(nil, "")
	_, unsubscribe := b.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			b.Publish(context.Background(), Event{RunID: "r1", Type: EventStageCompleted})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
}

func TestRegistryReusesBroadcasterPerRun(t *testing.T) {
	r := NewRegistry(nil, nil)
	a := r.For("run-1")
	b := r.For("run-1")
	if a != b {
		t.Fatalf("expected same broadcaster for same run ID")
	}
	c := r.For("run-2")
	if a == c {
		t.Fatalf("expected distinct broadcaster for distinct run ID")
	}
}
