package events

import "testing"

func TestPublishAssignsIDAndFansOut(t *testing.T) {
	b := NewBus(4)
	id, ch, recent := b.Subscribe()
	defer b.Unsubscribe(id)
	if len(recent) != 0 {
		t.Fatalf("expected no recent events on a fresh bus")
	}

	b.Publish(Event{Type: EventForwardRetry, Message: "attempt 1"})

	select {
	case e := <-ch:
		if e.ID == "" {
			t.Fatalf("expected Publish to assign an id")
		}
		if e.Type != EventForwardRetry {
			t.Fatalf("unexpected type: %v", e.Type)
		}
	default:
		t.Fatalf("expected a fanned-out event")
	}
}

func TestRingBufferBounded(t *testing.T) {
	b := NewBus(2)
	b.Publish(Event{Type: EventAuthFailure, Message: "1"})
	b.Publish(Event{Type: EventAuthFailure, Message: "2"})
	b.Publish(Event{Type: EventAuthFailure, Message: "3"})

	_, _, recent := b.Subscribe()
	if len(recent) != 2 {
		t.Fatalf("expected ring buffer capped at 2, got %d", len(recent))
	}
	if recent[0].Message != "2" || recent[1].Message != "3" {
		t.Fatalf("expected oldest entry to be evicted, got %+v", recent)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus(4)
	id, ch, _ := b.Subscribe()
	b.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed after unsubscribe")
	}
}
