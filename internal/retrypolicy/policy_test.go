package retrypolicy

import (
	"testing"
	"time"

	"github.com/insight-platform/media-gateway-go/internal/mgmodel"
)

func TestNextRetryFirstAttempt(t *testing.T) {
	p, err := New(time.Millisecond, time.Second, 2)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	r := p.NextRetry(nil)
	if r.Attempt != 1 || r.Delay != time.Millisecond {
		t.Fatalf("got %+v", r)
	}
}

func TestNextRetryExponentialWithCeiling(t *testing.T) {
	p, _ := New(time.Millisecond, 10*time.Millisecond, 2)
	r := p.NextRetry(nil)
	for i := 0; i < 10; i++ {
		next := p.NextRetry(&r)
		if next.Attempt != r.Attempt+1 {
			t.Fatalf("attempt did not increment monotonically: %+v -> %+v", r, next)
		}
		if next.Delay > 10*time.Millisecond {
			t.Fatalf("delay exceeded ceiling: %+v", next)
		}
		r = next
	}
	if r.Delay != 10*time.Millisecond {
		t.Fatalf("expected delay to saturate at ceiling, got %v", r.Delay)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(time.Second, time.Millisecond, 2); err == nil {
		t.Fatalf("expected error when initial_delay > maximum_delay")
	}
	if _, err := New(time.Millisecond, time.Second, 1.5); err == nil {
		t.Fatalf("expected error when multiplier < 2")
	}
}

func TestAttemptOverflowResets(t *testing.T) {
	p, _ := New(time.Millisecond, time.Second, 2)
	prev := mgmodel.Retry{Attempt: ^uint32(0), Delay: time.Millisecond}
	next := p.NextRetry(&prev)
	if next.Attempt != 0 {
		t.Fatalf("expected attempt to wrap to 0, got %d", next.Attempt)
	}
}
