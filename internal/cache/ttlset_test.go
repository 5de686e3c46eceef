package cache

import (
	"testing"
	"time"
)

func TestLruTtlSetExpiry(t *testing.T) {
	s := NewLruTtlSet[string](10, 10*time.Millisecond)
	s.Add("a")
	if !s.Contains("a") {
		t.Fatalf("expected a to be present immediately")
	}
	time.Sleep(20 * time.Millisecond)
	if s.Contains("a") {
		t.Fatalf("expected a to have expired")
	}
}

func TestLruTtlSetCapacityEviction(t *testing.T) {
	s := NewLruTtlSet[string](2, time.Hour)
	s.Add("a")
	s.Add("b")
	s.Add("c") // capacity 2, no expired entries to reclaim: evicts "a"

	if s.Contains("a") {
		t.Fatalf("expected a to be evicted")
	}
	if !s.Contains("b") || !s.Contains("c") {
		t.Fatalf("expected b and c to remain")
	}
	if s.Evicted() != 1 {
		t.Fatalf("expected 1 eviction, got %d", s.Evicted())
	}
}

func TestLruTtlSetExpiredReclaimedBeforeEviction(t *testing.T) {
	s := NewLruTtlSet[string](2, 5*time.Millisecond)
	s.Add("a")
	time.Sleep(10 * time.Millisecond)
	s.Add("b")
	s.Add("c") // "a" is expired and should be reclaimed instead of evicting "b"

	if s.Evicted() != 0 {
		t.Fatalf("expected expired reclaim, not a genuine eviction, got %d", s.Evicted())
	}
	if !s.Contains("b") || !s.Contains("c") {
		t.Fatalf("expected b and c to remain")
	}
}
