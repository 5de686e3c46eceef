package statistics

import (
	"context"
	"testing"
	"time"
)

func TestRegisterMessageEndLogsOnFramePeriod(t *testing.T) {
	s := New(Config{FramePeriod: 2, HistorySize: 8})

	id1 := s.RegisterMessageStart()
	s.RegisterMessageEnd(id1)
	if s.sinceLog != 1 {
		t.Fatalf("expected sinceLog=1, got %d", s.sinceLog)
	}

	id2 := s.RegisterMessageStart()
	s.RegisterMessageEnd(id2)
	if s.sinceLog != 0 {
		t.Fatalf("expected sinceLog reset to 0 after hitting frame_period, got %d", s.sinceLog)
	}
}

func TestRunPeriodicLogNoOpWithoutTimestampPeriod(t *testing.T) {
	s := New(Config{FramePeriod: 1, HistorySize: 4})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	s.RunPeriodicLog(ctx)
}

func TestRegisterMessageEndUnknownIDIsNoop(t *testing.T) {
	s := New(Config{FramePeriod: 1, HistorySize: 4})
	s.RegisterMessageEnd(999)
	if s.sinceLog != 0 {
		t.Fatalf("expected no-op for unknown id, got sinceLog=%d", s.sinceLog)
	}
}
