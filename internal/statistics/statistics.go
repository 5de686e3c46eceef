// Package statistics implements the message-latency instrumentation named
// in spec.md §6's statistics config table and supplemented from
// original_source/media_gateway_common/src/statistics.rs (dropped by the
// spec.md distillation): a start/end timer pair plus a bounded history used
// to periodically log summary latency stats.
package statistics

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Config mirrors spec.md §6's statistics table: at least one of FramePeriod
// or TimestampPeriod must be set.
type Config struct {
	FramePeriod     int           // log every N messages
	TimestampPeriod time.Duration // log every D elapsed
	HistorySize     int
}

// Statistics tracks in-flight per-message timers and a ring of recent
// latencies.
type Statistics struct {
	mu        sync.Mutex
	nextID    uint64
	started   map[uint64]time.Time
	history   []time.Duration
	historyAt int
	cfg       Config
	sinceLog  int
}

func New(cfg Config) *Statistics {
	return &Statistics{
		started: make(map[uint64]time.Time),
		history: make([]time.Duration, cfg.HistorySize),
		cfg:     cfg,
	}
}

// RegisterMessageStart records the start instant and returns an opaque id.
func (s *Statistics) RegisterMessageStart() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.started[id] = time.Now()
	return id
}

// RegisterMessageEnd closes the timer for id, folding the elapsed duration
// into the bounded history. Per SPEC_FULL.md §9(c), this is called on both
// the success path and on a message's terminal failure, never left open
// while a message is still retrying. When FramePeriod is configured, every
// Nth call also emits the summary line immediately, independent of
// RunPeriodicLog's timestamp-driven ticker.
func (s *Statistics) RegisterMessageEnd(id uint64) {
	s.mu.Lock()

	start, ok := s.started[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.started, id)

	if len(s.history) == 0 {
		s.mu.Unlock()
		return
	}
	s.history[s.historyAt] = time.Since(start)
	s.historyAt = (s.historyAt + 1) % len(s.history)
	s.sinceLog++

	dueToFrame := s.cfg.FramePeriod > 0 && s.sinceLog >= s.cfg.FramePeriod
	s.mu.Unlock()

	if dueToFrame {
		s.logSummary()
	}
}

// RunPeriodicLog blocks until ctx is canceled, emitting a summary log line
// every TimestampPeriod. Frame-count-driven logging happens inline in
// RegisterMessageEnd, so this is a no-op loop when only FramePeriod is set.
func (s *Statistics) RunPeriodicLog(ctx context.Context) {
	if s.cfg.TimestampPeriod <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(s.cfg.TimestampPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.logSummary()
		}
	}
}

func (s *Statistics) logSummary() {
	s.mu.Lock()
	count, min, max, mean := summarize(s.history)
	s.sinceLog = 0
	s.mu.Unlock()

	if count == 0 {
		return
	}
	slog.Info("message latency summary", "count", count, "min", min, "max", max, "mean", mean)
}

func summarize(history []time.Duration) (count int, min, max, mean time.Duration) {
	var total time.Duration
	for _, d := range history {
		if d == 0 {
			continue
		}
		count++
		total += d
		if min == 0 || d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	if count > 0 {
		mean = total / time.Duration(count)
	}
	return
}
