package cache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Tracker is the minimal surface a UsageWatchdog samples: an eviction
// counter that can be atomically read-and-zeroed. Both LruCache and
// LruTtlSet satisfy it.
type Tracker interface {
	Reset() uint64
}

// UsageWatchdog periodically samples a cache's eviction counter and logs a
// warning when the observed per-second eviction rate exceeds the configured
// threshold. Rate is computed over actual elapsed wall-clock time between
// samples, not the configured period, so scheduler jitter doesn't produce
// false positives (spec.md §9 "Eviction-pressure as a signal").
type UsageWatchdog struct {
	name      string
	period    time.Duration
	threshold uint64
	tracker   Tracker
	started   atomic.Bool
}

func NewUsageWatchdog(name string, period time.Duration, threshold uint64, tracker Tracker) *UsageWatchdog {
	return &UsageWatchdog{name: name, period: period, threshold: threshold, tracker: tracker}
}

// Run blocks until ctx is canceled. A second concurrent call fails fast:
// the watchdog is idempotently single-start per spec.md §4.2.
func (w *UsageWatchdog) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errAlreadyStarted{name: w.name}
	}
	defer w.started.Store(false)

	ticker := time.NewTicker(w.period)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			elapsed := now.Sub(last)
			last = now

			evicted := w.tracker.Reset()
			w.checkRate(evicted, elapsed)
		}
	}
}

func (w *UsageWatchdog) checkRate(evicted uint64, elapsed time.Duration) {
	if elapsed <= 0 {
		return
	}
	observedRate := float64(evicted) / elapsed.Seconds()
	allowedRate := float64(w.threshold) / w.period.Seconds()
	if observedRate > allowedRate {
		slog.Warn("cache eviction rate exceeded threshold",
			"cache", w.name, "evicted", evicted, "elapsed", elapsed, "threshold_per_period", w.threshold)
	}
}

type errAlreadyStarted struct{ name string }

func (e errAlreadyStarted) Error() string { return "usage watchdog " + e.name + ": already started" }
