// Package auth implements AuthGuard (basic-auth validation) and
// AuthQuarantine, spec.md §4.6.
package auth

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/insight-platform/media-gateway-go/internal/cache"
)

// Quarantine tracks consecutive per-user authentication failures under a
// single exclusive lock and temporarily denies authentication once a user
// crosses failed_attempt_limit.
type Quarantine struct {
	mu          sync.Mutex
	failures    map[string]int
	limit       int
	quarantined *cache.LruTtlSet[string]
}

// NewQuarantine validates period > 0 and failed_attempt_limit > 0, per
// spec.md §4.6.
func NewQuarantine(period time.Duration, failedAttemptLimit, capacity int) (*Quarantine, error) {
	if period <= 0 {
		return nil, fmt.Errorf("quarantine: period must be > 0")
	}
	if failedAttemptLimit <= 0 {
		return nil, fmt.Errorf("quarantine: failed_attempt_limit must be > 0")
	}
	return &Quarantine{
		failures:    make(map[string]int),
		limit:       failedAttemptLimit,
		quarantined: cache.NewLruTtlSet[string](capacity, period),
	}, nil
}

// InQuarantine is a TTL-checked membership test.
func (q *Quarantine) InQuarantine(user string) bool {
	return q.quarantined.Contains(user)
}

// RegisterFailure increments the per-user failure counter; on reaching the
// limit it removes the counter and quarantines the user. Already-quarantined
// users are a no-op (logged as unreachable in practice, since AuthGuard
// checks InQuarantine before ever calling RegisterFailure).
func (q *Quarantine) RegisterFailure(user string) {
	if q.quarantined.Contains(user) {
		slog.Warn("register_failure called for an already-quarantined user", "user", user)
		return
	}

	q.mu.Lock()
	q.failures[user]++
	count := q.failures[user]
	if count >= q.limit {
		delete(q.failures, user)
	}
	q.mu.Unlock()

	if count >= q.limit {
		q.quarantined.Add(user)
	}
}

// RegisterSuccess clears the failure counter. No-op for a quarantined user.
func (q *Quarantine) RegisterSuccess(user string) {
	if q.quarantined.Contains(user) {
		return
	}
	q.mu.Lock()
	delete(q.failures, user)
	q.mu.Unlock()
}
