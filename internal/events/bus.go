// Package events is the gateway's internal debug/health bus: a bounded ring
// buffer of recent lifecycle events plus live subscription, fed by the
// client and server relay pipelines.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the lifecycle event kinds of the bus; consumed by the
// debug/health surface, not by the relay's own control flow. The client
// pipeline publishes forward_retry and the server pipeline publishes
// auth_failure (failed authentication or a rejecting routing-label rule);
// the other kinds are defined but not published by any component.
type EventType string

const (
	EventForwardRetry   EventType = "forward_retry"
	EventForwardFailed  EventType = "forward_failed"
	EventAuthFailure    EventType = "auth_failure"
	EventQuarantined    EventType = "quarantined"
	EventCacheEvicted   EventType = "cache_evicted"
	EventWatchdogAlert  EventType = "watchdog_alert"
	EventReaderStalled  EventType = "reader_stalled"
)

type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	StreamName string    `json:"stream_name,omitempty"`
	Username   string    `json:"username,omitempty"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"ts"`
}

type Bus struct {
	mu          sync.RWMutex
	ring        []Event
	ringSize    int
	ringPos     int
	ringCount   int
	subscribers map[int]chan Event
	nextID      int
}

func NewBus(ringSize int) *Bus {
	if ringSize <= 0 {
		ringSize = 200
	}
	return &Bus{
		ring:        make([]Event, ringSize),
		ringSize:    ringSize,
		subscribers: make(map[int]chan Event),
	}
}

// Publish assigns a fresh correlation id (unless the caller already set one)
// and timestamp, then fans the event out to the ring buffer and any live
// subscribers. Subscribers use Event.ID to de-duplicate across a reconnect.
func (b *Bus) Publish(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.ring[b.ringPos] = e
	b.ringPos = (b.ringPos + 1) % b.ringSize
	if b.ringCount < b.ringSize {
		b.ringCount++
	}

	for _, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *Bus) Subscribe() (id int, ch <-chan Event, recent []Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := make(chan Event, 64)
	id = b.nextID
	b.nextID++
	b.subscribers[id] = c

	recent = b.recentLocked()
	return id, c, recent
}

func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

func (b *Bus) recentLocked() []Event {
	if b.ringCount == 0 {
		return nil
	}
	result := make([]Event, b.ringCount)
	start := (b.ringPos - b.ringCount + b.ringSize) % b.ringSize
	for i := range b.ringCount {
		result[i] = b.ring[(start+i)%b.ringSize]
	}
	return result
}
