package sync

import (
	"sync"
	"time"

	"github.com/pipetrax/fieldsyncgo/internal/models"
)

// EventType identifies a sync lifecycle event
type EventType string

const (
	EventRecordSaved      EventType = "record_saved"
	EventSyncStarted      EventType = "sync_started"
	EventSyncCompleted    EventType = "sync_completed"
	EventSyncError        EventType = "sync_error"
	EventConflictDetected EventType = "conflict_detected"
)

// Event carries enough data for a consumer to render sync state without
// querying the store. Conflict events include both versions of the record.
type Event struct {
	Type      EventType             `json:"type"`
	ReportID  string                `json:"reportId,omitempty"`
	RemoteID  int64                 `json:"remoteId,omitempty"`
	Local     *models.PendingReport `json:"local,omitempty"`
	Remote    *RemoteReport         `json:"remote,omitempty"`
	Err       string                `json:"error,omitempty"`
	Terminal  bool                  `json:"terminal,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

// EventBus fans sync events out to subscribers. Consumers observe, never
// mutate: the bus is the only channel the engine communicates failures on.
type EventBus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[chan Event]struct{}),
	}
}

// Subscribe registers a new consumer. The returned channel is buffered; a
// consumer that stops draining loses events rather than blocking the engine.
func (b *EventBus) Subscribe() chan Event {
	ch := make(chan Event, 32)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a consumer and closes its channel
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish delivers an event to all subscribers without blocking
func (b *EventBus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber buffer full, drop for this consumer
		}
	}
}
