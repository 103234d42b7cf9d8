// Package changefeed delivers row change notifications from the persistent
// store to interested consumers. Writers publish an event after every
// committed write; subscribers register interest in (table, event types,
// client scope) and receive asynchronous callbacks. Delivery is at-least-once
// from the consumer's point of view: the same logical change may be observed
// again through a reconciling re-read, so consumers must treat every
// notification as a trigger for an idempotent full refresh, never as a delta.
package changefeed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Table names published on the feed.
const (
	TableEngagements    = "engagements"
	TableDiscoveryCalls = "discovery_calls"
	TableWaitlist       = "waitlist_entries"
)

// EventType classifies a row change.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Event is a single row change notification.
type Event struct {
	Table      string          `json:"table"`
	Type       EventType       `json:"type"`
	ClientID   uuid.UUID       `json:"client_id"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Handler receives events asynchronously. Handlers must not block.
type Handler func(Event)

// Subscription is a registered interest on the feed. Callers are responsible
// for unsubscribing on teardown.
type Subscription interface {
	Unsubscribe()
}

// Feed is the change-notification channel boundary.
//
// Subscribe filters: an empty types slice matches all event types; a Nil
// clientID matches all clients.
type Feed interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(table string, types []EventType, clientID uuid.UUID, h Handler) (Subscription, error)
}

// matches reports whether the event passes a subscriber's filter.
func matches(ev Event, table string, types []EventType, clientID uuid.UUID) bool {
	if ev.Table != table {
		return false
	}
	if clientID != uuid.Nil && ev.ClientID != clientID {
		return false
	}
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if ev.Type == t {
			return true
		}
	}
	return false
}

// ============================================================================
// In-process feed
// ============================================================================

type memorySubscriber struct {
	table    string
	types    []EventType
	clientID uuid.UUID
	handler  Handler
}

// MemoryFeed is an in-process Feed for single-node deployments and tests.
type MemoryFeed struct {
	mu          sync.Mutex
	subscribers map[int]*memorySubscriber
	nextID      int
}

// NewMemoryFeed creates an empty in-process feed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{
		subscribers: make(map[int]*memorySubscriber),
	}
}

// Publish dispatches the event to every matching subscriber. Dispatch is
// synchronous; handlers are expected to hand off to their own timers or
// channels immediately.
func (f *MemoryFeed) Publish(_ context.Context, ev Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	f.mu.Lock()
	var handlers []Handler
	for _, sub := range f.subscribers {
		if matches(ev, sub.table, sub.types, sub.clientID) {
			handlers = append(handlers, sub.handler)
		}
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
	return nil
}

// Subscribe registers a handler for matching events.
func (f *MemoryFeed) Subscribe(table string, types []EventType, clientID uuid.UUID, h Handler) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	f.subscribers[id] = &memorySubscriber{
		table:    table,
		types:    types,
		clientID: clientID,
		handler:  h,
	}

	return &memorySubscription{feed: f, id: id}, nil
}

type memorySubscription struct {
	feed *MemoryFeed
	id   int
	once sync.Once
}

func (s *memorySubscription) Unsubscribe() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		delete(s.feed.subscribers, s.id)
		s.feed.mu.Unlock()
	})
}

var _ Feed = (*MemoryFeed)(nil)
