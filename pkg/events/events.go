package events

import (
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/types"
)

// EventType represents the type of event
type EventType string

const (
	EventContextUpdated EventType = "context.updated"
	EventContextDeleted EventType = "context.deleted"
)

// Event represents a context change
type Event struct {
	Type      EventType
	ContextID string
	Metadata  *types.Metadata // set for updated events
	Timestamp time.Time
}

// DefaultQueueSize is the per-subscriber delivery queue bound
const DefaultQueueSize = 128

// Subscription is one subscriber's delivery queue. When the queue overflows
// the oldest pending event is dropped and the overflow marker is set; the
// consumer is expected to reconcile after observing it.
type Subscription struct {
	ch chan Event

	mu         sync.Mutex
	overflowed bool
}

// Events returns the delivery channel. It is closed on Unsubscribe.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// TakeOverflow reports and clears the overflow marker
func (s *Subscription) TakeOverflow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.overflowed
	s.overflowed = false
	return v
}

// deliver enqueues without ever blocking the publisher. On a full queue the
// oldest pending event is discarded first. Returns the number of events lost.
func (s *Subscription) deliver(event Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case s.ch <- event:
		return 0
	default:
	}

	dropped := 0
	select {
	case <-s.ch:
		dropped++
	default:
		// Consumer drained the queue between the two selects.
	}

	select {
	case s.ch <- event:
	default:
		dropped++
	}

	if dropped > 0 {
		s.overflowed = true
	}
	return dropped
}

// Bus distributes context change events to any number of subscribers.
// Publishing is synchronous and non-blocking: each subscriber sees events in
// publication order, and a slow subscriber only ever loses its own events.
type Bus struct {
	subscribers map[*Subscription]bool
	mu          sync.RWMutex
	queueSize   int
	onDrop      func(n int)
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[*Subscription]bool),
		queueSize:   DefaultQueueSize,
	}
}

// OnDrop registers a hook invoked with the number of events lost whenever a
// subscriber queue overflows
func (b *Bus) OnDrop(fn func(n int)) {
	b.onDrop = fn
}

// Subscribe creates a new subscription
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{ch: make(chan Event, b.queueSize)}
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription and closes its channel
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.subscribers[sub] {
		return
	}
	delete(b.subscribers, sub)
	close(sub.ch)
}

// PublishUpdated announces a committed save
func (b *Bus) PublishUpdated(contextID string, meta types.Metadata) {
	m := meta.Clone()
	b.publish(Event{
		Type:      EventContextUpdated,
		ContextID: contextID,
		Metadata:  &m,
		Timestamp: time.Now(),
	})
}

// PublishDeleted announces a committed delete
func (b *Bus) PublishDeleted(contextID string) {
	b.publish(Event{
		Type:      EventContextDeleted,
		ContextID: contextID,
		Timestamp: time.Now(),
	})
}

func (b *Bus) publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		if n := sub.deliver(event); n > 0 && b.onDrop != nil {
			b.onDrop(n)
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
