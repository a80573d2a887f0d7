/*
Package events provides the in-memory event bus for Burrow's context change
notifications.

The events package implements a lightweight pub/sub bus that broadcasts
context updates and deletions to interested subscribers. It supports an
arbitrary number of subscribers (stream connections, downstream replicas,
metrics) with per-subscriber bounded queues, enabling loose coupling between
the store and everything that reacts to writes.

# Architecture

Burrow's event system provides non-blocking pub/sub with bounded buffering:

	┌──────────────────── EVENT BUS ───────────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │              Bus                            │          │
	│  │  - In-memory, per-process                   │          │
	│  │  - Synchronous dispatch, never blocks       │          │
	│  │  - Constructed at startup, injected         │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Event Distribution                 │          │
	│  │                                              │          │
	│  │  Publisher (store, post-commit)             │          │
	│  │       ↓                                      │          │
	│  │  Subscriber queues (buffer: 128 each)       │          │
	│  │       ↓                                      │          │
	│  │  Overflow: drop OLDEST + set marker         │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Event Types                       │          │
	│  │    - context.updated (with metadata)        │          │
	│  │    - context.deleted                        │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Subscribers                      │          │
	│  │  Stream server: fan out to remote nodes     │          │
	│  │  Per-context streams: agent clients         │          │
	│  │  Metrics: subscriber gauge, drop counter    │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Bus:
  - Central dispatch for context change events
  - Manages subscriber lifecycle
  - Publish is synchronous and non-blocking
  - Per-subscriber delivery preserves publication order

Subscription:
  - Bounded channel (128 events) plus an overflow marker
  - On a full queue the oldest pending event is dropped first
  - TakeOverflow reports and clears the marker; the consumer is
    expected to resync (full listing) after seeing it
  - Closed by Unsubscribe

Event:
  - Type: context.updated or context.deleted
  - ContextID: which context changed
  - Metadata: authoritative metadata (updates only)
  - Timestamp: publication time

# Delivery Semantics

Publish Flow:
 1. Store commits payload and metadata to disk
 2. Store calls PublishUpdated/PublishDeleted
 3. Bus hands the event to every subscriber queue
 4. A full queue drops its oldest event and marks overflow
 5. Publisher returns; it never waits for consumers

Overflow Flow:
 1. Slow subscriber's queue fills
 2. Oldest pending event discarded, marker set
 3. Consumer sees the marker via TakeOverflow
 4. Stream server emits a resync event and closes the connection
 5. Client re-enters catch-up, which repairs the gap

Ordering:
  - Per subscriber, events arrive in publication order
  - Per context, publication order equals commit order (the store's
    per-context lock serializes commits)
  - Across contexts no order is implied

# Usage

Creating a bus and subscribing:

	bus := events.NewBus()

	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	go func() {
		for event := range sub.Events() {
			if sub.TakeOverflow() {
				// Missed events; trigger a full resync.
			}
			switch event.Type {
			case events.EventContextUpdated:
				handleUpdate(event.ContextID, event.Metadata)
			case events.EventContextDeleted:
				handleDelete(event.ContextID)
			}
		}
	}()

Publishing (normally done by the store after commit):

	bus.PublishUpdated("ctx-1", meta)
	bus.PublishDeleted("ctx-1")

Counting drops for metrics:

	bus.OnDrop(func(n int) {
		metrics.EventsDroppedTotal.Add(float64(n))
	})

# Integration Points

This package integrates with:

  - pkg/store: publishes after each committed save/delete; the
    apply-from-upstream path deliberately bypasses the bus
  - pkg/replication: the stream server subscribes once per connection
  - pkg/metrics: subscriber gauge and dropped event counter

# Design Patterns

Publish-After-Commit:
  - Events only describe durable state
  - A subscriber acting on an event can always read what it announces

Drop-Oldest:
  - Newest state wins for a lagging consumer
  - The overflow marker converts silent loss into an explicit resync

Injected Collaborator:
  - The bus is built in main and passed to the store and stream server
  - No package-level singleton, so tests run isolated buses

# Limitations

  - In-memory only; events do not survive restarts (catch-up covers this)
  - No replay or history
  - Best-effort delivery; the replication protocol is designed so that
    losing events is safe, losing durability is not

# See Also

  - pkg/store for the publishing side
  - pkg/replication for the consuming side
  - Pub/sub pattern: https://en.wikipedia.org/wiki/Publish%E2%80%93subscribe_pattern
*/
package events
