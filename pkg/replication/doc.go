/*
Package replication implements Burrow's propagation and synchronization
machinery: the event-stream server, the central fan-out pusher, the
upstream resolver and the replica sync loop.

Together these keep the node tree converged: central streams and pushes
changes down; regionals and caches catch up on start, follow the stream,
and reconcile whenever the stream goes quiet or breaks.

# Architecture

	┌────────────────────── REPLICATION ───────────────────────┐
	│                                                            │
	│   CENTRAL                                                  │
	│  ┌────────────────────────────────────────────┐          │
	│  │  Streamer                                   │          │
	│  │  - GET /contexts/stream (all contexts)      │          │
	│  │  - GET /contexts/{id}/stream (one context)  │          │
	│  │  - connected / ping / update / delete       │          │
	│  │  - resync + close on subscriber overflow    │          │
	│  ├────────────────────────────────────────────┤          │
	│  │  Propagator                                 │          │
	│  │  - after each save/delete, push to every    │          │
	│  │    online peer tagged "regional"            │          │
	│  │  - 10s per-peer timeout, best effort        │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │ stream + direct push                 │
	│   REPLICA           ▼                                      │
	│  ┌────────────────────────────────────────────┐          │
	│  │  Upstream                                   │          │
	│  │  - directory peer by tag (+ region), else   │          │
	│  │    CENTRAL_AUTHORITY fallback               │          │
	│  │  - health-probed before use                 │          │
	│  ├────────────────────────────────────────────┤          │
	│  │  Syncer                                     │          │
	│  │                                              │          │
	│  │   [IDLE]─►[DISCOVER]─►[CATCHUP]─►[STREAM]   │          │
	│  │      ▲         │           │        │        │          │
	│  │      │         └── failure─┴────────┤        │          │
	│  │      └──── backoff ◄────────────────┘        │          │
	│  │                         idle ──► [RECONCILE] │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# The Sync Loop

DISCOVER resolves the upstream through the peer directory (tag "central"
for regionals, "regional" in the same region for caches) with the static
URL as fallback, then health-probes it.

CATCHUP lists the upstream's contexts with metadata and applies every
entry whose version is strictly greater than the local copy (absent
counts as minus infinity). Completed passes are checkpointed in the
StateDB.

STREAM follows the upstream's all-contexts stream. Updates announce
(id, metadata); the syncer fetches the payload and applies it. Deletes
apply directly. A resync event sends the loop straight back to CATCHUP.

RECONCILE runs a catch-up pass in place whenever the stream has been
silent for a full sync interval, bounding staleness without tearing the
connection down.

Failures anywhere put the loop into exponential backoff starting at the
sync interval and capped at 10x. Reads keep serving local state
throughout; upstream unavailability is never surfaced to this node's
clients.

# Loop Avoidance

Every apply goes through the store's apply-from-upstream path, which
suppresses event publication. A replica therefore never re-announces what
it mirrors, and propagation cannot cycle. Stale announcements
(version <= local) are no-ops, making re-delivery idempotent.

# Usage

Central wiring:

	streamer := replication.NewStreamer(bus)
	propagator := replication.NewPropagator(contextStore, dir)
	// api server routes the stream endpoints to streamer and calls
	// propagator.ContextUpdated/ContextDeleted after each commit

Replica wiring:

	upstream := replication.NewUpstream(cfg.Role, cfg.RegionID, cfg.CentralAuthority, dir)
	syncer := replication.NewSyncer(replication.SyncConfig{
		Role:     cfg.Role,
		NodeID:   cfg.NodeID,
		Interval: cfg.SyncInterval,
	}, contextStore, state, upstream)
	go syncer.Run(ctx)

# Integration Points

  - pkg/events: one subscription per stream connection
  - pkg/store: apply-from-upstream writes, checkpoint persistence
  - pkg/peers: discovery for both fan-out and upstream resolution
  - pkg/client: all remote calls (list, fetch, push, stream)
  - pkg/api: routes the stream endpoints and triggers fan-out

# Design Patterns

Stream Plus Push:
  - The stream covers connected subscribers with minimal latency
  - The direct push covers peers between connections (fresh replicas,
    reconnect backoff); their catch-up repairs anything both miss

Best-Effort Fan-Out:
  - A peer failure is logged and counted, never propagated to the
    client whose write triggered it

Bounded Staleness:
  - Worst case, a replica trails by one sync interval (idle reconcile)
    or one backoff window (upstream outage)

# See Also

  - pkg/store for apply semantics and the publication contract
  - pkg/client for the wire calls
  - Server-sent events: https://en.wikipedia.org/wiki/Server-sent_events
*/
package replication
