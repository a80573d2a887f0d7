/*
Package store provides Burrow's durable, versioned context storage.

The store package implements the ContextStore interface over plain files:
one payload file and one metadata file per context under the data
directory, fronted by a bounded LRU cache and serialized per context by a
keyed lock manager. It also houses the bbolt-backed StateDB that persists
node-local replication state.

# Architecture

	┌──────────────────── CONTEXT STORE ───────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │             FileStore                       │          │
	│  │  - <dataDir>/{id}.json       payload        │          │
	│  │  - <dataDir>/{id}.meta.json  metadata       │          │
	│  │  - temp file + atomic rename per write      │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Keyed Lock Manager                 │          │
	│  │  - one mutex per context id, on demand      │          │
	│  │  - entries freed when the last holder exits │          │
	│  │  - writers serialize; readers bypass        │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            LRU Front Cache                  │          │
	│  │  - payload + metadata, 100 entries default  │          │
	│  │  - TTL from CACHE_TTL                       │          │
	│  │  - updated/evicted under the per-id lock,   │          │
	│  │    before any event is published            │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Event Publication                │          │
	│  │  Save   -> updated(id, metadata)            │          │
	│  │  Delete -> deleted(id)                      │          │
	│  │  Apply* -> nothing (loop avoidance)         │          │
	│  └────────────────────────────────────────────┘           │
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │             StateDB (bbolt)                 │          │
	│  │  - <dataDir>/state.db                       │          │
	│  │  - sync checkpoints, first-start record     │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Write Path

Save (client-facing, version-assigning):
 1. Validate id and payload
 2. Acquire the per-context lock
 3. Read current metadata; next version = current + 1 (or 1)
 4. Merge caller-supplied extra fields (store-owned keys ignored)
 5. Write payload, then metadata, each via temp file + rename
 6. On metadata failure, roll the payload back
 7. Refresh caches
 8. Publish updated(id, metadata) to the bus
 9. Release the lock

ApplyUpdate (replication path):
  - Accepts upstream-assigned metadata as-is
  - version <= local version is a no-op, so re-delivery is idempotent
  - Never publishes, so propagated changes cannot loop

Delete removes both records and publishes deleted(id); recreation starts
over at version 1. ApplyDelete is the silent, idempotent variant.

# Invariants

  - Versions are strictly increasing by exactly 1 across saves of one id
  - Readers only observe committed payload/metadata pairs
  - Events are emitted only after durability, caches updated before events
  - Saves on distinct ids proceed concurrently; saves on one id are
    linearized by the keyed lock

# Usage

	contextStore, err := store.NewFileStore(store.Config{
		DataDir:   cfg.DataDir,
		CacheSize: cfg.CacheSize,
		CacheTTL:  cfg.CacheTTL,
	}, bus)
	if err != nil {
		return err
	}
	defer contextStore.Close()

	meta, err := contextStore.Save("ctx-1", payload, map[string]any{
		"conversationId": "conv-1",
	})

	payload, err := contextStore.Get("ctx-1")
	entries, err := contextStore.ListWithMetadata()

Replication side:

	applied, err := contextStore.ApplyUpdate("ctx-1", payload, upstreamMeta)
	err = contextStore.ApplyDelete("ctx-1")

StateDB:

	state, err := store.NewStateDB(cfg.DataDir)
	defer state.Close()
	err = state.SaveCheckpoint(store.Checkpoint{...})

# Error Model

  - ErrNotFound: context absent (mapped to 404)
  - ErrInvalidID / ErrInvalidPayload: caller errors (mapped to 400)
  - everything else: IO failures, wrapped with the context id (500)

Match with errors.Is; the sentinel survives wrapping.

# Integration Points

  - pkg/events: publish-after-commit on the client write path
  - pkg/replication: ApplyUpdate/ApplyDelete mirror upstream state;
    the StateDB records catch-up checkpoints
  - pkg/api: every HTTP verb lands on one of the store operations
  - pkg/metrics: operation counters and cache hit/miss counters

# Design Patterns

Atomic Rename:
  - Writes go to <file>.tmp, then rename
  - A crash mid-write leaves the previous committed record intact

Keyed Locks Over a Global Mutex:
  - Contention concentrates on hot contexts
  - The lock table grows with concurrent writers, not stored contexts

Cache Coherence Under the Write Lock:
  - Save/delete mutate cache entries before the event leaves the store
  - A reader served from cache sees at least the state any event announced

# See Also

  - pkg/types for Metadata and context id validation
  - pkg/events for the publication contract
  - bbolt: https://github.com/etcd-io/bbolt
*/
package store
