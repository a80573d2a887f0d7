/*
Package api implements Burrow's HTTP surface: the request router that maps
verbs on /contexts onto store operations, the streaming endpoints, and the
node's health, status and metrics endpoints.

The surface is identical on every role; behavior differs only on the write
path. Central commits locally and fans out; regionals and caches forward
writes to their upstream and mirror the authoritative result.

# Routes

	GET    /contexts                    list ids ([{id, metadata}] with ?includeMetadata=true)
	GET    /contexts/{id}               payload JSON
	GET    /contexts/{id}/metadata      metadata JSON
	PUT    /contexts/{id}               {context, metadata?} -> {success, contextId, metadata}
	DELETE /contexts/{id}               {success: true}
	GET    /contexts/{id}/stream        per-context event stream
	GET    /contexts/stream             all-contexts event stream
	POST   /internal/replicate          propagation push (apply-from-upstream)
	DELETE /internal/replicate/{id}     propagation delete
	GET    /health                      {status, serverType, nodeId, regionId, ...}
	GET    /status                      node status including peers and sync state
	GET    /metrics                     Prometheus exposition

# Write Routing

	          PUT /contexts/{id}
	               │
	     ┌─────────┴──────────┐
	     │ central?           │ replica?
	     ▼                    ▼
	  store.Save          forward to upstream
	     │                    │
	  propagator          apply authoritative
	  fan-out             result locally
	     │                    │
	     └────────► {success, contextId, metadata}

A replica never assigns versions. If its upstream cannot be reached the
write fails with 502; reads keep serving local state regardless.

# Error Mapping

  - store.ErrNotFound            -> 404
  - store.ErrInvalidID/Payload   -> 400
  - upstream unreachable         -> 502 (writes on replicas only)
  - anything else                -> 500, logged with the request path

Fan-out and stream delivery errors never affect the response; the
originating operation's local (or forwarded) outcome is all that counts.

# Usage

	server := api.NewServer(api.Options{
		Config:     cfg,
		Store:      contextStore,
		Bus:        bus,
		Streamer:   streamer,
		Propagator: propagator, // central only
		Upstream:   upstream,   // replicas only
		Syncer:     syncer,     // replicas only
		Dir:        dir,
		State:      state,
	})

	if err := server.Start(); err != nil {
		// bind failure: exit non-zero
	}

Tests drive the same routes through httptest:

	ts := httptest.NewServer(server.Handler())

# Integration Points

  - pkg/store: every context route
  - pkg/replication: stream endpoints, fan-out trigger, write forwarding
  - pkg/metrics: request counters/durations and the /metrics handler
  - pkg/peers: the peer list in /status

# See Also

  - pkg/replication for stream framing and the sync loop
  - pkg/client for the client side of these routes
*/
package api
