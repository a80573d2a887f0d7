/*
Package client is the HTTP client one Burrow node uses to talk to another.

It covers the four remote interactions replication needs: catch-up
(listing and fetching contexts), write forwarding (replicas routing client
writes to central), propagation pushes (central to regionals), and the
long-lived event stream.

# Calls

	Health(ctx)                          GET /health probe
	ListWithMetadata(ctx)                GET /contexts?includeMetadata=true
	GetContext(ctx, id)                  GET /contexts/{id}
	GetMetadata(ctx, id)                 GET /contexts/{id}/metadata
	PutContext(ctx, id, payload, extra)  PUT /contexts/{id} (write forwarding)
	DeleteContext(ctx, id)               DELETE /contexts/{id}
	Replicate(ctx, id, payload, meta)    POST /internal/replicate (push)
	ReplicateDelete(ctx, id)             DELETE /internal/replicate/{id}
	OpenStream(ctx, serverType, nodeID)  GET /contexts/stream
	OpenContextStream(ctx, id)           GET /contexts/{id}/stream

Bounded calls share a 10s client timeout; streams have none and live until
their context is cancelled or the server closes them.

# Stream Reading

	stream, err := cl.OpenStream(ctx, "regional", nodeID)
	defer stream.Close()

	for {
		event, err := stream.Next()
		if err != nil {
			break // io.EOF: server closed; otherwise connection error
		}
		switch event.Event {
		case types.WireUpdate:  ...
		case types.WireDelete:  ...
		case types.WireResync:  ...
		}
	}

Next skips frames it does not recognize, so ping and future event types
pass through harmlessly at the transport layer.

# See Also

  - pkg/replication for the loops built on these calls
  - pkg/api for the server side
*/
package client
