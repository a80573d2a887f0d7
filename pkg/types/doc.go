/*
Package types defines Burrow's shared domain types: context metadata, the
stream event envelope, peer records and node roles.

# Core Types

Metadata:
  - version: monotonic, assigned only by the store on the write path
  - lastModified: RFC 3339 timestamp set on each save
  - size: byte length of the serialized payload
  - free-form extra fields (conversationId, agentId, ...) flattened into
    the same JSON object on the wire; store-owned keys cannot be
    overridden by callers

Role:
  - central: the single write authority
  - regional: mirrors central for a region
  - cache: mirrors a regional, closest to clients
  - UpstreamTag gives the peer tag each role subscribes to

WireEvent:
  - the envelope on event-stream connections:
    {"event": "connected"|"ping"|"update"|"delete"|"resync",
     "contextId"?, "metadata"?, "timestamp"}

Peer:
  - {name, address, tags, online} as reported by the peer directory

# Context IDs

ValidateContextID rejects ids that cannot serve as file base names: empty
strings, path separators, NUL, "." and "..", and names colliding with the
".meta." metadata file marker.

# Usage

	if err := types.ValidateContextID(id); err != nil { ... }

	meta := types.Metadata{Version: 1, LastModified: types.Timestamp(time.Now())}
	meta.MergeExtra(map[string]any{"conversationId": "conv-1"})

	data, _ := json.Marshal(meta)
	// {"conversationId":"conv-1","lastModified":"...","size":0,"version":1}

# See Also

  - pkg/store for how metadata is assigned and persisted
  - pkg/replication for how WireEvent is framed on streams
*/
package types
