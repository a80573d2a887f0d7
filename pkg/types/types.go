package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role identifies a node's position in the replication tree
type Role string

const (
	RoleCentral  Role = "central"
	RoleRegional Role = "regional"
	RoleCache    Role = "cache"
)

// ParseRole validates a role string
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleCentral, RoleRegional, RoleCache:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown server type %q (want central, regional or cache)", s)
}

// IsCentral reports whether this node is the write authority
func (r Role) IsCentral() bool {
	return r == RoleCentral
}

// UpstreamTag returns the peer tag this role subscribes to
func (r Role) UpstreamTag() string {
	switch r {
	case RoleRegional:
		return string(RoleCentral)
	case RoleCache:
		return string(RoleRegional)
	}
	return ""
}

// ValidateContextID rejects IDs that cannot be used as file base names.
// The on-disk layout reserves ".meta." in base names for metadata files.
func ValidateContextID(id string) error {
	if id == "" {
		return fmt.Errorf("context id is empty")
	}
	if strings.ContainsAny(id, "/\\\x00") {
		return fmt.Errorf("context id %q contains path separator or NUL", id)
	}
	if strings.Contains(id, ".meta.") || strings.HasSuffix(id, ".meta") {
		return fmt.Errorf("context id %q collides with metadata file naming", id)
	}
	if id == "." || id == ".." {
		return fmt.Errorf("context id %q is not a valid name", id)
	}
	return nil
}

// Metadata describes one stored context. Version, LastModified and Size are
// owned by the store; Extra carries caller-supplied fields (conversationId,
// agentId, ...) and is flattened into the same JSON object on the wire.
type Metadata struct {
	Version      int64
	LastModified string
	Size         int64
	Extra        map[string]any
}

// reserved keys the store owns; caller-supplied values for these are ignored
var reservedMetaKeys = map[string]bool{
	"version":      true,
	"lastModified": true,
	"size":         true,
}

// MarshalJSON flattens Extra alongside the store-owned fields
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+3)
	for k, v := range m.Extra {
		if !reservedMetaKeys[k] {
			out[k] = v
		}
	}
	out["version"] = m.Version
	out["lastModified"] = m.LastModified
	out["size"] = m.Size
	return json.Marshal(out)
}

// UnmarshalJSON splits store-owned fields from free-form ones
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Metadata{}
	for k, v := range raw {
		switch k {
		case "version":
			if err := json.Unmarshal(v, &m.Version); err != nil {
				return fmt.Errorf("metadata version: %w", err)
			}
		case "lastModified":
			if err := json.Unmarshal(v, &m.LastModified); err != nil {
				return fmt.Errorf("metadata lastModified: %w", err)
			}
		case "size":
			if err := json.Unmarshal(v, &m.Size); err != nil {
				return fmt.Errorf("metadata size: %w", err)
			}
		default:
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return err
			}
			if m.Extra == nil {
				m.Extra = make(map[string]any)
			}
			m.Extra[k] = val
		}
	}
	return nil
}

// MergeExtra folds caller-supplied fields into the metadata, ignoring
// store-owned keys
func (m *Metadata) MergeExtra(extra map[string]any) {
	if len(extra) == 0 {
		return
	}
	if m.Extra == nil {
		m.Extra = make(map[string]any, len(extra))
	}
	for k, v := range extra {
		if reservedMetaKeys[k] {
			continue
		}
		m.Extra[k] = v
	}
}

// Clone returns a copy safe to hand to concurrent readers (Extra values are
// shared; callers must not mutate them)
func (m Metadata) Clone() Metadata {
	out := m
	if m.Extra != nil {
		out.Extra = make(map[string]any, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// WireEventType is the event discriminator used on stream connections
type WireEventType string

const (
	WireConnected WireEventType = "connected"
	WirePing      WireEventType = "ping"
	WireUpdate    WireEventType = "update"
	WireDelete    WireEventType = "delete"
	WireResync    WireEventType = "resync"
)

// WireEvent is the envelope emitted on event-stream connections
type WireEvent struct {
	Event     WireEventType `json:"event"`
	ContextID string        `json:"contextId,omitempty"`
	Metadata  *Metadata     `json:"metadata,omitempty"`
	Timestamp string        `json:"timestamp"`
}

// NewWireEvent stamps the envelope with the current time
func NewWireEvent(typ WireEventType) WireEvent {
	return WireEvent{Event: typ, Timestamp: Timestamp(time.Now())}
}

// Timestamp renders a wall-clock time the way metadata and events carry it
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Peer describes another node discovered through the peer directory
type Peer struct {
	Name    string   `json:"name" yaml:"name"`
	Address string   `json:"address" yaml:"address"`
	Tags    []string `json:"tags" yaml:"tags"`
	Online  bool     `json:"online" yaml:"online"`
}

// HasTag reports whether the peer carries the given tag
func (p Peer) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// URL returns the peer's base HTTP URL
func (p Peer) URL() string {
	if strings.HasPrefix(p.Address, "http://") || strings.HasPrefix(p.Address, "https://") {
		return strings.TrimSuffix(p.Address, "/")
	}
	return "http://" + p.Address
}

// ContextEntry pairs a context ID with its metadata in listings
type ContextEntry struct {
	ID       string   `json:"id"`
	Metadata Metadata `json:"metadata"`
}
