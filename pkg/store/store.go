package store

import (
	"encoding/json"
	"errors"

	"github.com/cuemby/burrow/pkg/types"
)

// Sentinel errors returned by context stores. IO failures are returned
// wrapped with the context id; match with errors.Is.
var (
	ErrNotFound       = errors.New("context not found")
	ErrInvalidID      = errors.New("invalid context id")
	ErrInvalidPayload = errors.New("invalid context payload")
)

// ContextStore defines durable per-context storage with monotonic versions.
//
// Save and Delete are the client-facing write path: they assign versions and
// publish to the event bus after commit. ApplyUpdate and ApplyDelete are the
// replication path: they accept upstream-assigned metadata, never publish,
// and are idempotent with respect to version.
type ContextStore interface {
	// Get returns the stored payload
	Get(contextID string) (json.RawMessage, error)

	// GetMetadata returns the stored metadata
	GetMetadata(contextID string) (types.Metadata, error)

	// Save persists a payload, increments the version and publishes the
	// update after both records are committed
	Save(contextID string, payload json.RawMessage, extra map[string]any) (types.Metadata, error)

	// Delete removes payload and metadata and publishes the deletion
	Delete(contextID string) error

	// List returns all stored context IDs
	List() ([]string, error)

	// ListWithMetadata returns all stored contexts with their metadata
	ListWithMetadata() ([]types.ContextEntry, error)

	// ApplyUpdate mirrors an upstream write. The version in meta is kept
	// as-is; updates at or below the local version are no-ops. Returns
	// whether the update was applied. No event is published.
	ApplyUpdate(contextID string, payload json.RawMessage, meta types.Metadata) (bool, error)

	// ApplyDelete mirrors an upstream delete. Missing contexts are a no-op.
	// No event is published.
	ApplyDelete(contextID string) error

	// Count returns the number of stored contexts
	Count() (int, error)

	// Close releases store resources
	Close() error
}
