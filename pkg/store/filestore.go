package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
)

const (
	payloadSuffix = ".json"
	metaSuffix    = ".meta.json"
)

// FileStore implements ContextStore with one payload file and one metadata
// file per context under dataDir. Writes go through a temp file and an
// atomic rename; a bounded TTL'd LRU fronts both reads.
type FileStore struct {
	dataDir string
	bus     *events.Bus
	locks   *keyedMutex
	logger  zerolog.Logger

	payloadCache *expirable.LRU[string, json.RawMessage]
	metaCache    *expirable.LRU[string, types.Metadata]
}

// Config holds file store construction options
type Config struct {
	DataDir   string
	CacheSize int
	CacheTTL  time.Duration
}

// NewFileStore creates the data directory and the store. The bus may be nil
// (events suppressed), which the replica apply path also relies on.
func NewFileStore(cfg Config, bus *events.Bus) (*FileStore, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", cfg.DataDir, err)
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = 100
	}

	return &FileStore{
		dataDir:      cfg.DataDir,
		bus:          bus,
		locks:        newKeyedMutex(),
		logger:       log.WithComponent("store"),
		payloadCache: expirable.NewLRU[string, json.RawMessage](size, nil, cfg.CacheTTL),
		metaCache:    expirable.NewLRU[string, types.Metadata](size, nil, cfg.CacheTTL),
	}, nil
}

func (s *FileStore) payloadPath(id string) string {
	return filepath.Join(s.dataDir, id+payloadSuffix)
}

func (s *FileStore) metaPath(id string) string {
	return filepath.Join(s.dataDir, id+metaSuffix)
}

// Get returns the stored payload
func (s *FileStore) Get(contextID string) (json.RawMessage, error) {
	if err := types.ValidateContextID(contextID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	if payload, ok := s.payloadCache.Get(contextID); ok {
		metrics.CacheHitsTotal.Inc()
		return payload, nil
	}
	metrics.CacheMissesTotal.Inc()

	payload, err := s.readPayload(contextID)
	if err != nil {
		return nil, err
	}
	s.payloadCache.Add(contextID, payload)
	return payload, nil
}

// GetMetadata returns the stored metadata
func (s *FileStore) GetMetadata(contextID string) (types.Metadata, error) {
	if err := types.ValidateContextID(contextID); err != nil {
		return types.Metadata{}, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	if meta, ok := s.metaCache.Get(contextID); ok {
		metrics.CacheHitsTotal.Inc()
		return meta.Clone(), nil
	}
	metrics.CacheMissesTotal.Inc()

	meta, err := s.readMeta(contextID)
	if err != nil {
		return types.Metadata{}, err
	}
	s.metaCache.Add(contextID, meta.Clone())
	return meta, nil
}

// Save persists the payload under the per-context lock, assigns the next
// version and publishes after both records are durable.
func (s *FileStore) Save(contextID string, payload json.RawMessage, extra map[string]any) (types.Metadata, error) {
	if err := types.ValidateContextID(contextID); err != nil {
		return types.Metadata{}, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	if len(payload) == 0 || !json.Valid(payload) {
		return types.Metadata{}, ErrInvalidPayload
	}

	unlock := s.locks.lock(contextID)
	defer unlock()

	meta, err := s.commit(contextID, payload, nil, extra)
	if err != nil {
		metrics.StoreOpsTotal.WithLabelValues("save", "error").Inc()
		return types.Metadata{}, err
	}
	metrics.StoreOpsTotal.WithLabelValues("save", "ok").Inc()

	if s.bus != nil {
		s.bus.PublishUpdated(contextID, meta)
	}
	return meta, nil
}

// ApplyUpdate mirrors an upstream write without publishing. Stale versions
// are ignored so re-delivery is idempotent.
func (s *FileStore) ApplyUpdate(contextID string, payload json.RawMessage, meta types.Metadata) (bool, error) {
	if err := types.ValidateContextID(contextID); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	if len(payload) == 0 || !json.Valid(payload) {
		return false, ErrInvalidPayload
	}

	unlock := s.locks.lock(contextID)
	defer unlock()

	cur, err := s.readMeta(contextID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false, err
	}
	if err == nil && meta.Version <= cur.Version {
		metrics.StoreOpsTotal.WithLabelValues("apply", "stale").Inc()
		return false, nil
	}

	if _, err := s.commit(contextID, payload, &meta, nil); err != nil {
		metrics.StoreOpsTotal.WithLabelValues("apply", "error").Inc()
		return false, err
	}
	metrics.StoreOpsTotal.WithLabelValues("apply", "ok").Inc()
	return true, nil
}

// commit writes payload then metadata under the caller-held lock. With a nil
// forced metadata the next version is assigned and extra fields merged; a
// forced metadata is written as-is. If the metadata write fails the payload
// is rolled back so readers never see a half-committed pair.
func (s *FileStore) commit(contextID string, payload json.RawMessage, forced *types.Metadata, extra map[string]any) (types.Metadata, error) {
	cur, err := s.readMeta(contextID)
	exists := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return types.Metadata{}, err
	}

	var meta types.Metadata
	if forced != nil {
		meta = forced.Clone()
	} else {
		meta = types.Metadata{
			Version:      1,
			LastModified: types.Timestamp(time.Now()),
			Size:         int64(len(payload)),
		}
		if exists {
			meta.Version = cur.Version + 1
			meta.Extra = cur.Clone().Extra
		}
		meta.MergeExtra(extra)
	}

	// Snapshot the previous payload so a failed metadata write can be
	// rolled back instead of leaving a mismatched pair on disk.
	var prevPayload json.RawMessage
	if exists {
		prevPayload, err = s.readPayload(contextID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return types.Metadata{}, err
		}
	}

	if err := writeFileAtomic(s.payloadPath(contextID), payload); err != nil {
		return types.Metadata{}, fmt.Errorf("failed to write payload for %s: %w", contextID, err)
	}

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return types.Metadata{}, fmt.Errorf("failed to encode metadata for %s: %w", contextID, err)
	}
	if err := writeFileAtomic(s.metaPath(contextID), metaBytes); err != nil {
		s.rollbackPayload(contextID, prevPayload)
		return types.Metadata{}, fmt.Errorf("failed to write metadata for %s: %w", contextID, err)
	}

	// Cache coherence before any event leaves the store.
	s.payloadCache.Add(contextID, payload)
	s.metaCache.Add(contextID, meta.Clone())

	return meta, nil
}

func (s *FileStore) rollbackPayload(contextID string, prev json.RawMessage) {
	var err error
	if prev == nil {
		err = os.Remove(s.payloadPath(contextID))
	} else {
		err = writeFileAtomic(s.payloadPath(contextID), prev)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("context_id", contextID).Msg("Failed to roll back payload after metadata write failure")
	}
}

// Delete removes both records and publishes the deletion
func (s *FileStore) Delete(contextID string) error {
	if err := types.ValidateContextID(contextID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidID, err)
	}

	unlock := s.locks.lock(contextID)
	defer unlock()

	removed, err := s.removeLocked(contextID)
	if err != nil {
		metrics.StoreOpsTotal.WithLabelValues("delete", "error").Inc()
		return err
	}
	if !removed {
		return ErrNotFound
	}
	metrics.StoreOpsTotal.WithLabelValues("delete", "ok").Inc()

	if s.bus != nil {
		s.bus.PublishDeleted(contextID)
	}
	return nil
}

// ApplyDelete mirrors an upstream delete; absent contexts are a no-op
func (s *FileStore) ApplyDelete(contextID string) error {
	if err := types.ValidateContextID(contextID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidID, err)
	}

	unlock := s.locks.lock(contextID)
	defer unlock()

	if _, err := s.removeLocked(contextID); err != nil {
		return err
	}
	return nil
}

// removeLocked deletes both files and evicts caches. Metadata goes first so
// readers lose the pair together; payload removal failures are returned as
// IO errors.
func (s *FileStore) removeLocked(contextID string) (bool, error) {
	existed := false

	if err := os.Remove(s.metaPath(contextID)); err == nil {
		existed = true
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to remove metadata for %s: %w", contextID, err)
	}

	if err := os.Remove(s.payloadPath(contextID)); err == nil {
		existed = true
	} else if !os.IsNotExist(err) {
		return existed, fmt.Errorf("failed to remove payload for %s: %w", contextID, err)
	}

	s.payloadCache.Remove(contextID)
	s.metaCache.Remove(contextID)
	return existed, nil
}

// List returns all stored context IDs. Metadata files are excluded by the
// ".meta." marker in their base name.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, payloadSuffix) || strings.Contains(name, ".meta.") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, payloadSuffix))
	}
	return ids, nil
}

// ListWithMetadata returns all contexts with their metadata. Contexts
// deleted while listing are skipped.
func (s *FileStore) ListWithMetadata() ([]types.ContextEntry, error) {
	ids, err := s.List()
	if err != nil {
		return nil, err
	}

	out := make([]types.ContextEntry, 0, len(ids))
	for _, id := range ids {
		meta, err := s.GetMetadata(id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, types.ContextEntry{ID: id, Metadata: meta})
	}
	return out, nil
}

// Count returns the number of stored contexts
func (s *FileStore) Count() (int, error) {
	ids, err := s.List()
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Close releases store resources
func (s *FileStore) Close() error {
	s.payloadCache.Purge()
	s.metaCache.Purge()
	return nil
}

func (s *FileStore) readPayload(contextID string) (json.RawMessage, error) {
	data, err := os.ReadFile(s.payloadPath(contextID))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read payload for %s: %w", contextID, err)
	}
	return data, nil
}

func (s *FileStore) readMeta(contextID string) (types.Metadata, error) {
	data, err := os.ReadFile(s.metaPath(contextID))
	if os.IsNotExist(err) {
		return types.Metadata{}, ErrNotFound
	}
	if err != nil {
		return types.Metadata{}, fmt.Errorf("failed to read metadata for %s: %w", contextID, err)
	}
	var meta types.Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return types.Metadata{}, fmt.Errorf("corrupt metadata for %s: %w", contextID, err)
	}
	return meta, nil
}

// writeFileAtomic writes via a temp file and rename so readers only ever see
// complete records
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
