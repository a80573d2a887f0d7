package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/types"
)

func newTestStore(t *testing.T, bus *events.Bus) *FileStore {
	t.Helper()
	s, err := NewFileStore(Config{
		DataDir:   t.TempDir(),
		CacheSize: 16,
		CacheTTL:  time.Minute,
	}, bus)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAssignsMonotonicVersions(t *testing.T) {
	s := newTestStore(t, nil)

	for want := int64(1); want <= 5; want++ {
		meta, err := s.Save("ctx-1", json.RawMessage(fmt.Sprintf(`{"n":%d}`, want)), nil)
		require.NoError(t, err)
		assert.Equal(t, want, meta.Version)
	}
}

func TestSaveSetsSizeAndTimestamp(t *testing.T) {
	s := newTestStore(t, nil)

	payload := json.RawMessage(`{"x":1}`)
	meta, err := s.Save("ctx-1", payload, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(len(payload)), meta.Size)
	_, err = time.Parse(time.RFC3339Nano, meta.LastModified)
	assert.NoError(t, err)
}

func TestSaveMergesExtraMetadata(t *testing.T) {
	s := newTestStore(t, nil)

	_, err := s.Save("ctx-1", json.RawMessage(`{}`), map[string]any{"conversationId": "conv-1"})
	require.NoError(t, err)

	// A later save keeps earlier extra fields and merges new ones. A
	// caller-supplied version is ignored.
	meta, err := s.Save("ctx-1", json.RawMessage(`{}`), map[string]any{
		"agentId": "agent-1",
		"version": 99,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2), meta.Version)
	assert.Equal(t, "conv-1", meta.Extra["conversationId"])
	assert.Equal(t, "agent-1", meta.Extra["agentId"])
}

func TestGetReturnsSavedPayload(t *testing.T) {
	s := newTestStore(t, nil)

	payload := json.RawMessage(`{"x":1,"nested":{"y":[1,2,3]}}`)
	_, err := s.Save("ctx-1", payload, nil)
	require.NoError(t, err)

	got, err := s.Get("ctx-1")
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(got))

	// Second read is served from cache and must match.
	got, err = s.Get("ctx-1")
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(got))
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t, nil)

	_, err := s.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetMetadata("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveRejectsInvalidInput(t *testing.T) {
	s := newTestStore(t, nil)

	_, err := s.Save("a/b", json.RawMessage(`{}`), nil)
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = s.Save("ctx-1", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = s.Save("ctx-1", json.RawMessage(`{not json`), nil)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDeleteThenRecreateResetsVersion(t *testing.T) {
	s := newTestStore(t, nil)

	_, err := s.Save("ctx-1", json.RawMessage(`{"x":1}`), nil)
	require.NoError(t, err)
	_, err = s.Save("ctx-1", json.RawMessage(`{"x":2}`), nil)
	require.NoError(t, err)

	require.NoError(t, s.Delete("ctx-1"))

	_, err = s.Get("ctx-1")
	assert.ErrorIs(t, err, ErrNotFound)

	meta, err := s.Save("ctx-1", json.RawMessage(`{"x":3}`), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), meta.Version)
}

func TestDeleteMissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t, nil)
	assert.ErrorIs(t, s.Delete("nope"), ErrNotFound)
}

func TestSavePublishesAfterCommit(t *testing.T) {
	bus := events.NewBus()
	s := newTestStore(t, bus)

	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	_, err := s.Save("ctx-1", json.RawMessage(`{"x":1}`), nil)
	require.NoError(t, err)

	select {
	case event := <-sub.Events():
		assert.Equal(t, events.EventContextUpdated, event.Type)
		assert.Equal(t, "ctx-1", event.ContextID)
		require.NotNil(t, event.Metadata)
		assert.Equal(t, int64(1), event.Metadata.Version)

		// The published state must already be durable.
		payload, err := s.Get("ctx-1")
		require.NoError(t, err)
		assert.Equal(t, int64(len(payload)), event.Metadata.Size)
	case <-time.After(time.Second):
		t.Fatal("no event published for save")
	}

	require.NoError(t, s.Delete("ctx-1"))
	select {
	case event := <-sub.Events():
		assert.Equal(t, events.EventContextDeleted, event.Type)
		assert.Equal(t, "ctx-1", event.ContextID)
	case <-time.After(time.Second):
		t.Fatal("no event published for delete")
	}
}

func TestApplyUpdateDoesNotPublish(t *testing.T) {
	bus := events.NewBus()
	s := newTestStore(t, bus)

	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	applied, err := s.ApplyUpdate("ctx-1", json.RawMessage(`{"x":1}`), types.Metadata{
		Version:      4,
		LastModified: types.Timestamp(time.Now()),
		Size:         7,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	require.NoError(t, s.ApplyDelete("ctx-1"))

	select {
	case event := <-sub.Events():
		t.Fatalf("apply-from-upstream published %v", event.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestApplyUpdateKeepsUpstreamVersion(t *testing.T) {
	s := newTestStore(t, nil)

	applied, err := s.ApplyUpdate("ctx-1", json.RawMessage(`{"x":1}`), types.Metadata{Version: 9})
	require.NoError(t, err)
	assert.True(t, applied)

	meta, err := s.GetMetadata("ctx-1")
	require.NoError(t, err)
	assert.Equal(t, int64(9), meta.Version)
}

func TestApplyUpdateIsIdempotent(t *testing.T) {
	s := newTestStore(t, nil)

	meta := types.Metadata{Version: 3, Size: 7}
	applied, err := s.ApplyUpdate("ctx-1", json.RawMessage(`{"x":3}`), meta)
	require.NoError(t, err)
	assert.True(t, applied)

	// Re-delivery of the same version is a no-op.
	applied, err = s.ApplyUpdate("ctx-1", json.RawMessage(`{"x":999}`), meta)
	require.NoError(t, err)
	assert.False(t, applied)

	payload, err := s.Get("ctx-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":3}`, string(payload))

	// Older versions are rejected too.
	applied, err = s.ApplyUpdate("ctx-1", json.RawMessage(`{"x":0}`), types.Metadata{Version: 2})
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestApplyDeleteMissingIsNoop(t *testing.T) {
	s := newTestStore(t, nil)
	assert.NoError(t, s.ApplyDelete("nope"))
}

func TestListExcludesMetadataFiles(t *testing.T) {
	s := newTestStore(t, nil)

	for _, id := range []string{"alpha", "beta", "gamma"} {
		_, err := s.Save(id, json.RawMessage(`{}`), nil)
		require.NoError(t, err)
	}

	ids, err := s.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "beta", "gamma"}, ids)

	entries, err := s.ListWithMetadata()
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	for _, entry := range entries {
		assert.Equal(t, int64(1), entry.Metadata.Version)
	}

	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestListIgnoresForeignFiles(t *testing.T) {
	s := newTestStore(t, nil)

	_, err := s.Save("ctx-1", json.RawMessage(`{}`), nil)
	require.NoError(t, err)

	// Stray files in the data dir must not surface as contexts.
	require.NoError(t, os.WriteFile(filepath.Join(s.dataDir, "state.db"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(s.dataDir, "notes.txt"), []byte("x"), 0644))

	ids, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"ctx-1"}, ids)
}

func TestConcurrentSavesAreLinearized(t *testing.T) {
	s := newTestStore(t, nil)

	const writers = 20
	versions := make(chan int64, writers)

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			meta, err := s.Save("hot", json.RawMessage(fmt.Sprintf(`{"w":%d}`, i)), nil)
			if err == nil {
				versions <- meta.Version
			}
		}(i)
	}
	wg.Wait()
	close(versions)

	seen := make(map[int64]bool)
	for v := range versions {
		assert.False(t, seen[v], "version %d assigned twice", v)
		seen[v] = true
	}
	require.Len(t, seen, writers)
	for v := int64(1); v <= writers; v++ {
		assert.True(t, seen[v], "version %d missing", v)
	}
}

func TestConcurrentSavesOnDistinctIDs(t *testing.T) {
	s := newTestStore(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("ctx-%d", i)
			for j := 0; j < 5; j++ {
				_, err := s.Save(id, json.RawMessage(`{}`), nil)
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	entries, err := s.ListWithMetadata()
	require.NoError(t, err)
	require.Len(t, entries, 10)
	for _, entry := range entries {
		assert.Equal(t, int64(5), entry.Metadata.Version)
	}
}

func TestCorruptMetadataSurfacesAsError(t *testing.T) {
	s := newTestStore(t, nil)

	_, err := s.Save("ctx-1", json.RawMessage(`{}`), nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(s.metaPath("ctx-1"), []byte("{broken"), 0644))
	s.metaCache.Purge()

	_, err = s.GetMetadata("ctx-1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}
