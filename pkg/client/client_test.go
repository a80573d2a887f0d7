package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/types"
)

func TestListWithMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/contexts", r.URL.Path)
		require.Equal(t, "true", r.URL.Query().Get("includeMetadata"))
		fmt.Fprint(w, `[{"id":"c1","metadata":{"version":3,"lastModified":"2024-06-01T00:00:00Z","size":9}}]`)
	}))
	defer server.Close()

	entries, err := New(server.URL).ListWithMetadata(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "c1", entries[0].ID)
	assert.Equal(t, int64(3), entries[0].Metadata.Version)
}

func TestGetContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/contexts/c1":
			fmt.Fprint(w, `{"x":1}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	cl := New(server.URL)

	payload, err := cl.GetContext(context.Background(), "c1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(payload))

	_, err = cl.GetContext(context.Background(), "missing")
	assert.Error(t, err)
}

func TestPutContextForwardsBodyAndParsesMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/contexts/c1", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(body, &req))
		assert.JSONEq(t, `{"x":1}`, string(req["context"]))
		assert.JSONEq(t, `{"agentId":"a1"}`, string(req["metadata"]))

		fmt.Fprint(w, `{"success":true,"contextId":"c1","metadata":{"version":5,"lastModified":"2024-06-01T00:00:00Z","size":7,"agentId":"a1"}}`)
	}))
	defer server.Close()

	meta, err := New(server.URL).PutContext(context.Background(), "c1",
		json.RawMessage(`{"x":1}`), map[string]any{"agentId": "a1"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), meta.Version)
	assert.Equal(t, "a1", meta.Extra["agentId"])
}

func TestReplicateCarriesAuthoritativeMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/internal/replicate", r.URL.Path)

		var req struct {
			ContextID string          `json:"contextId"`
			Context   json.RawMessage `json:"context"`
			Metadata  types.Metadata  `json:"metadata"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "c1", req.ContextID)
		assert.Equal(t, int64(4), req.Metadata.Version)

		fmt.Fprint(w, `{"success":true,"applied":true}`)
	}))
	defer server.Close()

	err := New(server.URL).Replicate(context.Background(), "c1",
		json.RawMessage(`{"x":1}`), types.Metadata{Version: 4})
	require.NoError(t, err)
}

func TestReplicateDelete(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/internal/replicate/c1", r.URL.Path)
		fmt.Fprint(w, `{"success":true}`)
	}))
	defer server.Close()

	require.NoError(t, New(server.URL).ReplicateDelete(context.Background(), "c1"))
	assert.True(t, called)
}

func TestHealthProbe(t *testing.T) {
	healthy := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"status":"healthy"}`)
	}))
	defer server.Close()

	cl := New(server.URL)
	assert.NoError(t, cl.Health(context.Background()))

	healthy = false
	assert.Error(t, cl.Health(context.Background()))
}

func TestStreamReadsFramedEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/contexts/stream", r.URL.Path)
		assert.Equal(t, "regional", r.URL.Query().Get("serverType"))
		assert.Equal(t, "node-1", r.URL.Query().Get("nodeId"))

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		fmt.Fprintf(w, "data: %s\n\n", `{"event":"connected","timestamp":"2024-06-01T00:00:00Z"}`)
		fmt.Fprintf(w, "data: %s\n\n", `{"event":"update","contextId":"c1","metadata":{"version":2,"lastModified":"2024-06-01T00:00:01Z","size":5},"timestamp":"2024-06-01T00:00:01Z"}`)
		fmt.Fprintf(w, "data: %s\n\n", `{"event":"delete","contextId":"c1","timestamp":"2024-06-01T00:00:02Z"}`)
		flusher.Flush()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := New(server.URL).OpenStream(ctx, "regional", "node-1")
	require.NoError(t, err)
	defer stream.Close()

	event, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, types.WireConnected, event.Event)

	event, err = stream.Next()
	require.NoError(t, err)
	assert.Equal(t, types.WireUpdate, event.Event)
	assert.Equal(t, "c1", event.ContextID)
	require.NotNil(t, event.Metadata)
	assert.Equal(t, int64(2), event.Metadata.Version)

	event, err = stream.Next()
	require.NoError(t, err)
	assert.Equal(t, types.WireDelete, event.Event)

	_, err = stream.Next()
	assert.Equal(t, io.EOF, err)
}
