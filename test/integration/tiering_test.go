package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/peers"
	"github.com/cuemby/burrow/pkg/replication"
	"github.com/cuemby/burrow/pkg/store"
	"github.com/cuemby/burrow/pkg/types"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true})
}

// node is one fully wired in-process burrow node
type node struct {
	cfg    *config.Config
	store  *store.FileStore
	bus    *events.Bus
	server *httptest.Server
	syncer *replication.Syncer
	cancel context.CancelFunc
}

// startNode wires a node the way cmd/burrow does, but over httptest. dir
// lists the peers this node can discover; upstreamURL is the static
// fallback for replicas.
func startNode(t *testing.T, role types.Role, region, upstreamURL string, dir peers.Directory, interval time.Duration) *node {
	t.Helper()

	cfg := &config.Config{
		Role:             role,
		Port:             8080,
		DataDir:          t.TempDir(),
		NodeID:           fmt.Sprintf("%s-%s", role, region),
		RegionID:         region,
		CentralAuthority: upstreamURL,
		SyncInterval:     interval,
		CacheTTL:         time.Minute,
		CacheSize:        32,
	}

	bus := events.NewBus()
	contextStore, err := store.NewFileStore(store.Config{
		DataDir:   cfg.DataDir,
		CacheSize: cfg.CacheSize,
		CacheTTL:  cfg.CacheTTL,
	}, bus)
	require.NoError(t, err)

	if dir == nil {
		dir = peers.NewStaticDirectory(nil)
	}

	n := &node{cfg: cfg, store: contextStore, bus: bus}

	opts := api.Options{
		Config:   cfg,
		Store:    contextStore,
		Bus:      bus,
		Streamer: replication.NewStreamer(bus),
		Dir:      dir,
	}

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel

	if role.IsCentral() {
		opts.Propagator = replication.NewPropagator(contextStore, dir)
	} else {
		upstream := replication.NewUpstream(role, region, upstreamURL, dir)
		opts.Upstream = upstream
		n.syncer = replication.NewSyncer(replication.SyncConfig{
			Role:     role,
			NodeID:   cfg.NodeID,
			Interval: interval,
		}, contextStore, nil, upstream)
		opts.Syncer = n.syncer
		go n.syncer.Run(ctx)
	}

	n.server = httptest.NewServer(api.NewServer(opts).Handler())

	t.Cleanup(func() {
		cancel()
		n.server.Close()
		contextStore.Close()
	})
	return n
}

func (n *node) put(t *testing.T, id, payload string) types.Metadata {
	t.Helper()
	body := fmt.Sprintf(`{"context":%s}`, payload)
	req, err := http.NewRequest(http.MethodPut, n.server.URL+"/contexts/"+id, bytes.NewBufferString(body))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Metadata types.Metadata `json:"metadata"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.Metadata
}

func (n *node) localVersion(id string) (int64, error) {
	meta, err := n.store.GetMetadata(id)
	if err != nil {
		return 0, err
	}
	return meta.Version, nil
}

func TestRegionalCatchesUpFromCentral(t *testing.T) {
	central := startNode(t, types.RoleCentral, "hub", "", nil, time.Minute)

	// Three writes land on central before the regional exists.
	for i := 1; i <= 3; i++ {
		meta := central.put(t, "c3", fmt.Sprintf(`{"n":%d}`, i))
		require.Equal(t, int64(i), meta.Version)
	}

	regional := startNode(t, types.RoleRegional, "eu", central.server.URL, nil, time.Minute)

	require.Eventually(t, func() bool {
		v, err := regional.localVersion("c3")
		return err == nil && v == 3
	}, 10*time.Second, 25*time.Millisecond, "regional never caught up")

	payload, err := regional.store.Get("c3")
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":3}`, string(payload))
}

func TestRegionalStaysInSyncOverStream(t *testing.T) {
	central := startNode(t, types.RoleCentral, "hub", "", nil, time.Minute)
	regional := startNode(t, types.RoleRegional, "eu", central.server.URL, nil, time.Minute)

	require.Eventually(t, func() bool {
		return regional.syncer.Status().Phase == replication.PhaseStream
	}, 10*time.Second, 25*time.Millisecond)

	central.put(t, "c3", `{"fresh":true}`)

	require.Eventually(t, func() bool {
		v, err := regional.localVersion("c3")
		return err == nil && v == 1
	}, 2*time.Second, 25*time.Millisecond, "streamed write not visible on regional within 2s")

	// Deletes ride the same stream.
	req, _ := http.NewRequest(http.MethodDelete, central.server.URL+"/contexts/c3", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Eventually(t, func() bool {
		_, err := regional.store.Get("c3")
		return errors.Is(err, store.ErrNotFound)
	}, 2*time.Second, 25*time.Millisecond)
}

func TestCacheFollowsRegional(t *testing.T) {
	central := startNode(t, types.RoleCentral, "hub", "", nil, time.Minute)
	regional := startNode(t, types.RoleRegional, "eu", central.server.URL, nil, time.Minute)
	// The regional mirrors central without re-publishing, so its stream stays
	// quiet; the cache picks changes up on its idle reconcile pass.
	cache := startNode(t, types.RoleCache, "eu", regional.server.URL, nil, 250*time.Millisecond)

	require.Eventually(t, func() bool {
		return cache.syncer.Status().Phase == replication.PhaseStream
	}, 10*time.Second, 25*time.Millisecond)

	central.put(t, "deep", `{"tier":3}`)

	// The write streams central -> regional, then the cache pulls it.
	require.Eventually(t, func() bool {
		v, err := cache.localVersion("deep")
		return err == nil && v == 1
	}, 10*time.Second, 25*time.Millisecond, "cache tier never converged")
}

func TestPartialPropagationConverges(t *testing.T) {
	// R2's slot in the directory points at a dead address; R1 is healthy.
	central := startNode(t, types.RoleCentral, "hub", "", nil, time.Minute)
	r1 := startNode(t, types.RoleRegional, "eu", central.server.URL, nil, time.Minute)

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead.Close()

	dir := peers.NewStaticDirectory([]types.Peer{
		{Name: "r1", Address: r1.server.URL, Tags: []string{"regional", "eu"}, Online: true},
		{Name: "r2", Address: dead.URL, Tags: []string{"regional", "us"}, Online: true},
	})

	// Rebuild central with the directory so its propagator can see both.
	central2 := startNode(t, types.RoleCentral, "hub2", "", dir, time.Minute)

	meta := central2.put(t, "c4", `{"x":1}`)
	assert.Equal(t, int64(1), meta.Version, "local write succeeds despite the dead peer")

	// R1 receives the direct push even without a stream subscription to
	// central2.
	require.Eventually(t, func() bool {
		v, err := r1.localVersion("c4")
		return err == nil && v == 1
	}, 10*time.Second, 25*time.Millisecond, "reachable regional missed the push")

	// The late peer converges by catching up once it comes back.
	late := startNode(t, types.RoleRegional, "us", central2.server.URL, nil, time.Minute)
	require.Eventually(t, func() bool {
		v, err := late.localVersion("c4")
		return err == nil && v == 1
	}, 10*time.Second, 25*time.Millisecond, "returning regional never converged")
}

func TestWriteAgainstCacheReachesWholeTree(t *testing.T) {
	central := startNode(t, types.RoleCentral, "hub", "", nil, time.Minute)
	regional := startNode(t, types.RoleRegional, "eu", central.server.URL, nil, time.Minute)
	cache := startNode(t, types.RoleCache, "eu", regional.server.URL, nil, time.Minute)

	require.Eventually(t, func() bool {
		return regional.syncer.Status().Phase == replication.PhaseStream &&
			cache.syncer.Status().Phase == replication.PhaseStream
	}, 10*time.Second, 25*time.Millisecond)

	// The cache forwards through the regional to central, which assigns the
	// authoritative version.
	meta := cache.put(t, "edge-write", `{"from":"edge"}`)
	assert.Equal(t, int64(1), meta.Version)

	v, err := central.localVersion("edge-write")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	// Every tier converges on version 1.
	for _, n := range []*node{regional, cache} {
		n := n
		require.Eventually(t, func() bool {
			v, err := n.localVersion("edge-write")
			return err == nil && v == 1
		}, 10*time.Second, 25*time.Millisecond)
	}
}
