package replication

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/peers"
	"github.com/cuemby/burrow/pkg/types"
)

func healthyNode(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			fmt.Fprint(w, `{"status":"healthy"}`)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestResolvePrefersDirectoryPeer(t *testing.T) {
	node := healthyNode(t)

	dir := peers.NewStaticDirectory([]types.Peer{
		{Name: "central-1", Address: node.URL, Tags: []string{"central"}, Online: true},
	})

	upstream := NewUpstream(types.RoleRegional, "", "http://fallback.invalid", dir)
	cl, err := upstream.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, node.URL, cl.BaseURL())
	assert.Equal(t, node.URL, upstream.CurrentURL())
}

func TestResolvePrefersSameRegion(t *testing.T) {
	inRegion := healthyNode(t)
	outOfRegion := healthyNode(t)

	dir := peers.NewStaticDirectory([]types.Peer{
		{Name: "regional-us", Address: outOfRegion.URL, Tags: []string{"regional", "us-east"}, Online: true},
		{Name: "regional-eu", Address: inRegion.URL, Tags: []string{"regional", "eu-west"}, Online: true},
	})

	upstream := NewUpstream(types.RoleCache, "eu-west", "", dir)
	cl, err := upstream.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, inRegion.URL, cl.BaseURL())
}

func TestResolveFallsBackOutOfRegion(t *testing.T) {
	node := healthyNode(t)

	// Nothing in eu-west; a tagged peer elsewhere still beats the static
	// fallback.
	dir := peers.NewStaticDirectory([]types.Peer{
		{Name: "regional-us", Address: node.URL, Tags: []string{"regional", "us-east"}, Online: true},
	})

	upstream := NewUpstream(types.RoleCache, "eu-west", "", dir)
	cl, err := upstream.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, node.URL, cl.BaseURL())
}

func TestResolveUsesFallbackWhenDirectoryEmpty(t *testing.T) {
	node := healthyNode(t)

	upstream := NewUpstream(types.RoleRegional, "", node.URL, peers.NewStaticDirectory(nil))
	cl, err := upstream.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, node.URL, cl.BaseURL())
}

func TestResolveFailsWithoutAnyUpstream(t *testing.T) {
	upstream := NewUpstream(types.RoleRegional, "", "", peers.NewStaticDirectory(nil))
	_, err := upstream.Resolve(context.Background())
	assert.Error(t, err)
}

func TestResolveRejectsUnhealthyUpstream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	upstream := NewUpstream(types.RoleRegional, "", server.URL, nil)
	_, err := upstream.Resolve(context.Background())
	assert.Error(t, err)
}
