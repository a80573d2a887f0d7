package peers

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/burrow/pkg/types"
)

// StaticDirectory serves a fixed peer list, either loaded from a YAML peers
// file or assembled in code (tests, single-region deployments).
type StaticDirectory struct {
	mu    sync.RWMutex
	peers []types.Peer
}

// NewStaticDirectory creates a directory over a fixed list
func NewStaticDirectory(peers []types.Peer) *StaticDirectory {
	return &StaticDirectory{peers: peers}
}

// LoadPeersFile reads a YAML peers file:
//
//	- name: regional-eu
//	  address: 10.1.0.4:8080
//	  tags: [regional, eu-west]
//	  online: true
func LoadPeersFile(path string) (*StaticDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read peers file: %w", err)
	}
	var peers []types.Peer
	if err := yaml.Unmarshal(data, &peers); err != nil {
		return nil, fmt.Errorf("failed to parse peers file %s: %w", path, err)
	}
	return NewStaticDirectory(peers), nil
}

// Peers returns the configured peer list
func (d *StaticDirectory) Peers(ctx context.Context) ([]types.Peer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]types.Peer, len(d.peers))
	copy(out, d.peers)
	return out, nil
}

// SetPeers replaces the peer list
func (d *StaticDirectory) SetPeers(peers []types.Peer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peers = peers
}
