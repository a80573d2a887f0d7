package peers

import (
	"context"

	"github.com/cuemby/burrow/pkg/types"
)

// Directory enumerates the other nodes this node can see. Production wiring
// queries the overlay network's local status API; tests and static
// deployments use a fixed list.
type Directory interface {
	Peers(ctx context.Context) ([]types.Peer, error)
}

// FilterByTag returns the online peers carrying the given tag
func FilterByTag(all []types.Peer, tag string) []types.Peer {
	var out []types.Peer
	for _, p := range all {
		if p.Online && p.HasTag(tag) {
			out = append(out, p)
		}
	}
	return out
}

// FilterByTagAndRegion narrows FilterByTag to one region. Peers advertise
// their region as a plain tag. An empty region matches everything.
func FilterByTagAndRegion(all []types.Peer, tag, region string) []types.Peer {
	tagged := FilterByTag(all, tag)
	if region == "" {
		return tagged
	}
	var out []types.Peer
	for _, p := range tagged {
		if p.HasTag(region) {
			out = append(out, p)
		}
	}
	return out
}
