package replication

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/client"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/peers"
	"github.com/cuemby/burrow/pkg/types"
)

// Upstream resolves which node this replica follows: a directory peer
// carrying the role's upstream tag, preferring one in the same region, or
// the statically configured fallback URL when no such peer is online. The
// resolved address is cached for /status and write forwarding.
type Upstream struct {
	role     types.Role
	region   string
	fallback string
	dir      peers.Directory
	logger   zerolog.Logger

	mu      sync.Mutex
	current *client.Client
}

// NewUpstream creates a resolver. dir may be nil when only the fallback URL
// is configured.
func NewUpstream(role types.Role, region, fallback string, dir peers.Directory) *Upstream {
	return &Upstream{
		role:     role,
		region:   region,
		fallback: fallback,
		dir:      dir,
		logger:   log.WithComponent("upstream"),
	}
}

// Resolve discovers the upstream and verifies it answers health probes
func (u *Upstream) Resolve(ctx context.Context) (*client.Client, error) {
	addr, err := u.discover(ctx)
	if err != nil {
		return nil, err
	}

	cl := u.clientFor(addr)
	if err := cl.Health(ctx); err != nil {
		return nil, fmt.Errorf("upstream %s unhealthy: %w", addr, err)
	}
	return cl, nil
}

// Current returns the last resolved client, or nil before first discovery
func (u *Upstream) Current() *client.Client {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.current
}

// CurrentURL returns the last resolved upstream address for status reporting
func (u *Upstream) CurrentURL() string {
	if cl := u.Current(); cl != nil {
		return cl.BaseURL()
	}
	return u.fallback
}

func (u *Upstream) discover(ctx context.Context) (string, error) {
	tag := u.role.UpstreamTag()
	if u.dir != nil && tag != "" {
		all, err := u.dir.Peers(ctx)
		if err != nil {
			u.logger.Warn().Err(err).Msg("Peer directory query failed, falling back to configured upstream")
		} else {
			candidates := peers.FilterByTagAndRegion(all, tag, u.region)
			if len(candidates) == 0 && u.region != "" {
				// No upstream in-region; any peer with the right tag beats the fallback.
				candidates = peers.FilterByTag(all, tag)
			}
			if len(candidates) > 0 {
				return candidates[0].URL(), nil
			}
		}
	}

	if u.fallback == "" {
		return "", fmt.Errorf("no %s peer discovered and no fallback upstream configured", tag)
	}
	return u.fallback, nil
}

func (u *Upstream) clientFor(addr string) *client.Client {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.current == nil || u.current.BaseURL() != addr {
		u.current = client.New(addr)
	}
	return u.current
}
