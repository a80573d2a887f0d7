package replication

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/client"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/peers"
	"github.com/cuemby/burrow/pkg/store"
	"github.com/cuemby/burrow/pkg/types"
)

// DefaultPeerTimeout bounds one propagation push
const DefaultPeerTimeout = 10 * time.Second

// Propagator fans committed central writes out to regional peers. Streaming
// covers peers with an open subscription; the direct push covers peers that
// are between connections. Pushes are best-effort: failures are logged and
// counted, never surfaced to the originating client.
type Propagator struct {
	store   store.ContextStore
	dir     peers.Directory
	logger  zerolog.Logger
	timeout time.Duration

	mu      sync.Mutex
	clients map[string]*client.Client

	wg sync.WaitGroup
}

// NewPropagator creates a propagator over the peer directory
func NewPropagator(contextStore store.ContextStore, dir peers.Directory) *Propagator {
	return &Propagator{
		store:   contextStore,
		dir:     dir,
		logger:  log.WithComponent("propagate"),
		timeout: DefaultPeerTimeout,
		clients: make(map[string]*client.Client),
	}
}

// ContextUpdated pushes a committed save to all regional peers. Returns
// immediately; the fan-out runs in the background.
func (p *Propagator) ContextUpdated(contextID string, meta types.Metadata) {
	p.fanout(func(ctx context.Context, cl *client.Client) error {
		payload, err := p.store.Get(contextID)
		if errors.Is(err, store.ErrNotFound) {
			// Deleted since the save committed; the delete's own fan-out
			// supersedes this push.
			return nil
		}
		if err != nil {
			return err
		}
		return cl.Replicate(ctx, contextID, payload, meta)
	}, contextID, "update")
}

// ContextDeleted pushes a committed delete to all regional peers
func (p *Propagator) ContextDeleted(contextID string) {
	p.fanout(func(ctx context.Context, cl *client.Client) error {
		return cl.ReplicateDelete(ctx, contextID)
	}, contextID, "delete")
}

// Wait blocks until in-flight pushes finish. Used during shutdown.
func (p *Propagator) Wait() {
	p.wg.Wait()
}

func (p *Propagator) fanout(push func(context.Context, *client.Client) error, contextID, kind string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		discoverCtx, cancel := context.WithTimeout(context.Background(), p.timeout)
		all, err := p.dir.Peers(discoverCtx)
		cancel()
		if err != nil {
			p.logger.Error().Err(err).Msg("Peer discovery failed, skipping propagation")
			return
		}

		regionals := peers.FilterByTag(all, string(types.RoleRegional))
		for _, peer := range regionals {
			p.wg.Add(1)
			go func(peer types.Peer) {
				defer p.wg.Done()
				p.pushToPeer(push, peer, contextID, kind)
			}(peer)
		}
	}()
}

func (p *Propagator) pushToPeer(push func(context.Context, *client.Client) error, peer types.Peer, contextID, kind string) {
	timer := metrics.NewTimer()
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	err := push(ctx, p.clientFor(peer.URL()))
	timer.ObserveDuration(metrics.PropagationDuration)

	if err != nil {
		metrics.PropagationTotal.WithLabelValues("error").Inc()
		p.logger.Warn().
			Err(err).
			Str("peer", peer.Name).
			Str("context_id", contextID).
			Str("kind", kind).
			Msg("Propagation push failed, peer will converge on its next catch-up")
		return
	}

	metrics.PropagationTotal.WithLabelValues("ok").Inc()
	p.logger.Debug().
		Str("peer", peer.Name).
		Str("context_id", contextID).
		Str("kind", kind).
		Msg("Propagated change to peer")
}

func (p *Propagator) clientFor(addr string) *client.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	cl, ok := p.clients[addr]
	if !ok {
		cl = client.New(addr)
		p.clients[addr] = cl
	}
	return cl
}
