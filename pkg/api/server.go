package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/peers"
	"github.com/cuemby/burrow/pkg/replication"
	"github.com/cuemby/burrow/pkg/store"
)

// Server is the request router. It maps the HTTP surface onto the context
// store, hands stream requests to the streamer, and routes writes by role:
// central commits locally and fans out, replicas forward to their upstream.
type Server struct {
	cfg        *config.Config
	store      store.ContextStore
	bus        *events.Bus
	streamer   *replication.Streamer
	propagator *replication.Propagator
	upstream   *replication.Upstream
	syncer     *replication.Syncer
	dir        peers.Directory
	state      *store.StateDB
	logger     zerolog.Logger

	httpServer *http.Server
}

// Options wires the server's collaborators. Propagator is central-only;
// Upstream and Syncer are replica-only. Dir and State may be nil.
type Options struct {
	Config     *config.Config
	Store      store.ContextStore
	Bus        *events.Bus
	Streamer   *replication.Streamer
	Propagator *replication.Propagator
	Upstream   *replication.Upstream
	Syncer     *replication.Syncer
	Dir        peers.Directory
	State      *store.StateDB
}

// NewServer creates the request router
func NewServer(opts Options) *Server {
	s := &Server{
		cfg:        opts.Config,
		store:      opts.Store,
		bus:        opts.Bus,
		streamer:   opts.Streamer,
		propagator: opts.Propagator,
		upstream:   opts.Upstream,
		syncer:     opts.Syncer,
		dir:        opts.Dir,
		state:      opts.State,
		logger:     log.WithComponent("api"),
	}

	s.httpServer = &http.Server{
		Addr:              opts.Config.ListenAddr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler builds the route table. Exposed so tests can drive the server
// through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /contexts", s.handleList)
	mux.HandleFunc("GET /contexts/stream", s.handleStreamAll)
	mux.HandleFunc("GET /contexts/{id}", s.handleGet)
	mux.HandleFunc("PUT /contexts/{id}", s.handleSave)
	mux.HandleFunc("DELETE /contexts/{id}", s.handleDelete)
	mux.HandleFunc("GET /contexts/{id}/metadata", s.handleGetMetadata)
	mux.HandleFunc("GET /contexts/{id}/stream", s.handleStreamContext)

	mux.HandleFunc("POST /internal/replicate", s.handleReplicate)
	mux.HandleFunc("DELETE /internal/replicate/{id}", s.handleReplicateDelete)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", metrics.Handler())

	return s.withObservability(mux)
}

// Start binds the listen address and serves until Shutdown. A bind failure
// is returned so the caller can exit non-zero.
func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.httpServer.Addr).
		Str("role", string(s.cfg.Role)).
		Msg("API server listening")

	metrics.RegisterComponent("api", true, "listening on "+s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits, until ctx is done, for
// in-flight requests to finish. Open event streams are not closed by it: they
// hold the drain until their clients disconnect or ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
