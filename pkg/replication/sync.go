package replication

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/client"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/store"
	"github.com/cuemby/burrow/pkg/types"
)

// Phase names the sync loop's current state
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseDiscover  Phase = "discover"
	PhaseCatchup   Phase = "catchup"
	PhaseStream    Phase = "stream"
	PhaseReconcile Phase = "reconcile"
	PhaseBackoff   Phase = "backoff"
)

// backoffCap bounds the retry delay as a multiple of the sync interval
const backoffCap = 10

// SyncConfig holds replica sync configuration
type SyncConfig struct {
	Role     types.Role
	NodeID   string
	Interval time.Duration
}

// SyncStatus is a snapshot of the loop for /status
type SyncStatus struct {
	Phase       Phase      `json:"phase"`
	Upstream    string     `json:"upstream,omitempty"`
	LastCatchup *time.Time `json:"lastCatchup,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
	Backoff     string     `json:"backoff,omitempty"`
}

// Syncer keeps a non-central node converged with its upstream: an initial
// catch-up pass, then a long-lived stream subscription, with periodic
// reconciliation while the stream is idle. All applies go through the
// store's apply-from-upstream path so nothing is re-published locally.
type Syncer struct {
	cfg      SyncConfig
	store    store.ContextStore
	state    *store.StateDB
	upstream *Upstream
	logger   zerolog.Logger

	mu          sync.Mutex
	phase       Phase
	lastCatchup *time.Time
	lastErr     error
	backoff     time.Duration
}

// NewSyncer creates the sync loop for a non-central node
func NewSyncer(cfg SyncConfig, contextStore store.ContextStore, state *store.StateDB, upstream *Upstream) *Syncer {
	return &Syncer{
		cfg:      cfg,
		store:    contextStore,
		state:    state,
		upstream: upstream,
		logger:   log.WithComponent("sync"),
		phase:    PhaseIdle,
	}
}

// Status returns a snapshot of the loop state
func (s *Syncer) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := SyncStatus{
		Phase:       s.phase,
		Upstream:    s.upstream.CurrentURL(),
		LastCatchup: s.lastCatchup,
	}
	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
	}
	if s.phase == PhaseBackoff {
		status.Backoff = s.backoff.String()
	}
	return status
}

// Run drives the loop until ctx is cancelled
func (s *Syncer) Run(ctx context.Context) {
	s.logger.Info().
		Str("role", string(s.cfg.Role)).
		Dur("interval", s.cfg.Interval).
		Msg("Replica sync started")

	backoff := s.cfg.Interval
	for ctx.Err() == nil {
		err := s.cycle(ctx)
		if ctx.Err() != nil {
			break
		}

		if err == nil {
			// Stream asked for a resync; go straight back to catch-up.
			backoff = s.cfg.Interval
			continue
		}

		s.setError(err)
		metrics.UpstreamConnected.Set(0)
		metrics.SyncCyclesTotal.WithLabelValues("error").Inc()
		metrics.RegisterComponent("sync", false, err.Error())
		s.logger.Warn().Err(err).Dur("backoff", backoff).Msg("Sync cycle failed, backing off")

		s.setPhase(PhaseBackoff, backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
		}
		backoff = min(backoff*2, backoffCap*s.cfg.Interval)
	}

	s.setPhase(PhaseIdle, 0)
	s.logger.Info().Msg("Replica sync stopped")
}

// cycle runs one DISCOVER -> CATCHUP -> STREAM pass. A nil return means the
// stream ended on a resync request and catch-up should restart immediately.
func (s *Syncer) cycle(ctx context.Context) error {
	s.setPhase(PhaseDiscover, 0)
	upstream, err := s.upstream.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}

	s.setPhase(PhaseCatchup, 0)
	if err := s.catchup(ctx, upstream); err != nil {
		return fmt.Errorf("catchup: %w", err)
	}

	metrics.RegisterComponent("sync", true, "in sync with "+upstream.BaseURL())
	s.setError(nil)

	s.setPhase(PhaseStream, 0)
	return s.streamFrom(ctx, upstream)
}

// catchup lists the upstream's contexts and applies everything strictly
// newer than the local copy
func (s *Syncer) catchup(ctx context.Context, upstream *client.Client) error {
	timer := metrics.NewTimer()

	entries, err := upstream.ListWithMetadata(ctx)
	if err != nil {
		return err
	}

	applied := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ok, err := s.applyUpdate(ctx, upstream, entry.ID, entry.Metadata)
		if err != nil {
			s.logger.Warn().Err(err).Str("context_id", entry.ID).Msg("Failed to apply context during catch-up")
			continue
		}
		if ok {
			applied++
		}
	}

	timer.ObserveDuration(metrics.SyncDuration)
	metrics.SyncCyclesTotal.WithLabelValues("ok").Inc()

	now := time.Now()
	s.mu.Lock()
	s.lastCatchup = &now
	s.mu.Unlock()

	if s.state != nil {
		checkpoint := store.Checkpoint{
			Upstream:    upstream.BaseURL(),
			CompletedAt: now,
			Contexts:    len(entries),
			Applied:     applied,
		}
		if err := s.state.SaveCheckpoint(checkpoint); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to persist sync checkpoint")
		}
	}

	s.logger.Info().
		Int("contexts", len(entries)).
		Int("applied", applied).
		Msg("Catch-up complete")
	return nil
}

// streamFrom follows the upstream's all-contexts stream. It returns nil when
// the upstream requests a resync and an error on connection failure. While
// the stream is idle a reconcile pass runs every sync interval.
func (s *Syncer) streamFrom(ctx context.Context, upstream *client.Client) error {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := upstream.OpenStream(streamCtx, string(s.cfg.Role), s.cfg.NodeID)
	if err != nil {
		return fmt.Errorf("stream: %w", err)
	}
	defer stream.Close()

	metrics.UpstreamConnected.Set(1)
	defer metrics.UpstreamConnected.Set(0)

	type result struct {
		event types.WireEvent
		err   error
	}
	results := make(chan result)
	go func() {
		for {
			event, err := stream.Next()
			select {
			case results <- result{event, err}:
			case <-streamCtx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	idle := time.NewTimer(s.cfg.Interval)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-idle.C:
			// Nothing heard for a full interval; reconcile in place.
			s.setPhase(PhaseReconcile, 0)
			if err := s.catchup(ctx, upstream); err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}
			s.setPhase(PhaseStream, 0)
			idle.Reset(s.cfg.Interval)

		case r := <-results:
			if r.err != nil {
				return fmt.Errorf("stream: %w", r.err)
			}
			// Pings keep the connection alive but do not count as traffic;
			// the reconcile timer only resets on data events.
			if r.event.Event == types.WireUpdate || r.event.Event == types.WireDelete {
				if !idle.Stop() {
					select {
					case <-idle.C:
					default:
					}
				}
				idle.Reset(s.cfg.Interval)
			}

			if err := s.handleEvent(ctx, upstream, r.event); err != nil {
				if errors.Is(err, errResyncRequested) {
					s.logger.Info().Msg("Upstream requested resync")
					return nil
				}
				return err
			}
		}
	}
}

var errResyncRequested = errors.New("resync requested")

func (s *Syncer) handleEvent(ctx context.Context, upstream *client.Client, event types.WireEvent) error {
	switch event.Event {
	case types.WireConnected, types.WirePing:
		return nil

	case types.WireResync:
		return errResyncRequested

	case types.WireUpdate:
		if event.ContextID == "" || event.Metadata == nil {
			return nil
		}
		ok, err := s.applyUpdate(ctx, upstream, event.ContextID, *event.Metadata)
		if err != nil {
			s.logger.Warn().Err(err).Str("context_id", event.ContextID).Msg("Failed to apply streamed update")
			return nil
		}
		if ok {
			metrics.SyncAppliedTotal.WithLabelValues("update").Inc()
		}
		return nil

	case types.WireDelete:
		if event.ContextID == "" {
			return nil
		}
		if err := s.store.ApplyDelete(event.ContextID); err != nil {
			s.logger.Warn().Err(err).Str("context_id", event.ContextID).Msg("Failed to apply streamed delete")
			return nil
		}
		metrics.SyncAppliedTotal.WithLabelValues("delete").Inc()
		return nil
	}
	return nil
}

// applyUpdate fetches the payload for an announced version and mirrors it
// locally. Stale announcements are no-ops, which makes re-delivery safe.
func (s *Syncer) applyUpdate(ctx context.Context, upstream *client.Client, contextID string, meta types.Metadata) (bool, error) {
	local, err := s.store.GetMetadata(contextID)
	if err == nil && meta.Version <= local.Version {
		return false, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return false, err
	}

	payload, err := upstream.GetContext(ctx, contextID)
	if err != nil {
		return false, err
	}
	return s.store.ApplyUpdate(contextID, payload, meta)
}

func (s *Syncer) setPhase(phase Phase, backoff time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phase
	s.backoff = backoff
}

func (s *Syncer) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
}
