package replication

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
)

// DefaultPingInterval keeps idle stream connections alive through
// middleboxes
const DefaultPingInterval = 30 * time.Second

// Streamer serves the event-stream endpoints: the all-contexts stream that
// downstream replicas follow and the per-context stream for individual
// agent clients. Each connection gets its own bus subscription; if that
// subscription overflows the client is told to resync and disconnected.
type Streamer struct {
	bus          *events.Bus
	logger       zerolog.Logger
	pingInterval time.Duration
}

// NewStreamer creates a streamer over the bus
func NewStreamer(bus *events.Bus) *Streamer {
	return &Streamer{
		bus:          bus,
		logger:       log.WithComponent("stream"),
		pingInterval: DefaultPingInterval,
	}
}

// ServeAll handles GET /contexts/stream
func (s *Streamer) ServeAll(w http.ResponseWriter, r *http.Request) {
	subscriber := r.URL.Query().Get("nodeId")
	serverType := r.URL.Query().Get("serverType")

	s.logger.Info().
		Str("subscriber", subscriber).
		Str("server_type", serverType).
		Msg("Stream subscriber connected")

	s.serve(w, r, "", "all")

	s.logger.Info().Str("subscriber", subscriber).Msg("Stream subscriber disconnected")
}

// ServeContext handles GET /contexts/{id}/stream. The stream ends after a
// delete for the watched context is delivered.
func (s *Streamer) ServeContext(w http.ResponseWriter, r *http.Request, contextID string) {
	s.serve(w, r, contextID, "context")
}

func (s *Streamer) serve(w http.ResponseWriter, r *http.Request, filterID, kind string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	metrics.StreamSubscribers.WithLabelValues(kind).Inc()
	defer metrics.StreamSubscribers.WithLabelValues(kind).Dec()

	sub := s.bus.Subscribe()
	defer s.bus.Unsubscribe(sub)

	if err := writeEvent(w, flusher, types.NewWireEvent(types.WireConnected)); err != nil {
		return
	}

	ping := time.NewTicker(s.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-ping.C:
			if err := writeEvent(w, flusher, types.NewWireEvent(types.WirePing)); err != nil {
				return
			}

		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if sub.TakeOverflow() {
				// The client missed events; tell it to catch up and drop the
				// connection rather than serve a gapped stream.
				writeEvent(w, flusher, types.NewWireEvent(types.WireResync))
				return
			}
			if filterID != "" && event.ContextID != filterID {
				continue
			}
			if err := writeEvent(w, flusher, wireEvent(event)); err != nil {
				return
			}
			if filterID != "" && event.Type == events.EventContextDeleted {
				return
			}
		}
	}
}

// wireEvent converts a bus event to its stream envelope
func wireEvent(event events.Event) types.WireEvent {
	out := types.WireEvent{
		ContextID: event.ContextID,
		Metadata:  event.Metadata,
		Timestamp: types.Timestamp(event.Timestamp),
	}
	switch event.Type {
	case events.EventContextDeleted:
		out.Event = types.WireDelete
	default:
		out.Event = types.WireUpdate
	}
	return out
}

// writeEvent frames one event as a data chunk and flushes it
func writeEvent(w http.ResponseWriter, flusher http.Flusher, event types.WireEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	metrics.StreamEventsTotal.WithLabelValues(string(event.Event)).Inc()
	return nil
}
