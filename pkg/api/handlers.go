package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/store"
	"github.com/cuemby/burrow/pkg/types"
)

// saveRequest is the PUT /contexts/{id} body. Metadata carries free-form
// caller fields; any version in it is ignored.
type saveRequest struct {
	Context  json.RawMessage `json:"context"`
	Metadata map[string]any  `json:"metadata"`
}

// replicateRequest is the POST /internal/replicate body used by upstream
// propagation pushes
type replicateRequest struct {
	ContextID string          `json:"contextId"`
	Context   json.RawMessage `json:"context"`
	Metadata  types.Metadata  `json:"metadata"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("includeMetadata") == "true" {
		entries, err := s.store.ListWithMetadata()
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if entries == nil {
			entries = []types.ContextEntry{}
		}
		s.writeJSON(w, http.StatusOK, entries)
		return
	}

	ids, err := s.store.List()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, http.StatusOK, ids)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	payload, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

func (s *Server) handleGetMetadata(w http.ResponseWriter, r *http.Request) {
	meta, err := s.store.GetMetadata(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	contextID := r.PathValue("id")

	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	if len(req.Context) == 0 {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing context payload"})
		return
	}

	var meta types.Metadata
	var err error
	if s.cfg.Role.IsCentral() {
		meta, err = s.store.Save(contextID, req.Context, req.Metadata)
		if err == nil && s.propagator != nil {
			s.propagator.ContextUpdated(contextID, meta)
		}
	} else {
		meta, err = s.forwardSave(r.Context(), contextID, req)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"contextId": contextID,
		"metadata":  meta,
	})
}

// forwardSave routes a replica-received write to the upstream central and
// mirrors the authoritative result locally. The replica never assigns a
// version itself.
func (s *Server) forwardSave(ctx context.Context, contextID string, req saveRequest) (types.Metadata, error) {
	upstream, err := s.upstream.Resolve(ctx)
	if err != nil {
		return types.Metadata{}, errUpstreamUnavailable(err)
	}

	meta, err := upstream.PutContext(ctx, contextID, req.Context, req.Metadata)
	if err != nil {
		return types.Metadata{}, errUpstreamUnavailable(err)
	}

	if _, err := s.store.ApplyUpdate(contextID, req.Context, meta); err != nil {
		s.logger.Warn().Err(err).Str("context_id", contextID).Msg("Failed to mirror forwarded write locally")
	}
	return meta, nil
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	contextID := r.PathValue("id")

	var err error
	if s.cfg.Role.IsCentral() {
		err = s.store.Delete(contextID)
		if err == nil && s.propagator != nil {
			s.propagator.ContextDeleted(contextID)
		}
	} else {
		err = s.forwardDelete(r.Context(), contextID)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) forwardDelete(ctx context.Context, contextID string) error {
	upstream, err := s.upstream.Resolve(ctx)
	if err != nil {
		return errUpstreamUnavailable(err)
	}
	if err := upstream.DeleteContext(ctx, contextID); err != nil {
		return errUpstreamUnavailable(err)
	}
	return s.store.ApplyDelete(contextID)
}

func (s *Server) handleStreamAll(w http.ResponseWriter, r *http.Request) {
	s.streamer.ServeAll(w, r)
}

func (s *Server) handleStreamContext(w http.ResponseWriter, r *http.Request) {
	s.streamer.ServeContext(w, r, r.PathValue("id"))
}

func (s *Server) handleReplicate(w http.ResponseWriter, r *http.Request) {
	var req replicateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	if req.ContextID == "" || len(req.Context) == 0 {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing contextId or context"})
		return
	}

	applied, err := s.store.ApplyUpdate(req.ContextID, req.Context, req.Metadata)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "applied": applied})
}

func (s *Server) handleReplicateDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ApplyDelete(r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, components := metrics.OverallStatus()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"serverType": s.cfg.Role,
		"nodeId":     s.cfg.NodeID,
		"regionId":   s.cfg.RegionID,
		"uptime":     metrics.Uptime().String(),
		"components": components,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"serverType": s.cfg.Role,
		"nodeId":     s.cfg.NodeID,
		"regionId":   s.cfg.RegionID,
		"uptime":     metrics.Uptime().String(),
		"subscribers": s.bus.SubscriberCount(),
	}

	if count, err := s.store.Count(); err == nil {
		out["contexts"] = count
		metrics.ContextsTotal.Set(float64(count))
	}

	if s.dir != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if all, err := s.dir.Peers(ctx); err == nil {
			out["peers"] = all
		} else {
			out["peersError"] = err.Error()
		}
	}

	if s.syncer != nil {
		out["sync"] = s.syncer.Status()
	}
	if s.state != nil {
		if cp, err := s.state.LastCheckpoint(); err == nil && cp != nil {
			out["lastCheckpoint"] = cp
		}
	}

	s.writeJSON(w, http.StatusOK, out)
}

// upstreamError wraps upstream failures so the error mapper can return 502
// without losing the cause
type upstreamError struct{ err error }

func (e *upstreamError) Error() string { return "upstream unavailable: " + e.err.Error() }
func (e *upstreamError) Unwrap() error { return e.err }

func errUpstreamUnavailable(err error) error {
	return &upstreamError{err: err}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var upstream *upstreamError

	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "context not found"})

	case errors.Is(err, store.ErrInvalidID), errors.Is(err, store.ErrInvalidPayload):
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})

	case errors.As(err, &upstream):
		s.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Write rejected, upstream unavailable")
		s.writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream unavailable"})

	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}
