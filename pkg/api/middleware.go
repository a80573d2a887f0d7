package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/cuemby/burrow/pkg/metrics"
)

// statusRecorder captures the response status for logs and metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush passes stream flushes through to the underlying writer
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// withObservability wraps the mux with request logging and metrics. Stream
// endpoints are skipped from duration histograms since they stay open for
// the life of the subscriber.
func (s *Server) withObservability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		timer := metrics.NewTimer()

		next.ServeHTTP(rec, r)

		isStream := strings.HasSuffix(r.URL.Path, "/stream")
		if !isStream {
			timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method)
		}
		metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Str("client", clientIP(r)).
			Dur("duration", timer.Duration()).
			Msg("Request handled")
	})
}

// clientIP extracts the client IP from the request
func clientIP(r *http.Request) string {
	// Try X-Forwarded-For first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	// Try X-Real-IP
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
