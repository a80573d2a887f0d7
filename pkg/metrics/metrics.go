package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Store metrics
	ContextsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_contexts_total",
			Help: "Total number of stored contexts",
		},
	)

	StoreOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_store_operations_total",
			Help: "Total number of store operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_cache_hits_total",
			Help: "Total number of LRU cache hits",
		},
	)

	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_cache_misses_total",
			Help: "Total number of LRU cache misses",
		},
	)

	// Event bus metrics
	EventSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_event_subscribers",
			Help: "Current number of event bus subscribers",
		},
	)

	EventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_events_dropped_total",
			Help: "Total number of events dropped from full subscriber queues",
		},
	)

	// Stream metrics
	StreamSubscribers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_stream_subscribers",
			Help: "Current number of open event-stream connections by kind",
		},
		[]string{"kind"},
	)

	StreamEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_stream_events_total",
			Help: "Total number of events written to streams by type",
		},
		[]string{"event"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Propagation metrics
	PropagationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_propagation_total",
			Help: "Total number of propagation pushes by result",
		},
		[]string{"result"},
	)

	PropagationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_propagation_duration_seconds",
			Help:    "Time taken to push one change to one peer in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Replica sync metrics
	SyncCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_sync_cycles_total",
			Help: "Total number of catch-up cycles by result",
		},
		[]string{"result"},
	)

	SyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_sync_duration_seconds",
			Help:    "Time taken for a catch-up cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SyncAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_sync_applied_total",
			Help: "Total number of upstream changes applied by kind",
		},
		[]string{"kind"},
	)

	UpstreamConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_upstream_connected",
			Help: "Whether the upstream stream is connected (1 = connected)",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ContextsTotal)
	prometheus.MustRegister(StoreOpsTotal)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(EventSubscribers)
	prometheus.MustRegister(EventsDroppedTotal)
	prometheus.MustRegister(StreamSubscribers)
	prometheus.MustRegister(StreamEventsTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(PropagationTotal)
	prometheus.MustRegister(PropagationDuration)
	prometheus.MustRegister(SyncCyclesTotal)
	prometheus.MustRegister(SyncDuration)
	prometheus.MustRegister(SyncAppliedTotal)
	prometheus.MustRegister(UpstreamConnected)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
