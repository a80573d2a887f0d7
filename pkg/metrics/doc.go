/*
Package metrics provides Prometheus metrics and component health tracking
for Burrow.

All collectors are package-level, registered in init, and exposed through
Handler() on GET /metrics. Component health feeds the /health endpoint.

# Metric Groups

Store:
  - burrow_contexts_total: stored context gauge
  - burrow_store_operations_total{operation,result}
  - burrow_cache_hits_total / burrow_cache_misses_total

Event bus:
  - burrow_event_subscribers
  - burrow_events_dropped_total

Streams:
  - burrow_stream_subscribers{kind}
  - burrow_stream_events_total{event}

API:
  - burrow_api_requests_total{method,status}
  - burrow_api_request_duration_seconds{method}

Propagation:
  - burrow_propagation_total{result}
  - burrow_propagation_duration_seconds

Replica sync:
  - burrow_sync_cycles_total{result}
  - burrow_sync_duration_seconds
  - burrow_sync_applied_total{kind}
  - burrow_upstream_connected

# Timing Operations

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SyncDuration)

	timer.ObserveDurationVec(metrics.APIRequestDuration, "PUT")

# Component Health

	metrics.RegisterComponent("store", true, dataDir)
	metrics.UpdateComponent("sync", false, "upstream unreachable")

	status, components := metrics.OverallStatus() // "healthy" | "degraded"

A node with a failing component reports degraded but keeps serving; only
startup failures are fatal.

# See Also

  - prometheus/client_golang: https://github.com/prometheus/client_golang
*/
package metrics
