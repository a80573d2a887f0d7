/*
Package config resolves a Burrow node's configuration from the
environment.

Resolution uses viper bound to environment variables, with CLI flags
applied on top by cmd/burrow. SYNC_INTERVAL and CACHE_TTL are wire-level
milliseconds, exposed as time.Duration.

# Variables

	SERVER_TYPE         central | regional | cache   (default central)
	PORT                HTTP listen port             (default 8080)
	DATA_DIR            context + state storage      (default ./data)
	NODE_ID             node identity                (default fresh UUID)
	REGION_ID           region tag for discovery
	CENTRAL_AUTHORITY   fallback upstream URL
	SYNC_INTERVAL       catch-up/reconcile interval, ms (default 60000)
	CACHE_TTL           LRU entry lifetime, ms          (default 300000)
	CACHE_SIZE          LRU entry bound                 (default 100)
	PEERS_FILE          static peers YAML (see pkg/peers)
	OVERLAY_STATUS_URL  overlay daemon status API

Validate enforces the startup invariants: a usable port, a data
directory, a positive sync interval and cache size, and, for replicas,
at least one way to find an upstream. Validation failures abort startup with exit code 1.

# Usage

	cfg, err := config.Load()
	if err != nil {
		return err // startup failure
	}
*/
package config
