package config

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/cuemby/burrow/pkg/types"
)

// Defaults for tunables not set through the environment
const (
	DefaultPort         = 8080
	DefaultDataDir      = "./data"
	DefaultSyncInterval = 60 * time.Second
	DefaultCacheTTL     = 5 * time.Minute
	DefaultCacheSize    = 100
)

// Config holds the full node configuration, resolved from environment
// variables with flag overrides applied by the CLI.
type Config struct {
	Role             types.Role
	Port             int
	DataDir          string
	NodeID           string
	RegionID         string
	CentralAuthority string
	SyncInterval     time.Duration
	CacheTTL         time.Duration
	CacheSize        int
	PeersFile        string
	OverlayStatusURL string
}

// Load resolves configuration from the environment. SYNC_INTERVAL and
// CACHE_TTL are in milliseconds on the wire, durations in memory.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_TYPE", string(types.RoleCentral))
	v.SetDefault("PORT", DefaultPort)
	v.SetDefault("DATA_DIR", DefaultDataDir)
	v.SetDefault("NODE_ID", "")
	v.SetDefault("REGION_ID", "")
	v.SetDefault("CENTRAL_AUTHORITY", "")
	v.SetDefault("SYNC_INTERVAL", int64(DefaultSyncInterval/time.Millisecond))
	v.SetDefault("CACHE_TTL", int64(DefaultCacheTTL/time.Millisecond))
	v.SetDefault("CACHE_SIZE", DefaultCacheSize)
	v.SetDefault("PEERS_FILE", "")
	v.SetDefault("OVERLAY_STATUS_URL", "")

	role, err := types.ParseRole(v.GetString("SERVER_TYPE"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Role:             role,
		Port:             v.GetInt("PORT"),
		DataDir:          v.GetString("DATA_DIR"),
		NodeID:           v.GetString("NODE_ID"),
		RegionID:         v.GetString("REGION_ID"),
		CentralAuthority: v.GetString("CENTRAL_AUTHORITY"),
		SyncInterval:     time.Duration(v.GetInt64("SYNC_INTERVAL")) * time.Millisecond,
		CacheTTL:         time.Duration(v.GetInt64("CACHE_TTL")) * time.Millisecond,
		CacheSize:        v.GetInt("CACHE_SIZE"),
		PeersFile:        v.GetString("PEERS_FILE"),
		OverlayStatusURL: v.GetString("OVERLAY_STATUS_URL"),
	}

	if cfg.NodeID == "" {
		cfg.NodeID = uuid.New().String()
	}

	return cfg, cfg.Validate()
}

// Validate checks invariants the rest of the system relies on
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data directory not set")
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", c.SyncInterval)
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache size must be positive, got %d", c.CacheSize)
	}
	if !c.Role.IsCentral() && c.CentralAuthority == "" && c.PeersFile == "" && c.OverlayStatusURL == "" {
		return fmt.Errorf("%s node needs CENTRAL_AUTHORITY, PEERS_FILE or OVERLAY_STATUS_URL to find its upstream", c.Role)
	}
	return nil
}

// ListenAddr returns the HTTP bind address
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}
