package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/peers"
	"github.com/cuemby/burrow/pkg/replication"
	"github.com/cuemby/burrow/pkg/store"
	"github.com/cuemby/burrow/pkg/types"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run a burrow node",
	Long: `Run a burrow node. The role comes from SERVER_TYPE (central, regional
or cache); flags override individual environment settings.`,
	RunE: runServer,
}

func init() {
	serverCmd.Flags().String("server-type", "", "Node role: central, regional or cache (overrides SERVER_TYPE)")
	serverCmd.Flags().Int("port", 0, "HTTP listen port (overrides PORT)")
	serverCmd.Flags().String("data-dir", "", "Data directory (overrides DATA_DIR)")
	serverCmd.Flags().String("node-id", "", "Node identifier (overrides NODE_ID)")
	serverCmd.Flags().String("region-id", "", "Region identifier (overrides REGION_ID)")
	serverCmd.Flags().String("central-authority", "", "Fallback upstream URL (overrides CENTRAL_AUTHORITY)")
	serverCmd.Flags().String("peers-file", "", "Static peers YAML file (overrides PEERS_FILE)")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := log.WithNodeID(cfg.NodeID)
	logger.Info().
		Str("role", string(cfg.Role)).
		Str("region", cfg.RegionID).
		Str("data_dir", cfg.DataDir).
		Int("port", cfg.Port).
		Msg("Starting burrow node")

	// Event bus
	bus := events.NewBus()
	bus.OnDrop(func(n int) {
		metrics.EventsDroppedTotal.Add(float64(n))
	})

	// Durable stores
	contextStore, err := store.NewFileStore(store.Config{
		DataDir:   cfg.DataDir,
		CacheSize: cfg.CacheSize,
		CacheTTL:  cfg.CacheTTL,
	}, bus)
	if err != nil {
		return fmt.Errorf("failed to open context store: %w", err)
	}
	defer contextStore.Close()
	metrics.RegisterComponent("store", true, cfg.DataDir)

	state, err := store.NewStateDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open state database: %w", err)
	}
	defer state.Close()

	if first, err := state.RecordFirstStart(time.Now()); err == nil {
		logger.Debug().Time("first_started", first).Msg("Node state loaded")
	}

	// Peer directory: overlay first, static peers file second
	dir, err := buildDirectory(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	streamer := replication.NewStreamer(bus)

	var (
		propagator *replication.Propagator
		upstream   *replication.Upstream
		syncer     *replication.Syncer
	)
	if cfg.Role.IsCentral() {
		propagator = replication.NewPropagator(contextStore, dir)
	} else {
		upstream = replication.NewUpstream(cfg.Role, cfg.RegionID, cfg.CentralAuthority, dir)
		syncer = replication.NewSyncer(replication.SyncConfig{
			Role:     cfg.Role,
			NodeID:   cfg.NodeID,
			Interval: cfg.SyncInterval,
		}, contextStore, state, upstream)
		go syncer.Run(ctx)
	}

	go collectGauges(ctx, contextStore, bus)

	server := api.NewServer(api.Options{
		Config:     cfg,
		Store:      contextStore,
		Bus:        bus,
		Streamer:   streamer,
		Propagator: propagator,
		Upstream:   upstream,
		Syncer:     syncer,
		Dir:        dir,
		State:      state,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Forced shutdown after drain timeout")
	}

	if propagator != nil {
		propagator.Wait()
	}

	logger.Info().Msg("Shutdown complete")
	return nil
}

// loadConfig resolves the environment configuration and applies flag
// overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if v, _ := cmd.Flags().GetString("server-type"); v != "" {
		role, err := types.ParseRole(v)
		if err != nil {
			return nil, err
		}
		cfg.Role = role
	}
	if v, _ := cmd.Flags().GetInt("port"); v != 0 {
		cfg.Port = v
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("node-id"); v != "" {
		cfg.NodeID = v
	}
	if v, _ := cmd.Flags().GetString("region-id"); v != "" {
		cfg.RegionID = v
	}
	if v, _ := cmd.Flags().GetString("central-authority"); v != "" {
		cfg.CentralAuthority = v
	}
	if v, _ := cmd.Flags().GetString("peers-file"); v != "" {
		cfg.PeersFile = v
	}

	return cfg, cfg.Validate()
}

func buildDirectory(cfg *config.Config) (peers.Directory, error) {
	if cfg.OverlayStatusURL != "" {
		return peers.NewOverlayDirectory(cfg.OverlayStatusURL), nil
	}
	if cfg.PeersFile != "" {
		dir, err := peers.LoadPeersFile(cfg.PeersFile)
		if err != nil {
			return nil, err
		}
		return dir, nil
	}
	// No discovery configured; an empty directory leaves only the
	// CENTRAL_AUTHORITY fallback.
	return peers.NewStaticDirectory(nil), nil
}

// collectGauges refreshes the slow-moving gauges the way a scrape expects
func collectGauges(ctx context.Context, contextStore store.ContextStore, bus *events.Bus) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if count, err := contextStore.Count(); err == nil {
				metrics.ContextsTotal.Set(float64(count))
			}
			metrics.EventSubscribers.Set(float64(bus.SubscriberCount()))
		case <-ctx.Done():
			return
		}
	}
}
