// Command cold-replicator windows aged rows out of the hot ClickHouse
// tier into a cold database on a fixed poll schedule, resuming from
// per-table replication state across restarts.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/marketprism/marketprism/internal/config"
	"github.com/marketprism/marketprism/internal/health"
	"github.com/marketprism/marketprism/internal/replicate"
	"github.com/marketprism/marketprism/internal/schema"
	"github.com/marketprism/marketprism/internal/store/clickhouse"
	"github.com/marketprism/marketprism/internal/supervisor"
)

const healthPort = 8083

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	var configPath string

	rootCmd := &cobra.Command{
		Use:   "cold-replicator",
		Short: "Copy aged rows from hot to cold ClickHouse on a windowed schedule",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/marketprism/cold-replicator.yaml", "path to cold-replicator config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the cold replicator until signalled",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runColdReplicator(configPath)
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "config-check",
		Short: "Load and validate the config file, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.LoadColdReplicatorConfig(configPath); err != nil {
				log.Error().Err(err).Msg("cold-replicator: invalid configuration")
				os.Exit(2)
			}
			fmt.Println("config ok")
			return nil
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "healthcheck",
		Short: "Probe the running cold-replicator's /health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return health.Probe(fmt.Sprintf("http://127.0.0.1:%d/health", healthPort))
		},
	})

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("cold-replicator: fatal error")
	}
}

func runColdReplicator(configPath string) error {
	cfg, err := config.LoadColdReplicatorConfig(configPath)
	if err != nil {
		log.Error().Err(err).Msg("cold-replicator: invalid configuration")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chConn, err := clickhouse.Dial(ctx, cfg.ClickHouse.ToStoreConfig(), nil)
	if err != nil {
		return fmt.Errorf("cold-replicator: dialing clickhouse: %w", err)
	}
	defer chConn.Close()

	if err := chConn.EnsureReplicationState(ctx); err != nil {
		return fmt.Errorf("cold-replicator: ensuring replication state table: %w", err)
	}

	tables := schema.TableNames()
	copier := clickhouse.NewHotColdCopier(chConn, cfg.Replicator.ColdDatabase)
	replicateCfg := cfg.Replicator.ToReplicateConfig(tables)

	var deleter replicate.Deleter
	if cfg.Replicator.DeleteAfterCopy {
		deleter = copier
	}
	rep := replicate.New(chConn, copier, deleter, replicateCfg)

	registry := health.NewRegistry()
	registry.RegisterDependency("clickhouse", func() error {
		return chConn.CheckSchema(ctx)
	})

	reg := prometheus.NewRegistry()
	metrics := health.NewMetrics(reg)
	chConn.SetMetrics(metrics)
	rep.SetMetrics(metrics)
	reportLag(ctx, chConn, metrics, tables)

	tasks := []supervisor.Task{
		{
			Name: "replicator",
			Run: func(ctx context.Context) error {
				go heartbeatLoop(ctx, registry, "replicator")
				go lagLoop(ctx, chConn, metrics, tables)
				rep.Run(ctx)
				return nil
			},
		},
	}

	healthSrv := health.NewServer(health.DefaultConfig(healthPort), registry, metrics, reg)
	go func() {
		if err := healthSrv.Start(); err != nil {
			log.Error().Err(err).Msg("cold-replicator: health server stopped")
		}
	}()

	sup := supervisor.New(tasks, registry, supervisor.DefaultConfig())
	runErr := sup.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = healthSrv.Shutdown(shutdownCtx)

	return runErr
}

func heartbeatLoop(ctx context.Context, registry *health.Registry, name string) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	registry.Heartbeat(name)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			registry.Heartbeat(name)
		}
	}
}

// lagLoop periodically stamps each table's replication lag gauge from
// its last recorded window end, so /metrics reflects how far cold
// storage trails hot even between copy events.
func lagLoop(ctx context.Context, chConn *clickhouse.Client, metrics *health.Metrics, tables []string) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reportLag(ctx, chConn, metrics, tables)
		}
	}
}

func reportLag(ctx context.Context, chConn *clickhouse.Client, metrics *health.Metrics, tables []string) {
	for _, table := range tables {
		windowEnd, err := chConn.LastWindowEnd(ctx, table)
		if err != nil {
			log.Warn().Err(err).Str("table", table).Msg("cold-replicator: reading last window end failed")
			continue
		}
		metrics.RecordReplicationLag(table, windowEnd)
	}
}
