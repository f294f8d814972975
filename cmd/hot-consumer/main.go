// Command hot-consumer subscribes to every canonical JetStream subject
// and performs batched, retry-safe inserts into the hot ClickHouse
// tier, spooling to disk when ClickHouse is unavailable.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/marketprism/marketprism/internal/config"
	"github.com/marketprism/marketprism/internal/consume"
	"github.com/marketprism/marketprism/internal/health"
	"github.com/marketprism/marketprism/internal/schema"
	"github.com/marketprism/marketprism/internal/store/clickhouse"
	"github.com/marketprism/marketprism/internal/store/spool"
	"github.com/marketprism/marketprism/internal/supervisor"
)

const healthPort = 8082

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	var configPath string

	rootCmd := &cobra.Command{
		Use:   "hot-consumer",
		Short: "Batch-insert canonical records from JetStream into ClickHouse",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/marketprism/hot-consumer.yaml", "path to hot-consumer config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the hot consumer until signalled",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHotConsumer(configPath)
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "config-check",
		Short: "Load and validate the config file, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.LoadHotConsumerConfig(configPath); err != nil {
				log.Error().Err(err).Msg("hot-consumer: invalid configuration")
				os.Exit(2)
			}
			fmt.Println("config ok")
			return nil
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "healthcheck",
		Short: "Probe the running hot-consumer's /health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return health.Probe(fmt.Sprintf("http://127.0.0.1:%d/health", healthPort))
		},
	})

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("hot-consumer: fatal error")
	}
}

func runHotConsumer(configPath string) error {
	cfg, err := config.LoadHotConsumerConfig(configPath)
	if err != nil {
		log.Error().Err(err).Msg("hot-consumer: invalid configuration")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	metrics := health.NewMetrics(reg)

	sp, err := spool.New(cfg.Consumer.SpoolDir)
	if err != nil {
		return fmt.Errorf("hot-consumer: opening spool: %w", err)
	}
	sp.SetMetrics(metrics)

	chConn, err := clickhouse.Dial(ctx, cfg.ClickHouse.ToStoreConfig(), sp)
	if err != nil {
		return fmt.Errorf("hot-consumer: dialing clickhouse: %w", err)
	}
	chConn.SetMetrics(metrics)
	defer chConn.Close()

	if err := chConn.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("hot-consumer: ensuring clickhouse schema: %w", err)
	}

	nc, err := nats.Connect(joinServers(cfg.Nats.Servers), nats.MaxReconnects(cfg.Nats.ReconnectMaxAttempts))
	if err != nil {
		return fmt.Errorf("hot-consumer: connecting to nats: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("hot-consumer: building jetstream context: %w", err)
	}

	policies := policiesFromConfig(cfg.Consumer)
	manager := consume.NewManager(js, chConn, policies)

	registry := health.NewRegistry()
	registry.RegisterDependency("nats", func() error {
		if !nc.IsConnected() {
			return fmt.Errorf("not connected")
		}
		return nil
	})
	registry.RegisterDependency("clickhouse", func() error {
		return chConn.CheckSchema(ctx)
	})

	tasks := []supervisor.Task{
		{
			Name: "consumer",
			Run: func(ctx context.Context) error {
				if err := manager.Start(ctx); err != nil {
					return err
				}
				go heartbeatLoop(ctx, registry, "consumer")
				manager.Wait()
				return nil
			},
		},
		{
			Name: "spool-drain",
			Run: func(ctx context.Context) error {
				go heartbeatLoop(ctx, registry, "spool-drain")
				sp.RunDrainLoop(ctx, chConn)
				return nil
			},
		},
	}

	healthSrv := health.NewServer(health.DefaultConfig(healthPort), registry, metrics, reg)
	go func() {
		if err := healthSrv.Start(); err != nil {
			log.Error().Err(err).Msg("hot-consumer: health server stopped")
		}
	}()

	sup := supervisor.New(tasks, registry, supervisor.DefaultConfig())
	runErr := sup.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = healthSrv.Shutdown(shutdownCtx)

	return runErr
}

func joinServers(servers []string) string {
	out := ""
	for i, s := range servers {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

func policiesFromConfig(cc config.ConsumerConfig) map[schema.DataType]consume.BatchPolicy {
	policies := consume.DefaultBatchPolicies()
	for _, dt := range schema.AllDataTypes {
		p := policies[dt]
		if _, ok := cc.BatchSizes[string(dt)]; ok {
			p.Size = cc.BatchSize(dt)
		}
		if _, ok := cc.FlushIntervals[string(dt)]; ok {
			p.FlushInterval = cc.FlushInterval(dt)
		}
		policies[dt] = p
	}
	return policies
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
