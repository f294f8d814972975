package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const collectorYAML = `
nats:
  servers: ["nats://localhost:4222"]
  reconnect_max_attempts: 10
  ack_wait_seconds: 30
collector:
  exchanges:
    binance:
      enabled: true
      market_type: spot
      symbols: ["BTC-USDT", "ETH-USDT"]
      data_types: ["trade", "orderbook"]
      depth_limit: 400
      snapshot_interval_seconds: 60
      rate_limits:
        weight_per_minute: 1200
        requests_per_minute: 1200
        orders_per_second: 10
publisher:
  max_batch_size: 500
  flush_interval_ms: 100
  fallback_queue_size: 10000
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCollectorConfig_ParsesValidFile(t *testing.T) {
	path := writeTemp(t, "collector.yaml", collectorYAML)
	cfg, err := LoadCollectorConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"nats://localhost:4222"}, cfg.Nats.Servers)
	binance := cfg.Collector.Exchanges["binance"]
	assert.True(t, binance.Enabled)
	assert.Equal(t, []string{"BTC-USDT", "ETH-USDT"}, binance.Symbols)
	assert.Equal(t, 400, binance.DepthLimit)
	assert.Equal(t, 1200, binance.RateLimits.WeightPerMinute)
	assert.Equal(t, 500, cfg.Publisher.MaxBatchSize)
}

func TestLoadCollectorConfig_MissingFileReturnsError(t *testing.T) {
	_, err := LoadCollectorConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadCollectorConfig_InvalidValueFailsValidation(t *testing.T) {
	path := writeTemp(t, "collector.yaml", `
nats:
  servers: []
  reconnect_max_attempts: 10
  ack_wait_seconds: 30
collector:
  exchanges: {}
publisher:
  max_batch_size: 500
  flush_interval_ms: 100
  fallback_queue_size: 10000
`)
	_, err := LoadCollectorConfig(path)
	assert.ErrorContains(t, err, "nats.servers")
}

func TestLoadCollectorConfig_EnvOverrideWinsOverFile(t *testing.T) {
	path := writeTemp(t, "collector.yaml", collectorYAML)
	t.Setenv("MARKETPRISM_PUBLISHER_MAX_BATCH_SIZE", "999")

	cfg, err := LoadCollectorConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 999, cfg.Publisher.MaxBatchSize)
}

func TestLoadHotConsumerConfig_ParsesValidFile(t *testing.T) {
	path := writeTemp(t, "hot-consumer.yaml", `
nats:
  servers: ["nats://localhost:4222"]
  reconnect_max_attempts: 10
  ack_wait_seconds: 30
clickhouse:
  host: localhost
  port_native: 9000
  port_http: 8123
  database: marketprism_hot
  pool_max: 16
  insert_timeout_seconds: 30
consumer:
  batch_sizes:
    trade: 1000
    orderbook: 500
  flush_intervals:
    trade: 1000
    orderbook: 500
  spool_dir: /var/lib/marketprism/spool
`)
	cfg, err := LoadHotConsumerConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "marketprism_hot", cfg.ClickHouse.Database)
	assert.Equal(t, "/var/lib/marketprism/spool", cfg.Consumer.SpoolDir)
	assert.Equal(t, 1000, cfg.Consumer.BatchSizes["trade"])
}

func TestLoadColdReplicatorConfig_ParsesValidFile(t *testing.T) {
	path := writeTemp(t, "cold-replicator.yaml", `
clickhouse:
  host: localhost
  port_native: 9000
  port_http: 8123
  database: marketprism_hot
  pool_max: 16
  insert_timeout_seconds: 30
replicator:
  cold_database: marketprism_cold
  window_seconds: 600
  safety_lag_seconds: 900
  delete_after_copy: true
  retention_days_cold: 365
`)
	cfg, err := LoadColdReplicatorConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 600, cfg.Replicator.WindowSeconds)
	assert.Equal(t, "marketprism_cold", cfg.Replicator.ColdDatabase)
	assert.True(t, cfg.Replicator.DeleteAfterCopy)

	replCfg := cfg.Replicator.ToReplicateConfig([]string{"trades"})
	assert.Equal(t, []string{"trades"}, replCfg.Tables)
	assert.True(t, replCfg.DeleteAfterCopy)

	storeCfg := cfg.ClickHouse.ToStoreConfig()
	assert.Equal(t, "localhost:9000", storeCfg.NativeAddr)
}
