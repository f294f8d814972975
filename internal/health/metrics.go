package health

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector MarketPrism components
// report into, covering throughput, backlog, insert errors,
// replication lag, and order-book sync state.
type Metrics struct {
	MessagesPublished *prometheus.CounterVec
	PublishQueueDepth prometheus.Gauge
	PublishDropped    prometheus.Counter

	BatchesInserted *prometheus.CounterVec
	InsertErrors    *prometheus.CounterVec
	SpoolDepth      *prometheus.GaugeVec

	ReplicationLagSeconds *prometheus.GaugeVec
	ReplicationRowsCopied *prometheus.CounterVec

	OrderbookSyncState *prometheus.GaugeVec
	OrderbookGaps      *prometheus.CounterVec
}

// NewMetrics builds and registers every collector against reg. Pass
// prometheus.NewRegistry() for test isolation, or
// prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketprism_messages_published_total",
				Help: "Total number of canonical records published to JetStream, by data type and outcome.",
			},
			[]string{"data_type", "outcome"},
		),
		PublishQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "marketprism_publish_fallback_queue_depth",
				Help: "Current number of records held in the in-memory publish fallback queue.",
			},
		),
		PublishDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "marketprism_publish_dropped_total",
				Help: "Total number of records dropped because the fallback queue overflowed.",
			},
		),
		BatchesInserted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketprism_clickhouse_batches_inserted_total",
				Help: "Total number of batches successfully inserted into ClickHouse, by data type.",
			},
			[]string{"data_type"},
		),
		InsertErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketprism_clickhouse_insert_errors_total",
				Help: "Total number of ClickHouse insert failures, by data type.",
			},
			[]string{"data_type"},
		),
		SpoolDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketprism_spool_depth",
				Help: "Number of undrained batches spooled to disk, by data type.",
			},
			[]string{"data_type"},
		),
		ReplicationLagSeconds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketprism_replication_lag_seconds",
				Help: "Seconds between now and the last replicated window's end, by table.",
			},
			[]string{"table"},
		),
		ReplicationRowsCopied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketprism_replication_rows_copied_total",
				Help: "Total number of rows copied from hot to cold storage, by table.",
			},
			[]string{"table"},
		),
		OrderbookSyncState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketprism_orderbook_sync_state",
				Help: "Current order-book sync state per symbol (0=unsynced, 1=snapshot_pending, 2=buffering, 3=synced).",
			},
			[]string{"exchange", "symbol"},
		),
		OrderbookGaps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketprism_orderbook_gaps_total",
				Help: "Total number of sequence gaps detected, by exchange and symbol.",
			},
			[]string{"exchange", "symbol"},
		),
	}

	reg.MustRegister(
		m.MessagesPublished, m.PublishQueueDepth, m.PublishDropped,
		m.BatchesInserted, m.InsertErrors, m.SpoolDepth,
		m.ReplicationLagSeconds, m.ReplicationRowsCopied,
		m.OrderbookSyncState, m.OrderbookGaps,
	)
	return m
}

// RecordReplicationLag stamps the gap between windowEnd and now for
// table.
func (m *Metrics) RecordReplicationLag(table string, windowEnd time.Time) {
	m.ReplicationLagSeconds.WithLabelValues(table).Set(time.Since(windowEnd).Seconds())
}

// Handler returns the Prometheus text-exposition HTTP handler.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
