// Package clickhouse is the hot-tier storage sink: it owns the
// ClickHouse connection pool, the eight-table schema, and the batch
// insert path consume.Manager calls on every flush.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/rs/zerolog/log"

	"github.com/marketprism/marketprism/internal/health"
	"github.com/marketprism/marketprism/internal/schema"
	"github.com/marketprism/marketprism/internal/store/spool"
)

// Client wraps a ClickHouse driver.Conn and implements consume.Sink.
type Client struct {
	conn    driver.Conn
	cfg     Config
	spool   *spool.Spool
	metrics *health.Metrics
}

// SetMetrics attaches the Prometheus collectors InsertBatch and
// InsertBatchDirect report into. Optional; a nil metrics leaves both a
// no-op, which is what the default zero-value Client does.
func (c *Client) SetMetrics(m *health.Metrics) {
	c.metrics = m
}

// Dial opens a connection to ClickHouse, preferring the native
// protocol and falling back to HTTP if the native dial fails.
func Dial(ctx context.Context, cfg Config, sp *spool.Spool) (*Client, error) {
	conn, err := dialProtocol(ctx, cfg, clickhouse.Native, cfg.NativeAddr)
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.NativeAddr).Msg("clickhouse: native dial failed, falling back to HTTP")
		conn, err = dialProtocol(ctx, cfg, clickhouse.HTTP, cfg.HTTPAddr)
		if err != nil {
			return nil, fmt.Errorf("clickhouse: dial failed on both native and HTTP: %w", err)
		}
	}
	return &Client{conn: conn, cfg: cfg, spool: sp}, nil
}

func dialProtocol(ctx context.Context, cfg Config, proto clickhouse.Protocol, addr string) (driver.Conn, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Protocol:        proto,
		DialTimeout:     cfg.AcquireTimeout,
		MaxOpenConns:    cfg.PoolMax,
		MaxIdleConns:    cfg.PoolMin,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return nil, err
	}
	return conn, nil
}

// EnsureSchema creates every table if it doesn't already exist.
func (c *Client) EnsureSchema(ctx context.Context) error {
	for _, stmt := range AllCreateTableSQL(c.cfg.Database, true) {
		if err := c.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("clickhouse: creating table: %w", err)
		}
	}
	return nil
}

// CheckSchema compares the live system.columns against the expected
// column set for every table. A mismatch is the caller's cue to exit
// with code 3 (spec.md §8).
func (c *Client) CheckSchema(ctx context.Context) error {
	for _, t := range tables {
		rows, err := c.conn.Query(ctx,
			"SELECT name FROM system.columns WHERE database = ? AND table = ?",
			c.cfg.Database, t.name)
		if err != nil {
			return fmt.Errorf("clickhouse: querying system.columns for %s: %w", t.name, err)
		}
		present := map[string]bool{}
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return fmt.Errorf("clickhouse: scanning system.columns: %w", err)
			}
			present[name] = true
		}
		rows.Close()

		for _, want := range expectedColumns(t) {
			if !present[want] {
				return fmt.Errorf("clickhouse: schema mismatch: table %s missing column %s", t.name, want)
			}
		}
	}
	return nil
}

// InsertBatch implements consume.Sink. It retries the insert with
// exponential backoff; on exhaustion it hands the batch to the spool
// file and still returns nil, since a spooled batch is durable as far
// as JetStream's ack is concerned.
func (c *Client) InsertBatch(ctx context.Context, dataType schema.DataType, payloads [][]byte) error {
	if len(payloads) == 0 {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.cfg.RetryBase * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				lastErr = ctx.Err()
				continue
			}
		}

		insertCtx, cancel := context.WithTimeout(ctx, c.cfg.InsertTimeout)
		err := c.insertOnce(insertCtx, dataType, payloads)
		cancel()
		if err == nil {
			c.recordInsert(dataType)
			return nil
		}
		lastErr = err
		log.Warn().Err(err).Str("data_type", string(dataType)).Int("attempt", attempt+1).
			Msg("clickhouse: insert attempt failed")
	}

	c.recordInsertError(dataType)
	log.Error().Err(lastErr).Str("data_type", string(dataType)).Int("batch_size", len(payloads)).
		Msg("clickhouse: insert exhausted retries, spooling batch")
	if err := c.spool.Write(dataType, payloads); err != nil {
		return fmt.Errorf("clickhouse: insert failed (%v) and spool write failed: %w", lastErr, err)
	}
	return nil
}

func (c *Client) recordInsert(dataType schema.DataType) {
	if c.metrics != nil {
		c.metrics.BatchesInserted.WithLabelValues(string(dataType)).Inc()
	}
}

func (c *Client) recordInsertError(dataType schema.DataType) {
	if c.metrics != nil {
		c.metrics.InsertErrors.WithLabelValues(string(dataType)).Inc()
	}
}

// InsertBatchDirect inserts payloads once, with no retry and no spool
// fallback. It implements spool.Inserter, used by the background
// drainer to replay spooled batches without re-spooling them on a
// transient failure. Drain simply leaves the record in place to retry
// on the next pass.
func (c *Client) InsertBatchDirect(dataType schema.DataType, payloads [][]byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.InsertTimeout)
	defer cancel()
	err := c.insertOnce(ctx, dataType, payloads)
	if err != nil {
		c.recordInsertError(dataType)
		return err
	}
	c.recordInsert(dataType)
	return nil
}

func (c *Client) insertOnce(ctx context.Context, dataType schema.DataType, payloads [][]byte) error {
	table := dataType.TableName()
	batch, err := c.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s.%s", c.cfg.Database, table))
	if err != nil {
		return fmt.Errorf("preparing batch for %s: %w", table, err)
	}
	if err := appendRows(batch, dataType, payloads); err != nil {
		return err
	}
	return batch.Send()
}

func (c *Client) Close() error {
	return c.conn.Close()
}
