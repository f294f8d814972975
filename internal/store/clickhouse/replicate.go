package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/marketprism/marketprism/internal/replicate"
)

// HotColdCopier implements replicate.Copier and replicate.Deleter
// against a single ClickHouse cluster holding both the hot and cold
// databases, moving rows with INSERT ... SELECT rather than an
// external transport since both tiers share identical schemas.
type HotColdCopier struct {
	conn   driver.Conn
	hotDB  string
	coldDB string
}

func NewHotColdCopier(c *Client, coldDB string) *HotColdCopier {
	return &HotColdCopier{conn: c.conn, hotDB: c.cfg.Database, coldDB: coldDB}
}

func (h *HotColdCopier) CopyWindow(ctx context.Context, table string, window replicate.TimeRange) (int64, error) {
	insertSQL := fmt.Sprintf(
		"INSERT INTO %s.%s SELECT * FROM %s.%s WHERE timestamp >= ? AND timestamp < ?",
		h.coldDB, table, h.hotDB, table)
	if err := h.conn.Exec(ctx, insertSQL, window.From, window.To); err != nil {
		return 0, fmt.Errorf("clickhouse: copying window for %s: %w", table, err)
	}

	countSQL := fmt.Sprintf(
		"SELECT count() FROM %s.%s WHERE timestamp >= ? AND timestamp < ?", h.hotDB, table)
	row := h.conn.QueryRow(ctx, countSQL, window.From, window.To)
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("clickhouse: counting copied rows for %s: %w", table, err)
	}
	return n, nil
}

func (h *HotColdCopier) DeleteWindow(ctx context.Context, table string, window replicate.TimeRange) error {
	sql := fmt.Sprintf(
		"ALTER TABLE %s.%s DELETE WHERE timestamp >= ? AND timestamp < ?", h.hotDB, table)
	if err := h.conn.Exec(ctx, sql, window.From, window.To); err != nil {
		return fmt.Errorf("clickhouse: deleting copied window for %s: %w", table, err)
	}
	return nil
}
