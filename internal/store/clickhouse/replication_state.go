package clickhouse

import (
	"context"
	"fmt"
	"time"
)

const replicationStateDDL = `
CREATE TABLE IF NOT EXISTS %s.replication_state (
	table_name String,
	last_window_end DateTime64(3, 'UTC'),
	updated_at DateTime64(3, 'UTC')
) ENGINE = ReplacingMergeTree(updated_at)
ORDER BY table_name`

// EnsureReplicationState creates the replication_state tracking table
// on the hot database if it doesn't already exist.
func (c *Client) EnsureReplicationState(ctx context.Context) error {
	return c.conn.Exec(ctx, fmt.Sprintf(replicationStateDDL, c.cfg.Database))
}

// LastWindowEnd returns the end of the last successfully copied window
// for table, or the zero time if replication has never run for it.
func (c *Client) LastWindowEnd(ctx context.Context, table string) (time.Time, error) {
	rows, err := c.conn.Query(ctx,
		fmt.Sprintf("SELECT last_window_end FROM %s.replication_state WHERE table_name = ? ORDER BY updated_at DESC LIMIT 1", c.cfg.Database),
		table)
	if err != nil {
		return time.Time{}, fmt.Errorf("clickhouse: querying replication_state for %s: %w", table, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return time.Time{}, nil
	}
	var last time.Time
	if err := rows.Scan(&last); err != nil {
		return time.Time{}, fmt.Errorf("clickhouse: scanning replication_state for %s: %w", table, err)
	}
	return last, nil
}

// SetLastWindowEnd records windowEnd as the new replication watermark
// for table.
func (c *Client) SetLastWindowEnd(ctx context.Context, table string, windowEnd time.Time) error {
	return c.conn.Exec(ctx,
		fmt.Sprintf("INSERT INTO %s.replication_state (table_name, last_window_end, updated_at) VALUES (?, ?, ?)", c.cfg.Database),
		table, windowEnd, time.Now())
}
