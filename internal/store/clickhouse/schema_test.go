package clickhouse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableNames_HasEightTables(t *testing.T) {
	names := TableNames()
	assert.Len(t, names, 8)
	assert.Contains(t, names, "trades")
	assert.Contains(t, names, "orderbooks")
	assert.Contains(t, names, "lsr_top_positions")
	assert.Contains(t, names, "lsr_all_accounts")
}

func TestCreateTableSQL_IncludesCommonColumns(t *testing.T) {
	sql := CreateTableSQL("marketprism_hot", tables[0])
	assert.Contains(t, sql, "marketprism_hot.trades")
	assert.Contains(t, sql, "timestamp DateTime64(3, 'UTC')")
	assert.Contains(t, sql, "exchange LowCardinality(String)")
	assert.Contains(t, sql, "ENGINE = ReplacingMergeTree")
	assert.Contains(t, sql, "ORDER BY (exchange, symbol, trade_id, timestamp)")
	assert.Contains(t, sql, "PARTITION BY (exchange, toYYYYMM(timestamp))")
	assert.Contains(t, sql, "TTL timestamp + INTERVAL 3 DAY")
}

func TestAllCreateTableSQL_OmitsTTLForCold(t *testing.T) {
	hot := AllCreateTableSQL("marketprism_hot", true)
	cold := AllCreateTableSQL("marketprism_cold", false)
	assert.Len(t, hot, 8)
	assert.Len(t, cold, 8)
	for _, s := range hot {
		assert.Contains(t, s, "TTL timestamp")
	}
	for _, s := range cold {
		assert.NotContains(t, s, "TTL timestamp")
		assert.True(t, strings.Contains(s, "marketprism_cold"))
	}
}

func TestExpectedColumns_MatchesCommonPlusTypeSpecific(t *testing.T) {
	cols := expectedColumns(tables[0])
	assert.Contains(t, cols, "timestamp")
	assert.Contains(t, cols, "exchange")
	assert.Contains(t, cols, "trade_id")
	assert.Contains(t, cols, "is_maker")
}

func TestFirstWord_SplitsOnSpace(t *testing.T) {
	assert.Equal(t, "timestamp", firstWord("timestamp DateTime64(3, 'UTC')"))
	assert.Equal(t, "trade_id", firstWord("trade_id String"))
}
