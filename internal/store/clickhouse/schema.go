package clickhouse

import "fmt"

// tableDef describes one of the eight canonical tables: its
// type-specific columns (the five common ones are implicit on every
// table), engine, and ordering key.
type tableDef struct {
	name    string
	columns []string // type-specific columns, name and ClickHouse type
	engine  string
	orderBy []string
}

// commonColumns are present, in this order, on every table.
var commonColumns = []string{
	"timestamp DateTime64(3, 'UTC')",
	"exchange LowCardinality(String)",
	"market_type LowCardinality(String)",
	"symbol String",
	"data_source LowCardinality(String)",
}

var tables = []tableDef{
	{
		name: "trades",
		columns: []string{
			"trade_id String", "price String", "quantity String",
			"side LowCardinality(String)", "is_maker UInt8",
			"first_trade_id String", "last_trade_id String",
		},
		engine:  "ReplacingMergeTree",
		orderBy: []string{"exchange", "symbol", "trade_id", "timestamp"},
	},
	{
		name: "orderbooks",
		columns: []string{
			"last_update_id Int64", "best_bid_price String", "best_ask_price String",
			"bids Array(Array(String))", "asks Array(Array(String))",
		},
		engine:  "ReplacingMergeTree",
		orderBy: []string{"exchange", "symbol", "last_update_id"},
	},
	{
		name: "funding_rates",
		columns: []string{
			"funding_rate String", "funding_time DateTime64(3, 'UTC')",
			"next_funding_time DateTime64(3, 'UTC')",
		},
		engine:  "MergeTree",
		orderBy: []string{"exchange", "symbol", "timestamp"},
	},
	{
		name:    "open_interests",
		columns: []string{"open_interest String", "open_interest_value String"},
		engine:  "MergeTree",
		orderBy: []string{"exchange", "symbol", "timestamp"},
	},
	{
		name: "liquidations",
		columns: []string{
			"side LowCardinality(String)", "price String", "quantity String",
		},
		engine:  "MergeTree",
		orderBy: []string{"exchange", "symbol", "timestamp"},
	},
	{
		name: "lsr_top_positions",
		columns: []string{
			"long_position_ratio String", "short_position_ratio String", "period LowCardinality(String)",
		},
		engine:  "MergeTree",
		orderBy: []string{"exchange", "symbol", "timestamp"},
	},
	{
		name: "lsr_all_accounts",
		columns: []string{
			"long_account_ratio String", "short_account_ratio String", "period LowCardinality(String)",
		},
		engine:  "MergeTree",
		orderBy: []string{"exchange", "symbol", "timestamp"},
	},
	{
		name:    "volatility_indices",
		columns: []string{"index_value String", "underlying_asset String"},
		engine:  "MergeTree",
		orderBy: []string{"exchange", "symbol", "timestamp"},
	},
}

// CreateTableSQL renders the CREATE TABLE IF NOT EXISTS statement for
// database (either marketprism_hot or marketprism_cold; hot and cold
// share an identical schema per spec).
func CreateTableSQL(database string, t tableDef) string {
	cols := append(append([]string{}, commonColumns...), t.columns...)
	colList := ""
	for i, c := range cols {
		if i > 0 {
			colList += ", "
		}
		colList += c
	}
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s.%s (%s) ENGINE = %s "+
			"PARTITION BY (exchange, toYYYYMM(timestamp)) ORDER BY (%s) "+
			"TTL timestamp + INTERVAL 3 DAY",
		database, t.name, colList, t.engine, joinOrderBy(t.orderBy),
	)
}

func joinOrderBy(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

// AllCreateTableSQL renders every table's CREATE TABLE statement for
// database. Cold tables get no TTL; nothing in this package expires
// cold rows.
func AllCreateTableSQL(database string, includeTTL bool) []string {
	stmts := make([]string, 0, len(tables))
	for _, t := range tables {
		sql := CreateTableSQL(database, t)
		if !includeTTL {
			sql = sql[:len(sql)-len(" TTL timestamp + INTERVAL 3 DAY")]
		}
		stmts = append(stmts, sql)
	}
	return stmts
}

// expectedColumns returns, for table name, the full ordered set of
// column names CheckSchema expects to find in system.columns.
func expectedColumns(t tableDef) []string {
	names := make([]string, 0, len(commonColumns)+len(t.columns))
	for _, c := range commonColumns {
		names = append(names, firstWord(c))
	}
	for _, c := range t.columns {
		names = append(names, firstWord(c))
	}
	return names
}

func firstWord(s string) string {
	for i, r := range s {
		if r == ' ' {
			return s[:i]
		}
	}
	return s
}

// TableNames lists the eight table names in the fixed order tables is
// defined in.
func TableNames() []string {
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.name
	}
	return names
}
