// Package schema defines the canonical record types, subject naming, and
// enumerations shared by every MarketPrism component: connectors produce
// raw events, the normalizer turns them into these records, the publisher
// routes them by subject, and the consumer writes them to ClickHouse.
package schema

import (
	"fmt"
	"regexp"
	"time"
)

// Exchange identifies the upstream venue a record originated from.
type Exchange string

const (
	Binance Exchange = "binance"
	OKX     Exchange = "okx"
	Deribit Exchange = "deribit"
)

// MarketType is the trading-product category of a symbol.
type MarketType string

const (
	Spot      MarketType = "spot"
	Perpetual MarketType = "perpetual"
	Options   MarketType = "options"
)

// DataType is one of the eight fixed categories of market data MarketPrism
// handles end to end.
type DataType string

const (
	DataTypeOrderbook       DataType = "orderbook"
	DataTypeTrade           DataType = "trade"
	DataTypeFundingRate     DataType = "funding_rate"
	DataTypeOpenInterest    DataType = "open_interest"
	DataTypeLiquidation     DataType = "liquidation"
	DataTypeLSRTopPosition  DataType = "lsr_top_position"
	DataTypeLSRAllAccount   DataType = "lsr_all_account"
	DataTypeVolatilityIndex DataType = "volatility_index"
)

// DataSource is the fixed provenance tag stamped onto every canonical
// record.
const DataSource = "marketprism"

// AllDataTypes lists the eight data types in a stable order, used by the
// consumer to construct one durable JetStream consumer per type and by the
// spool drainer to visit every type's spool file.
var AllDataTypes = []DataType{
	DataTypeTrade,
	DataTypeOrderbook,
	DataTypeFundingRate,
	DataTypeOpenInterest,
	DataTypeLiquidation,
	DataTypeLSRTopPosition,
	DataTypeLSRAllAccount,
	DataTypeVolatilityIndex,
}

// TableName returns the ClickHouse table this data type is stored in.
func (d DataType) TableName() string {
	switch d {
	case DataTypeTrade:
		return "trades"
	case DataTypeOrderbook:
		return "orderbooks"
	case DataTypeFundingRate:
		return "funding_rates"
	case DataTypeOpenInterest:
		return "open_interests"
	case DataTypeLiquidation:
		return "liquidations"
	case DataTypeLSRTopPosition:
		return "lsr_top_positions"
	case DataTypeLSRAllAccount:
		return "lsr_all_accounts"
	case DataTypeVolatilityIndex:
		return "volatility_indices"
	default:
		return ""
	}
}

// subjectPattern is the strict regex every published subject must match;
// it also defines the conformance property checked in tests.
var subjectPattern = regexp.MustCompile(
	`^(orderbook|trade|funding_rate|open_interest|liquidation|lsr_top_position|lsr_all_account|volatility_index)\.` +
		`(binance|okx|deribit)\.(spot|perpetual|options)\.[A-Z0-9]+(-[A-Z0-9]+)?$`)

// Subject builds the canonical NATS subject for a record. It is the single
// source of truth for subject construction; the publisher rejects anything
// that does not come out of this function matching subjectPattern.
func Subject(dataType DataType, exchange Exchange, marketType MarketType, symbol string) (string, error) {
	subj := fmt.Sprintf("%s.%s.%s.%s", dataType, exchange, marketType, symbol)
	if !subjectPattern.MatchString(subj) {
		return "", fmt.Errorf("schema: subject %q does not conform to canonical pattern", subj)
	}
	return subj, nil
}

// ValidSubject reports whether a subject string conforms to the canonical
// pattern, without constructing it from parts.
func ValidSubject(subject string) bool {
	return subjectPattern.MatchString(subject)
}

// Common holds the fields present in every canonical record regardless of
// data type.
type Common struct {
	Timestamp  time.Time  `json:"-"`
	Exchange   Exchange   `json:"exchange"`
	MarketType MarketType `json:"market_type"`
	Symbol     string     `json:"symbol"`
	DataSource string     `json:"data_source"`
}

// clickhouseTimeLayout is ClickHouse's DateTime64 textual form, always
// with three fractional-second digits.
const clickhouseTimeLayout = "2006-01-02 15:04:05.000"

// TimestampText renders Timestamp in ClickHouse DateTime64(3, 'UTC')
// textual form, per spec.md §3.
func (c Common) TimestampText() string {
	return c.Timestamp.UTC().Format(clickhouseTimeLayout)
}

// MarshalJSON is implemented by each concrete record type (Trade,
// Orderbook, ...) rather than Common directly, since JSON output embeds
// Common's fields flat alongside type-specific ones.
