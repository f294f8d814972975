package schema

import (
	"encoding/json"
	"time"

	"github.com/marketprism/marketprism/internal/decimalx"
)

// Side is the taker side of a trade or liquidation.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Record is implemented by every canonical per-type payload. It exposes
// enough to route and store the record without a type switch at every call
// site.
type Record interface {
	CommonFields() Common
	DataType() DataType
}

// Trade is the canonical trade record (spec.md §3).
type Trade struct {
	Common
	TradeID   string          `json:"trade_id"`
	Price     decimalx.Number `json:"price"`
	Quantity  decimalx.Number `json:"quantity"`
	Side      Side            `json:"side"`
	IsMaker   bool            `json:"is_maker"`
	FirstID   string          `json:"first_trade_id,omitempty"`
	LastID    string          `json:"last_trade_id,omitempty"`
}

func (t Trade) CommonFields() Common { return t.Common }
func (t Trade) DataType() DataType   { return DataTypeTrade }

func (t Trade) MarshalJSON() ([]byte, error) {
	type alias Trade
	return json.Marshal(struct {
		alias
		Timestamp string `json:"timestamp"`
	}{alias: alias(t), Timestamp: t.TimestampText()})
}

// PriceLevel is a single (price, quantity) entry of a depth snapshot.
type PriceLevel struct {
	Price    decimalx.Number
	Quantity decimalx.Number
}

// MarshalJSON renders a PriceLevel as the two-element [price, qty] array
// exchanges and ClickHouse both expect, not as a JSON object.
func (l PriceLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{l.Price.String(), l.Quantity.String()})
}

// Orderbook is the canonical top-N depth snapshot the collector
// publishes after each diff applied while SYNCED; publication is not
// throttled to an interval.
type Orderbook struct {
	Common
	LastUpdateID   int64           `json:"last_update_id"`
	BestBidPrice   decimalx.Number `json:"best_bid_price"`
	BestAskPrice   decimalx.Number `json:"best_ask_price"`
	Bids           []PriceLevel    `json:"bids"`
	Asks           []PriceLevel    `json:"asks"`
}

func (o Orderbook) CommonFields() Common { return o.Common }
func (o Orderbook) DataType() DataType   { return DataTypeOrderbook }

func (o Orderbook) MarshalJSON() ([]byte, error) {
	type alias Orderbook
	return json.Marshal(struct {
		alias
		Timestamp string `json:"timestamp"`
	}{alias: alias(o), Timestamp: o.TimestampText()})
}

// FundingRate is the canonical perpetual funding-rate record.
type FundingRate struct {
	Common
	FundingRate     decimalx.Number `json:"funding_rate"`
	FundingTime     time.Time       `json:"-"`
	NextFundingTime time.Time       `json:"-"`
}

func (f FundingRate) CommonFields() Common { return f.Common }
func (f FundingRate) DataType() DataType   { return DataTypeFundingRate }

func (f FundingRate) MarshalJSON() ([]byte, error) {
	type alias FundingRate
	return json.Marshal(struct {
		alias
		Timestamp       string `json:"timestamp"`
		FundingTime     string `json:"funding_time"`
		NextFundingTime string `json:"next_funding_time"`
	}{
		alias:           alias(f),
		Timestamp:       f.TimestampText(),
		FundingTime:     f.FundingTime.UTC().Format(clickhouseTimeLayout),
		NextFundingTime: f.NextFundingTime.UTC().Format(clickhouseTimeLayout),
	})
}

// OpenInterest is the canonical open-interest record.
type OpenInterest struct {
	Common
	OpenInterest      decimalx.Number `json:"open_interest"`
	OpenInterestValue decimalx.Number `json:"open_interest_value"`
}

func (o OpenInterest) CommonFields() Common { return o.Common }
func (o OpenInterest) DataType() DataType   { return DataTypeOpenInterest }

func (o OpenInterest) MarshalJSON() ([]byte, error) {
	type alias OpenInterest
	return json.Marshal(struct {
		alias
		Timestamp string `json:"timestamp"`
	}{alias: alias(o), Timestamp: o.TimestampText()})
}

// Liquidation is the canonical forced-liquidation record.
type Liquidation struct {
	Common
	Side     Side            `json:"side"`
	Price    decimalx.Number `json:"price"`
	Quantity decimalx.Number `json:"quantity"`
}

func (l Liquidation) CommonFields() Common { return l.Common }
func (l Liquidation) DataType() DataType   { return DataTypeLiquidation }

func (l Liquidation) MarshalJSON() ([]byte, error) {
	type alias Liquidation
	return json.Marshal(struct {
		alias
		Timestamp string `json:"timestamp"`
	}{alias: alias(l), Timestamp: l.TimestampText()})
}

// LSRTopPosition is the canonical top-trader long/short position ratio.
type LSRTopPosition struct {
	Common
	LongPositionRatio  decimalx.Number `json:"long_position_ratio"`
	ShortPositionRatio decimalx.Number `json:"short_position_ratio"`
	Period             string          `json:"period"`
}

func (l LSRTopPosition) CommonFields() Common { return l.Common }
func (l LSRTopPosition) DataType() DataType   { return DataTypeLSRTopPosition }

func (l LSRTopPosition) MarshalJSON() ([]byte, error) {
	type alias LSRTopPosition
	return json.Marshal(struct {
		alias
		Timestamp string `json:"timestamp"`
	}{alias: alias(l), Timestamp: l.TimestampText()})
}

// LSRAllAccount is the canonical all-account long/short account ratio.
type LSRAllAccount struct {
	Common
	LongAccountRatio  decimalx.Number `json:"long_account_ratio"`
	ShortAccountRatio decimalx.Number `json:"short_account_ratio"`
	Period            string          `json:"period"`
}

func (l LSRAllAccount) CommonFields() Common { return l.Common }
func (l LSRAllAccount) DataType() DataType   { return DataTypeLSRAllAccount }

func (l LSRAllAccount) MarshalJSON() ([]byte, error) {
	type alias LSRAllAccount
	return json.Marshal(struct {
		alias
		Timestamp string `json:"timestamp"`
	}{alias: alias(l), Timestamp: l.TimestampText()})
}

// VolatilityIndex is the canonical derivatives volatility-index record
// (Deribit DVOL and similar).
type VolatilityIndex struct {
	Common
	IndexValue      decimalx.Number `json:"index_value"`
	UnderlyingAsset string          `json:"underlying_asset"`
}

func (v VolatilityIndex) CommonFields() Common { return v.Common }
func (v VolatilityIndex) DataType() DataType   { return DataTypeVolatilityIndex }

func (v VolatilityIndex) MarshalJSON() ([]byte, error) {
	type alias VolatilityIndex
	return json.Marshal(struct {
		alias
		Timestamp string `json:"timestamp"`
	}{alias: alias(v), Timestamp: v.TimestampText()})
}
