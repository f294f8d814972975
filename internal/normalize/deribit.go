package normalize

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/marketprism/marketprism/internal/connector"
	"github.com/marketprism/marketprism/internal/decimalx"
	"github.com/marketprism/marketprism/internal/schema"
)

func normalizeDeribit(ev connector.RawEvent) (schema.Record, error) {
	switch ev.DataType {
	case schema.DataTypeTrade:
		return normalizeDeribitTrade(ev)
	case schema.DataTypeFundingRate:
		return normalizeDeribitFunding(ev)
	case schema.DataTypeOpenInterest:
		return normalizeDeribitOpenInterest(ev)
	case schema.DataTypeVolatilityIndex:
		return normalizeDeribitVolatilityIndex(ev)
	default:
		return nil, fmt.Errorf("normalize: deribit does not support data type %q here", ev.DataType)
	}
}

// deribitTrade describes one element of the "trades.<instrument>.raw"
// channel's data array. Deribit sends price/amount as JSON numbers, not
// strings, so they're decoded as json.Number and parsed through
// decimalx from their original text rather than via float64, the same
// way binance.go and okx.go avoid floating point for price/quantity.
type deribitTrade struct {
	TradeID   string      `json:"trade_id"`
	Price     json.Number `json:"price"`
	Amount    json.Number `json:"amount"`
	Direction string      `json:"direction"`
	Timestamp int64       `json:"timestamp"`
}

func normalizeDeribitTrade(ev connector.RawEvent) (schema.Record, error) {
	var t deribitTrade
	if err := json.Unmarshal(ev.Payload, &t); err != nil {
		return nil, fmt.Errorf("normalize: deribit trade decode: %w", err)
	}
	side, err := parseSide(t.Direction)
	if err != nil {
		return nil, err
	}
	price, err := parseDecimalField("price", t.Price.String())
	if err != nil {
		return nil, err
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("normalize: deribit trade price must be positive")
	}
	amount, err := parseDecimalField("amount", t.Amount.String())
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("normalize: deribit trade amount must be positive")
	}
	if t.Timestamp == 0 {
		return nil, fmt.Errorf("normalize: deribit trade missing timestamp")
	}
	return schema.Trade{
		Common:   common(ev, time.UnixMilli(t.Timestamp)),
		TradeID:  t.TradeID,
		Price:    price,
		Quantity: amount,
		Side:     side,
	}, nil
}

// deribitTicker is the "ticker.<instrument>.100ms" push, carrying both
// funding and open-interest fields for perpetuals.
type deribitTicker struct {
	Funding8h    json.Number `json:"funding_8h"`
	OpenInterest json.Number `json:"open_interest"`
	Timestamp    int64       `json:"timestamp"`
}

func normalizeDeribitFunding(ev connector.RawEvent) (schema.Record, error) {
	var t deribitTicker
	if err := json.Unmarshal(ev.Payload, &t); err != nil {
		return nil, fmt.Errorf("normalize: deribit ticker decode: %w", err)
	}
	if t.Timestamp == 0 {
		return nil, fmt.Errorf("normalize: deribit ticker missing timestamp")
	}
	rate, err := parseDecimalField("funding_8h", t.Funding8h.String())
	if err != nil {
		return nil, err
	}
	ts := time.UnixMilli(t.Timestamp)
	return schema.FundingRate{
		Common:          common(ev, ts),
		FundingRate:     rate,
		FundingTime:     ts,
		NextFundingTime: ts.Add(8 * time.Hour),
	}, nil
}

func normalizeDeribitOpenInterest(ev connector.RawEvent) (schema.Record, error) {
	var t deribitTicker
	if err := json.Unmarshal(ev.Payload, &t); err != nil {
		return nil, fmt.Errorf("normalize: deribit ticker decode: %w", err)
	}
	if t.Timestamp == 0 {
		return nil, fmt.Errorf("normalize: deribit ticker missing timestamp")
	}
	oi, err := parseDecimalField("open_interest", t.OpenInterest.String())
	if err != nil {
		return nil, err
	}
	return schema.OpenInterest{
		Common:            common(ev, time.UnixMilli(t.Timestamp)),
		OpenInterest:      oi,
		OpenInterestValue: decimalx.Zero,
	}, nil
}

type deribitVolIndex struct {
	Timestamp  int64       `json:"timestamp"`
	Volatility json.Number `json:"volatility"`
}

func normalizeDeribitVolatilityIndex(ev connector.RawEvent) (schema.Record, error) {
	var v deribitVolIndex
	if err := json.Unmarshal(ev.Payload, &v); err != nil {
		return nil, fmt.Errorf("normalize: deribit volatility index decode: %w", err)
	}
	if v.Timestamp == 0 {
		return nil, fmt.Errorf("normalize: deribit volatility index missing timestamp")
	}
	index, err := parseDecimalField("volatility", v.Volatility.String())
	if err != nil {
		return nil, err
	}
	return schema.VolatilityIndex{
		Common:          common(ev, time.UnixMilli(v.Timestamp)),
		IndexValue:      index,
		UnderlyingAsset: ev.Symbol,
	}, nil
}
