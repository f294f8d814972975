package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/marketprism/marketprism/internal/connector"
	"github.com/marketprism/marketprism/internal/decimalx"
	"github.com/marketprism/marketprism/internal/schema"
)

func normalizeOKX(ev connector.RawEvent) (schema.Record, error) {
	switch ev.DataType {
	case schema.DataTypeTrade:
		return normalizeOKXTrade(ev)
	case schema.DataTypeFundingRate:
		return normalizeOKXFunding(ev)
	case schema.DataTypeOpenInterest:
		return normalizeOKXOpenInterest(ev)
	case schema.DataTypeLiquidation:
		return normalizeOKXLiquidation(ev)
	case schema.DataTypeLSRTopPosition:
		return normalizeOKXLSRTop(ev)
	default:
		return nil, fmt.Errorf("normalize: okx does not support data type %q here", ev.DataType)
	}
}

type okxTrade struct {
	TradeID string `json:"tradeId"`
	Price   string `json:"px"`
	Size    string `json:"sz"`
	Side    string `json:"side"`
	Ts      string `json:"ts"`
}

func normalizeOKXTrade(ev connector.RawEvent) (schema.Record, error) {
	var t okxTrade
	if err := json.Unmarshal(ev.Payload, &t); err != nil {
		return nil, fmt.Errorf("normalize: okx trade decode: %w", err)
	}
	side, err := parseSide(t.Side)
	if err != nil {
		return nil, err
	}
	price, err := parseDecimalField("px", t.Price)
	if err != nil {
		return nil, err
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("normalize: okx trade price must be positive")
	}
	qty, err := parseDecimalField("sz", t.Size)
	if err != nil {
		return nil, err
	}
	if !qty.IsPositive() {
		return nil, fmt.Errorf("normalize: okx trade quantity must be positive")
	}
	ts, err := parseMillisString(t.Ts)
	if err != nil {
		return nil, err
	}
	return schema.Trade{
		Common:   common(ev, ts),
		TradeID:  t.TradeID,
		Price:    price,
		Quantity: qty,
		Side:     side,
	}, nil
}

type okxFundingRate struct {
	FundingRate     string `json:"fundingRate"`
	FundingTime     string `json:"fundingTime"`
	NextFundingTime string `json:"nextFundingTime"`
}

func normalizeOKXFunding(ev connector.RawEvent) (schema.Record, error) {
	var f okxFundingRate
	if err := json.Unmarshal(ev.Payload, &f); err != nil {
		return nil, fmt.Errorf("normalize: okx funding decode: %w", err)
	}
	rate, err := parseDecimalField("fundingRate", f.FundingRate)
	if err != nil {
		return nil, err
	}
	fundingTime, err := parseMillisString(f.FundingTime)
	if err != nil {
		return nil, err
	}
	nextFundingTime, _ := parseMillisString(f.NextFundingTime)
	return schema.FundingRate{
		Common:          common(ev, fundingTime),
		FundingRate:     rate,
		FundingTime:     fundingTime,
		NextFundingTime: nextFundingTime,
	}, nil
}

type okxOpenInterest struct {
	InstID string `json:"instId"`
	OI     string `json:"oi"`
	OIValue string `json:"oiCcy"`
	Ts     string `json:"ts"`
}

func normalizeOKXOpenInterest(ev connector.RawEvent) (schema.Record, error) {
	var o okxOpenInterest
	if err := json.Unmarshal(ev.Payload, &o); err != nil {
		return nil, fmt.Errorf("normalize: okx open interest decode: %w", err)
	}
	oi, err := parseDecimalField("oi", o.OI)
	if err != nil {
		return nil, err
	}
	value := decimalx.Zero
	if o.OIValue != "" {
		value, err = parseDecimalField("oiCcy", o.OIValue)
		if err != nil {
			return nil, err
		}
	}
	ts, err := parseMillisString(o.Ts)
	if err != nil {
		return nil, err
	}
	return schema.OpenInterest{
		Common:            common(ev, ts),
		OpenInterest:      oi,
		OpenInterestValue: value,
	}, nil
}

type okxLiquidationDetail struct {
	Side      string `json:"side"`
	Price     string `json:"bkPx"`
	Size      string `json:"sz"`
	Timestamp string `json:"ts"`
}

func normalizeOKXLiquidation(ev connector.RawEvent) (schema.Record, error) {
	var d okxLiquidationDetail
	if err := json.Unmarshal(ev.Payload, &d); err != nil {
		return nil, fmt.Errorf("normalize: okx liquidation decode: %w", err)
	}
	side, err := parseSide(d.Side)
	if err != nil {
		return nil, err
	}
	price, err := parseDecimalField("bkPx", d.Price)
	if err != nil {
		return nil, err
	}
	qty, err := parseDecimalField("sz", d.Size)
	if err != nil {
		return nil, err
	}
	ts, err := parseMillisString(d.Timestamp)
	if err != nil {
		return nil, err
	}
	return schema.Liquidation{
		Common:   common(ev, ts),
		Side:     side,
		Price:    price,
		Quantity: qty,
	}, nil
}

type okxLSRRow struct {
	Timestamp string `json:"ts"`
	Ratio     string `json:"longShortAccRatio"`
}

// normalizeOKXLSRTop maps OKX's top-trader contract ratio. OKX exposes
// the ratio itself, not separate long/short fractions; both fields are
// derived from it (long = ratio/(ratio+1), short = 1/(ratio+1)) so the
// canonical record's two-sided shape still holds.
func normalizeOKXLSRTop(ev connector.RawEvent) (schema.Record, error) {
	var r okxLSRRow
	if err := json.Unmarshal(ev.Payload, &r); err != nil {
		return nil, fmt.Errorf("normalize: okx LSR decode: %w", err)
	}
	ratio, err := parseDecimalField("longShortAccRatio", r.Ratio)
	if err != nil {
		return nil, err
	}
	one := decimalx.FromDecimal(ratio.Decimal().Add(decimalx.MustParse("1").Decimal()))
	long := decimalx.FromDecimal(ratio.Decimal().Div(one.Decimal()))
	short := decimalx.FromDecimal(decimalx.MustParse("1").Decimal().Div(one.Decimal()))
	ts, err := parseMillisString(r.Timestamp)
	if err != nil {
		return nil, err
	}
	return schema.LSRTopPosition{
		Common:             common(ev, ts),
		LongPositionRatio:  long,
		ShortPositionRatio: short,
		Period:             "5m",
	}, nil
}

func parseMillisString(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("normalize: missing mandatory timestamp field")
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("normalize: invalid timestamp %q: %w", s, err)
	}
	return time.UnixMilli(ms), nil
}
