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

func normalizeBinance(ev connector.RawEvent) (schema.Record, error) {
	switch ev.DataType {
	case schema.DataTypeTrade:
		return normalizeBinanceTrade(ev)
	case schema.DataTypeFundingRate:
		return normalizeBinanceFunding(ev)
	case schema.DataTypeOpenInterest:
		return normalizeBinanceOpenInterest(ev)
	case schema.DataTypeLiquidation:
		return normalizeBinanceLiquidation(ev)
	case schema.DataTypeLSRTopPosition:
		return normalizeBinanceLSRTop(ev)
	case schema.DataTypeLSRAllAccount:
		return normalizeBinanceLSRAccount(ev)
	default:
		return nil, fmt.Errorf("normalize: binance does not support data type %q here", ev.DataType)
	}
}

// binanceTrade covers both the spot "trade" stream (t/p/q/m/T) and the
// derivatives "aggTrade" stream (a/p/q/f/l/m/T); each fills only its own
// subset of these fields (trade has no a/f/l, aggTrade has no t), and the
// trade id falls back from t to a.
type binanceTrade struct {
	TradeID      int64  `json:"t"`
	AggTradeID   int64  `json:"a"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	FirstTradeID int64  `json:"f"`
	LastTradeID  int64  `json:"l"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

func normalizeBinanceTrade(ev connector.RawEvent) (schema.Record, error) {
	var t binanceTrade
	if err := json.Unmarshal(ev.Payload, &t); err != nil {
		return nil, fmt.Errorf("normalize: binance trade decode: %w", err)
	}

	price, err := parseDecimalField("p", t.Price)
	if err != nil {
		return nil, err
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("normalize: binance trade price must be positive")
	}
	qty, err := parseDecimalField("q", t.Quantity)
	if err != nil {
		return nil, err
	}
	if !qty.IsPositive() {
		return nil, fmt.Errorf("normalize: binance trade quantity must be positive")
	}

	id := t.TradeID
	if id == 0 {
		id = t.AggTradeID
	}

	// IsBuyerMaker true means the buyer was resting, so the taker
	// (the trade's aggressor) sold.
	side := schema.SideBuy
	if t.IsBuyerMaker {
		side = schema.SideSell
	}

	ts := time.UnixMilli(t.TradeTime)
	return schema.Trade{
		Common:   common(ev, ts),
		TradeID:  strconv.FormatInt(id, 10),
		Price:    price,
		Quantity: qty,
		Side:     side,
		IsMaker:  t.IsBuyerMaker,
		FirstID:  nonZeroID(t.FirstTradeID),
		LastID:   nonZeroID(t.LastTradeID),
	}, nil
}

func nonZeroID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

type binancePremiumIndex struct {
	LastFundingRate string `json:"lastFundingRate"`
	NextFundingTime int64  `json:"nextFundingTime"`
	Time            int64  `json:"time"`
}

func normalizeBinanceFunding(ev connector.RawEvent) (schema.Record, error) {
	var p binancePremiumIndex
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return nil, fmt.Errorf("normalize: binance funding decode: %w", err)
	}
	rate, err := parseDecimalField("lastFundingRate", p.LastFundingRate)
	if err != nil {
		return nil, err
	}
	ts := time.UnixMilli(p.Time)
	return schema.FundingRate{
		Common:          common(ev, ts),
		FundingRate:     rate,
		FundingTime:     ts,
		NextFundingTime: time.UnixMilli(p.NextFundingTime),
	}, nil
}

type binanceOpenInterest struct {
	OpenInterest string `json:"openInterest"`
	Time         int64  `json:"time"`
}

func normalizeBinanceOpenInterest(ev connector.RawEvent) (schema.Record, error) {
	var o binanceOpenInterest
	if err := json.Unmarshal(ev.Payload, &o); err != nil {
		return nil, fmt.Errorf("normalize: binance open interest decode: %w", err)
	}
	oi, err := parseDecimalField("openInterest", o.OpenInterest)
	if err != nil {
		return nil, err
	}
	ts := time.UnixMilli(o.Time)
	return schema.OpenInterest{
		Common:            common(ev, ts),
		OpenInterest:      oi,
		OpenInterestValue: decimalx.Zero,
	}, nil
}

// binanceForceOrder is the nested "o" object of the forceOrder stream.
type binanceForceOrder struct {
	Order struct {
		Side      string `json:"S"`
		Price     string `json:"p"`
		Quantity  string `json:"q"`
		TradeTime int64  `json:"T"`
	} `json:"o"`
}

func normalizeBinanceLiquidation(ev connector.RawEvent) (schema.Record, error) {
	var f binanceForceOrder
	if err := json.Unmarshal(ev.Payload, &f); err != nil {
		return nil, fmt.Errorf("normalize: binance liquidation decode: %w", err)
	}
	side, err := parseSide(f.Order.Side)
	if err != nil {
		return nil, err
	}
	price, err := parseDecimalField("p", f.Order.Price)
	if err != nil {
		return nil, err
	}
	qty, err := parseDecimalField("q", f.Order.Quantity)
	if err != nil {
		return nil, err
	}
	ts := time.UnixMilli(f.Order.TradeTime)
	return schema.Liquidation{
		Common:   common(ev, ts),
		Side:     side,
		Price:    price,
		Quantity: qty,
	}, nil
}

type binanceRatioRow struct {
	LongShortRatio string `json:"longShortRatio"`
	LongAccount    string `json:"longAccount"`
	ShortAccount   string `json:"shortAccount"`
	LongPosition   string `json:"longPosition"`
	ShortPosition  string `json:"shortPosition"`
	Timestamp      int64  `json:"timestamp"`
	Period         string `json:"-"`
}

func normalizeBinanceLSRTop(ev connector.RawEvent) (schema.Record, error) {
	var r binanceRatioRow
	if err := json.Unmarshal(ev.Payload, &r); err != nil {
		return nil, fmt.Errorf("normalize: binance top-position LSR decode: %w", err)
	}
	long, short, err := longShortFromRatio(r)
	if err != nil {
		return nil, err
	}
	ts := time.UnixMilli(r.Timestamp)
	return schema.LSRTopPosition{
		Common:             common(ev, ts),
		LongPositionRatio:  long,
		ShortPositionRatio: short,
		Period:             "5m",
	}, nil
}

func normalizeBinanceLSRAccount(ev connector.RawEvent) (schema.Record, error) {
	var r binanceRatioRow
	if err := json.Unmarshal(ev.Payload, &r); err != nil {
		return nil, fmt.Errorf("normalize: binance account LSR decode: %w", err)
	}
	long, short, err := longShortFromRatio(r)
	if err != nil {
		return nil, err
	}
	ts := time.UnixMilli(r.Timestamp)
	return schema.LSRAllAccount{
		Common:            common(ev, ts),
		LongAccountRatio:  long,
		ShortAccountRatio: short,
		Period:            "5m",
	}, nil
}

// longShortFromRatio extracts the long/short fraction from whichever
// pair of fields Binance's response populates (position vs account
// endpoints use different field names for the same shape).
func longShortFromRatio(r binanceRatioRow) (decimalx.Number, decimalx.Number, error) {
	longText, shortText := r.LongPosition, r.ShortPosition
	if longText == "" {
		longText, shortText = r.LongAccount, r.ShortAccount
	}
	long, err := parseDecimalField("long", longText)
	if err != nil {
		return decimalx.Number{}, decimalx.Number{}, err
	}
	short, err := parseDecimalField("short", shortText)
	if err != nil {
		return decimalx.Number{}, decimalx.Number{}, err
	}
	return long, short, nil
}
