package normalize

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketprism/marketprism/internal/connector"
	"github.com/marketprism/marketprism/internal/schema"
)

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func rawEvent(exchange schema.Exchange, dataType schema.DataType, symbol, payload string) connector.RawEvent {
	return connector.RawEvent{
		Exchange:   exchange,
		MarketType: schema.Spot,
		DataType:   dataType,
		Symbol:     symbol,
		ReceivedAt: time.Now(),
		Payload:    []byte(payload),
	}
}

func TestNormalize_BinanceTrade(t *testing.T) {
	now := time.Now().UnixMilli()
	ev := rawEvent(schema.Binance, schema.DataTypeTrade, "BTC-USDT",
		`{"t":1,"p":"45000.50","q":"0.01","m":true,"T":`+itoa(now)+`}`)

	rec, err := Normalize(ev)
	require.NoError(t, err)
	trade, ok := rec.(schema.Trade)
	require.True(t, ok)
	assert.Equal(t, "45000.50", trade.Price.String())
	assert.Equal(t, schema.SideSell, trade.Side)
}

func TestNormalize_BinanceTrade_RejectsNonPositivePrice(t *testing.T) {
	now := time.Now().UnixMilli()
	ev := rawEvent(schema.Binance, schema.DataTypeTrade, "BTC-USDT",
		`{"t":1,"p":"0","q":"0.01","m":false,"T":`+itoa(now)+`}`)
	_, err := Normalize(ev)
	assert.Error(t, err)
}

func TestNormalize_RejectsFutureTimestamp(t *testing.T) {
	future := time.Now().Add(time.Hour).UnixMilli()
	ev := rawEvent(schema.Binance, schema.DataTypeTrade, "BTC-USDT",
		`{"t":1,"p":"1","q":"1","m":false,"T":`+itoa(future)+`}`)
	_, err := Normalize(ev)
	assert.Error(t, err)
}

func TestNormalize_RejectsStaleTimestamp(t *testing.T) {
	stale := time.Now().Add(-48 * time.Hour).UnixMilli()
	ev := rawEvent(schema.Binance, schema.DataTypeTrade, "BTC-USDT",
		`{"t":1,"p":"1","q":"1","m":false,"T":`+itoa(stale)+`}`)
	_, err := Normalize(ev)
	assert.Error(t, err)
}

func TestNormalize_OKXTrade(t *testing.T) {
	now := time.Now().UnixMilli()
	ev := rawEvent(schema.OKX, schema.DataTypeTrade, "BTC-USDT",
		`{"tradeId":"9","px":"45001.2","sz":"1.5","side":"buy","ts":"`+itoa(now)+`"}`)

	rec, err := Normalize(ev)
	require.NoError(t, err)
	trade := rec.(schema.Trade)
	assert.Equal(t, schema.SideBuy, trade.Side)
	assert.Equal(t, "1.5", trade.Quantity.String())
}

func TestNormalize_OKXTrade_RejectsInvalidSide(t *testing.T) {
	now := time.Now().UnixMilli()
	ev := rawEvent(schema.OKX, schema.DataTypeTrade, "BTC-USDT",
		`{"tradeId":"9","px":"1","sz":"1","side":"sideways","ts":"`+itoa(now)+`"}`)
	_, err := Normalize(ev)
	assert.Error(t, err)
}

func TestNormalize_DeribitTrade(t *testing.T) {
	now := time.Now().UnixMilli()
	ev := rawEvent(schema.Deribit, schema.DataTypeTrade, "BTC-PERPETUAL",
		`{"trade_id":"1","price":65000.25,"amount":10,"direction":"sell","timestamp":`+itoa(now)+`}`)

	rec, err := Normalize(ev)
	require.NoError(t, err)
	trade := rec.(schema.Trade)
	assert.Equal(t, schema.SideSell, trade.Side)
}

func TestNormalize_IdempotentOnAlreadyCanonicalTrade(t *testing.T) {
	now := time.Now().UnixMilli()
	ev := rawEvent(schema.Binance, schema.DataTypeTrade, "BTC-USDT",
		`{"t":1,"p":"45000.50","q":"0.01","m":true,"T":`+itoa(now)+`}`)

	first, err := Normalize(ev)
	require.NoError(t, err)
	firstTrade := first.(schema.Trade)

	canonical, err := json.Marshal(first)
	require.NoError(t, err)

	replay := ev
	replay.Payload = canonical
	second, err := Normalize(replay)
	require.NoError(t, err)
	secondTrade := second.(schema.Trade)

	assert.True(t, firstTrade.Timestamp.Equal(secondTrade.Timestamp))
	firstTrade.Timestamp, secondTrade.Timestamp = time.Time{}, time.Time{}
	assert.Equal(t, firstTrade, secondTrade)
}

func TestNormalize_IdempotentOnAlreadyCanonicalFundingRate(t *testing.T) {
	now := time.Now().UnixMilli()
	ev := rawEvent(schema.Deribit, schema.DataTypeFundingRate, "BTC-PERPETUAL",
		`{"funding_8h":"0.0001","open_interest":"100","timestamp":`+itoa(now)+`}`)

	first, err := Normalize(ev)
	require.NoError(t, err)
	firstRate := first.(schema.FundingRate)

	canonical, err := json.Marshal(first)
	require.NoError(t, err)

	replay := ev
	replay.Payload = canonical
	second, err := Normalize(replay)
	require.NoError(t, err)
	secondRate := second.(schema.FundingRate)

	assert.True(t, firstRate.Timestamp.Equal(secondRate.Timestamp))
	assert.True(t, firstRate.FundingTime.Equal(secondRate.FundingTime))
	assert.True(t, firstRate.NextFundingTime.Equal(secondRate.NextFundingTime))
	firstRate.Timestamp, secondRate.Timestamp = time.Time{}, time.Time{}
	firstRate.FundingTime, secondRate.FundingTime = time.Time{}, time.Time{}
	firstRate.NextFundingTime, secondRate.NextFundingTime = time.Time{}, time.Time{}
	assert.Equal(t, firstRate, secondRate)
}

func TestNormalize_UnsupportedExchange(t *testing.T) {
	ev := rawEvent(schema.Exchange("bybit"), schema.DataTypeTrade, "BTC-USDT", `{}`)
	_, err := Normalize(ev)
	assert.Error(t, err)
}
