package clickhouse

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketprism/marketprism/internal/decimalx"
	"github.com/marketprism/marketprism/internal/schema"
)

func TestWireTrade_DecodesRecordMarshalOutput(t *testing.T) {
	trade := schema.Trade{
		Common: schema.Common{
			Timestamp:  time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
			Exchange:   schema.Binance,
			MarketType: schema.Spot,
			Symbol:     "BTC-USDT",
			DataSource: schema.DataSource,
		},
		TradeID:  "12345",
		Price:    decimalx.MustParse("50000.10"),
		Quantity: decimalx.MustParse("0.001"),
		Side:     schema.SideBuy,
		IsMaker:  true,
	}
	raw, err := json.Marshal(trade)
	require.NoError(t, err)

	var w wireTrade
	require.NoError(t, json.Unmarshal(raw, &w))

	assert.Equal(t, schema.Binance, w.Exchange)
	assert.Equal(t, schema.Spot, w.MarketType)
	assert.Equal(t, "BTC-USDT", w.Symbol)
	assert.Equal(t, "12345", w.TradeID)
	assert.Equal(t, "50000.10", w.Price.String())
	assert.True(t, w.IsMaker)

	ts, err := w.parseTime()
	require.NoError(t, err)
	assert.False(t, ts.IsZero())
}

func TestWireOrderbook_DecodesNestedPriceLevels(t *testing.T) {
	ob := schema.Orderbook{
		Common: schema.Common{
			Exchange:   schema.OKX,
			MarketType: schema.Perpetual,
			Symbol:     "ETH-USDT",
			DataSource: schema.DataSource,
		},
		LastUpdateID: 42,
		BestBidPrice: decimalx.MustParse("3000.5"),
		BestAskPrice: decimalx.MustParse("3000.7"),
		Bids: []schema.PriceLevel{
			{Price: decimalx.MustParse("3000.5"), Quantity: decimalx.MustParse("1.5")},
		},
		Asks: []schema.PriceLevel{
			{Price: decimalx.MustParse("3000.7"), Quantity: decimalx.MustParse("2.5")},
		},
	}
	raw, err := json.Marshal(ob)
	require.NoError(t, err)

	var w wireOrderbook
	require.NoError(t, json.Unmarshal(raw, &w))

	assert.Equal(t, int64(42), w.LastUpdateID)
	require.Len(t, w.Bids, 1)
	assert.Equal(t, "3000.5", w.Bids[0][0])
	assert.Equal(t, "1.5", w.Bids[0][1])

	pairs := levelPairs(w.Bids)
	require.Len(t, pairs, 1)
	assert.Equal(t, []string{"3000.5", "1.5"}, pairs[0])
}

func TestWireFundingRate_DecodesBothTimestamps(t *testing.T) {
	fr := schema.FundingRate{
		Common: schema.Common{
			Exchange:   schema.Binance,
			MarketType: schema.Perpetual,
			Symbol:     "BTC-USDT",
			DataSource: schema.DataSource,
		},
		FundingRate: decimalx.MustParse("0.0001"),
	}
	raw, err := json.Marshal(fr)
	require.NoError(t, err)

	var w wireFundingRate
	require.NoError(t, json.Unmarshal(raw, &w))
	assert.Equal(t, "0.0001", w.FundingRate.String())
	assert.NotEmpty(t, w.FundingTime)
	assert.NotEmpty(t, w.NextFundingTime)
}
