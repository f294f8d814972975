package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubject_ConformsToPattern(t *testing.T) {
	subj, err := Subject(DataTypeTrade, Binance, Spot, "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, "trade.binance.spot.BTC-USDT", subj)
	assert.True(t, ValidSubject(subj))
}

func TestSubject_RejectsMalformedSymbol(t *testing.T) {
	_, err := Subject(DataTypeTrade, Binance, Spot, "btc-usdt")
	assert.Error(t, err, "lowercase symbol must not produce a valid subject")
}

func TestSubject_RejectsUnknownExchange(t *testing.T) {
	_, err := Subject(DataTypeTrade, Exchange("bybit"), Spot, "BTC-USDT")
	assert.Error(t, err)
}

func TestValidSubject_MatchesAllDataTypes(t *testing.T) {
	for _, dt := range AllDataTypes {
		subj, err := Subject(dt, OKX, Perpetual, "ETH-USDT")
		require.NoError(t, err)
		assert.True(t, ValidSubject(subj))
	}
}

func TestDataType_TableName(t *testing.T) {
	assert.Equal(t, "trades", DataTypeTrade.TableName())
	assert.Equal(t, "lsr_top_positions", DataTypeLSRTopPosition.TableName())
}
