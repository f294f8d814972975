package deribit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketprism/marketprism/internal/schema"
)

func TestDispatch_TickerEmitsFundingAndOpenInterest(t *testing.T) {
	c := New(schema.Perpetual, nil)
	msg := []byte(`{"method":"subscription","params":{"channel":"ticker.BTC-PERPETUAL.100ms","data":{"funding_8h":0.0001,"open_interest":123}}}`)
	require.NoError(t, c.dispatch(msg))

	first := <-c.events
	second := <-c.events
	types := map[schema.DataType]bool{first.DataType: true, second.DataType: true}
	assert.True(t, types[schema.DataTypeFundingRate])
	assert.True(t, types[schema.DataTypeOpenInterest])
	assert.Equal(t, "BTC-PERPETUAL", first.Symbol)
}

func TestDispatch_VolatilityIndexChannel(t *testing.T) {
	c := New(schema.Options, nil)
	msg := []byte(`{"method":"subscription","params":{"channel":"deribit_volatility_index.btc","data":{"volatility":55.2}}}`)
	require.NoError(t, c.dispatch(msg))
	ev := <-c.events
	assert.Equal(t, schema.DataTypeVolatilityIndex, ev.DataType)
	assert.Equal(t, "BTC", ev.Symbol)
}

func TestChannelsFor_OptionsInstrumentPassesThrough(t *testing.T) {
	ch := channelsFor("BTC-27JUN25-70000-C", schema.Options)
	assert.Contains(t, ch, "book.BTC-27JUN25-70000-C.100ms")
}

func TestDispatch_RejectsNonSubscriptionMethod(t *testing.T) {
	c := New(schema.Perpetual, nil)
	err := c.dispatch([]byte(`{"method":"heartbeat"}`))
	assert.Error(t, err)
}
