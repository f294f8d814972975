package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSymbol_NormalizationLaw(t *testing.T) {
	want := "BTC-USDT"
	assert.Equal(t, want, Symbol("BTCUSDT"))
	assert.Equal(t, want, Symbol("BTC-USDT"))
	assert.Equal(t, want, Symbol("BTC-USDT-SWAP"))
	assert.Equal(t, want, Symbol("btcusdt"))
}

func TestSymbol_PrefersLongestQuoteMatch(t *testing.T) {
	assert.Equal(t, "TUSD-BUSD", Symbol("TUSDBUSD"))
}

func TestSymbol_PassesThroughUnrecognizedInstrument(t *testing.T) {
	// A Deribit options instrument id has no BASE-QUOTE shape MarketPrism
	// recognizes; it is passed through as-is.
	assert.Equal(t, "BTC-27JUN25-70000-C", Symbol("BTC-27JUN25-70000-C"))
}

func TestSymbol_Idempotent(t *testing.T) {
	for _, in := range []string{"ETHUSDT", "ETH-USDT", "ETH-USDT-SWAP"} {
		once := Symbol(in)
		twice := Symbol(once)
		assert.Equal(t, once, twice)
	}
}
