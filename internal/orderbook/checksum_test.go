package orderbook

import (
	"testing"

	"github.com/marketprism/marketprism/internal/decimalx"
	"github.com/stretchr/testify/assert"
)

func TestOKXChecksum_DeterministicForSameLevels(t *testing.T) {
	bids := []Level{{Price: decimalx.MustParse("100"), Quantity: decimalx.MustParse("1")}}
	asks := []Level{{Price: decimalx.MustParse("101"), Quantity: decimalx.MustParse("2")}}

	a := OKXChecksum(bids, asks)
	b := OKXChecksum(bids, asks)
	assert.Equal(t, a, b)
}

func TestOKXChecksum_ChangesWhenAQuantityChanges(t *testing.T) {
	bids := []Level{{Price: decimalx.MustParse("100"), Quantity: decimalx.MustParse("1")}}
	asks := []Level{{Price: decimalx.MustParse("101"), Quantity: decimalx.MustParse("2")}}

	before := OKXChecksum(bids, asks)
	bids[0].Quantity = decimalx.MustParse("9")
	after := OKXChecksum(bids, asks)
	assert.NotEqual(t, before, after)
}

func TestOKXChecksum_HandlesEmptySides(t *testing.T) {
	got := OKXChecksum(nil, nil)
	assert.Equal(t, int32(0), got)
}
