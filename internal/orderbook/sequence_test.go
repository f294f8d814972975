package orderbook

import "testing"

import "github.com/stretchr/testify/assert"

func TestBinanceValidator_AcceptsChainedUpdate(t *testing.T) {
	v := BinanceValidator{}
	ok, newSeq := v.Validate(Update{FirstUpdateID: 101, FinalUpdateID: 105}, 100)
	assert.True(t, ok)
	assert.Equal(t, int64(105), newSeq)
}

func TestBinanceValidator_RejectsGap(t *testing.T) {
	v := BinanceValidator{}
	ok, newSeq := v.Validate(Update{FirstUpdateID: 110, FinalUpdateID: 115}, 100)
	assert.False(t, ok)
	assert.Equal(t, int64(100), newSeq)
}

func TestBinanceValidator_AcceptsUpdateWhoseRangeStraddlesLastSeq(t *testing.T) {
	v := BinanceValidator{}
	// U=99 <= lastSeq+1=101 <= u=103: valid per Binance's own range rule
	// even though FirstUpdateID doesn't land exactly on lastSeq+1.
	ok, newSeq := v.Validate(Update{FirstUpdateID: 99, FinalUpdateID: 103}, 100)
	assert.True(t, ok)
	assert.Equal(t, int64(103), newSeq)
}

func TestBinanceValidator_SnapshotSeedAcceptsNewerEvent(t *testing.T) {
	v := BinanceValidator{}
	assert.True(t, v.AcceptsSnapshotSeed(Update{FinalUpdateID: 150}, 100))
	assert.False(t, v.AcceptsSnapshotSeed(Update{FinalUpdateID: 50}, 100))
}

func TestOKXValidator_AcceptsFirstPostSnapshotSentinel(t *testing.T) {
	v := OKXValidator{}
	ok, newSeq := v.Validate(Update{SeqID: 201, PrevSeqID: -1}, 200)
	assert.True(t, ok)
	assert.Equal(t, int64(201), newSeq)
}

func TestOKXValidator_RejectsMismatchedPrevSeq(t *testing.T) {
	v := OKXValidator{}
	ok, _ := v.Validate(Update{SeqID: 202, PrevSeqID: 199}, 200)
	assert.False(t, ok)
}

func TestOKXValidator_ChainsSequentialUpdates(t *testing.T) {
	v := OKXValidator{}
	ok, newSeq := v.Validate(Update{SeqID: 202, PrevSeqID: 201}, 201)
	assert.True(t, ok)
	assert.Equal(t, int64(202), newSeq)
}
