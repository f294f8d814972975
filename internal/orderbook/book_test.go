package orderbook

import (
	"testing"
	"time"

	"github.com/marketprism/marketprism/internal/decimalx"
	"github.com/marketprism/marketprism/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lvl(price, qty string) Level {
	return Level{Price: decimalx.MustParse(price), Quantity: decimalx.MustParse(qty)}
}

func TestBook_SeedThenApplyChainedUpdateSyncs(t *testing.T) {
	b := NewBook(schema.Binance, schema.Spot, "BTCUSDT", BinanceValidator{}, 0)
	b.RequestSnapshot()
	require.Equal(t, StateSnapshotPending, b.State())

	b.Seed(100, []Level{lvl("100", "1")}, []Level{lvl("101", "1")})
	require.Equal(t, StateSynced, b.State())

	now := time.Now()
	applied := b.ApplyUpdate(now, Update{
		FirstUpdateID: 101,
		FinalUpdateID: 102,
		Bids:          []Level{lvl("99", "2")},
	})
	assert.True(t, applied)
	assert.Equal(t, StateSynced, b.State())

	snap := b.Snapshot(now)
	assert.Equal(t, "100", snap.BestBidPrice.String())
}

func TestBook_BufferedUpdatesReplayAfterSnapshot(t *testing.T) {
	b := NewBook(schema.Binance, schema.Spot, "ETHUSDT", BinanceValidator{}, 0)
	b.RequestSnapshot()

	now := time.Now()
	applied := b.ApplyUpdate(now, Update{FirstUpdateID: 95, FinalUpdateID: 98, ReceivedAt: now})
	assert.False(t, applied)
	assert.Equal(t, StateSnapshotPending, b.State())

	b.Seed(98, []Level{lvl("10", "1")}, nil)
	assert.Equal(t, StateSynced, b.State())
}

func TestBook_SequenceGapDropsBackToUnsynced(t *testing.T) {
	b := NewBook(schema.Binance, schema.Spot, "BTCUSDT", BinanceValidator{}, 0)
	b.RequestSnapshot()
	b.Seed(100, []Level{lvl("100", "1")}, []Level{lvl("101", "1")})
	require.Equal(t, StateSynced, b.State())

	now := time.Now()
	applied := b.ApplyUpdate(now, Update{FirstUpdateID: 500, FinalUpdateID: 501})
	assert.False(t, applied)
	assert.Equal(t, StateUnsynced, b.State())
}

func TestBook_OneSidedBookStaysSynced(t *testing.T) {
	b := NewBook(schema.OKX, schema.Spot, "BTC-USDT", OKXValidator{}, 0)
	b.RequestSnapshot()
	b.Seed(10, []Level{lvl("100", "1")}, nil)
	require.Equal(t, StateSynced, b.State())

	snap := b.Snapshot(time.Now())
	assert.Equal(t, "100", snap.BestBidPrice.String())
	assert.True(t, snap.BestAskPrice.IsZero())
}

func TestBook_ChecksumMismatchTriggersGap(t *testing.T) {
	b := NewBook(schema.OKX, schema.Spot, "BTC-USDT", OKXValidator{}, 0)
	b.RequestSnapshot()
	b.Seed(10, []Level{lvl("100", "1")}, []Level{lvl("101", "1")})
	require.Equal(t, StateSynced, b.State())

	applied := b.ApplyUpdate(time.Now(), Update{
		SeqID:       11,
		PrevSeqID:   10,
		HasChecksum: true,
		Checksum:    12345, // deliberately wrong
	})
	assert.False(t, applied)
	assert.Equal(t, StateUnsynced, b.State())
}

func TestBook_ManyConsecutiveGapsTriggerCooldown(t *testing.T) {
	b := NewBook(schema.Binance, schema.Spot, "BTCUSDT", BinanceValidator{}, 0)
	b.RequestSnapshot()
	b.Seed(100, []Level{lvl("100", "1")}, []Level{lvl("101", "1")})

	now := time.Now()
	for i := 0; i < maxConsecutiveGaps; i++ {
		// re-sync then immediately gap, to accumulate gap timestamps
		b.Seed(100, []Level{lvl("100", "1")}, []Level{lvl("101", "1")})
		b.ApplyUpdate(now, Update{FirstUpdateID: 999, FinalUpdateID: 1000})
	}

	assert.True(t, now.Before(b.cooldownUntil) || now.Equal(b.cooldownUntil))

	b.Seed(100, []Level{lvl("100", "1")}, []Level{lvl("101", "1")})
	applied := b.ApplyUpdate(now, Update{FirstUpdateID: 101, FinalUpdateID: 102})
	assert.False(t, applied, "update during cooldown must be rejected even if it chains")
}

func TestBook_SnapshotRespectsConfiguredDepth(t *testing.T) {
	b := NewBook(schema.Binance, schema.Spot, "BTCUSDT", BinanceValidator{}, 2)
	b.RequestSnapshot()
	b.Seed(100,
		[]Level{lvl("100", "1"), lvl("99", "1"), lvl("98", "1")},
		[]Level{lvl("101", "1"), lvl("102", "1"), lvl("103", "1")})
	require.Equal(t, StateSynced, b.State())

	snap := b.Snapshot(time.Now())
	assert.Len(t, snap.Bids, 2)
	assert.Len(t, snap.Asks, 2)
}

func TestBook_NonPositiveDepthFallsBackToDefault(t *testing.T) {
	b := NewBook(schema.Binance, schema.Spot, "BTCUSDT", BinanceValidator{}, 0)
	assert.Equal(t, defaultPublishDepth, b.depth)
}

func TestBook_StaleBufferedUpdateEvicted(t *testing.T) {
	b := NewBook(schema.Binance, schema.Spot, "BTCUSDT", BinanceValidator{}, 0)
	b.RequestSnapshot()

	old := time.Now().Add(-time.Hour)
	b.ApplyUpdate(old, Update{FirstUpdateID: 1, FinalUpdateID: 2, ReceivedAt: old})
	require.Len(t, b.buffered, 1)

	now := time.Now()
	b.ApplyUpdate(now, Update{FirstUpdateID: 2, FinalUpdateID: 3, ReceivedAt: now})
	assert.Len(t, b.buffered, 1, "stale buffered update should have been evicted before the fresh one was appended")
	assert.Equal(t, int64(3), b.buffered[0].FinalUpdateID)
}
