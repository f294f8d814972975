// Package orderbook owns per-(exchange, symbol) order book state: one
// Book goroutine-confined instance applies incremental diffs against
// its own decimal-keyed price levels, runs the snapshot/sync state
// machine, and renders canonical schema.Orderbook records on request
// while SYNCED.
package orderbook

import (
	"time"

	"github.com/marketprism/marketprism/internal/decimalx"
	"github.com/marketprism/marketprism/internal/errs"
	"github.com/marketprism/marketprism/internal/schema"
)

const (
	// staleBufferAge is how long a buffered pre-snapshot update may sit
	// before it is discarded as too old to apply.
	staleBufferAge = 30 * time.Second
	// gapCooldown is imposed after maxConsecutiveGaps within gapWindow.
	gapCooldown        = 30 * time.Second
	maxConsecutiveGaps = 100
	gapWindow          = 10 * time.Second
	// defaultPublishDepth is used when a Book is constructed with a
	// non-positive depth (e.g. by tests that don't care about it).
	defaultPublishDepth = 50
)

// Book is owned by exactly one goroutine per (exchange, symbol); all
// its methods are unsafe for concurrent use.
type Book struct {
	exchange   schema.Exchange
	marketType schema.MarketType
	symbol     string
	validator  SequenceValidator
	depth      int

	state   State
	lastSeq int64
	bids    *side
	asks    *side

	buffered []Update

	gapTimestamps []time.Time
	cooldownUntil time.Time
}

// NewBook constructs a Book that publishes up to depth levels per side.
// A non-positive depth falls back to defaultPublishDepth.
func NewBook(exchange schema.Exchange, marketType schema.MarketType, symbol string, validator SequenceValidator, depth int) *Book {
	if depth <= 0 {
		depth = defaultPublishDepth
	}
	return &Book{
		exchange:   exchange,
		marketType: marketType,
		symbol:     symbol,
		validator:  validator,
		depth:      depth,
		state:      StateUnsynced,
		bids:       newSide(true),
		asks:       newSide(false),
	}
}

func (b *Book) State() State { return b.state }

// RequestSnapshot transitions UNSYNCED -> SNAPSHOT_PENDING; subsequent
// diffs are buffered until Seed is called with the fetched snapshot.
func (b *Book) RequestSnapshot() {
	if b.state == StateUnsynced {
		b.state = StateSnapshotPending
		b.buffered = b.buffered[:0]
	}
}

// Seed applies a REST snapshot, replaying any buffered diffs that
// chain from it, and transitions to SYNCED once the replay succeeds.
func (b *Book) Seed(snapshotSeq int64, bids, asks []Level) {
	b.bids = newSide(true)
	b.asks = newSide(false)
	for _, l := range bids {
		b.bids.Set(l.Price, l.Quantity)
	}
	for _, l := range asks {
		b.asks.Set(l.Price, l.Quantity)
	}
	b.lastSeq = snapshotSeq
	b.state = StateBuffering

	pending := b.buffered
	b.buffered = nil
	for _, u := range pending {
		if err := b.applyBuffered(u); err != nil {
			// a buffered update failed to chain: force a fresh resync
			// rather than publish from a possibly-corrupt book.
			b.reset()
			return
		}
	}
	b.state = StateSynced
}

func (b *Book) applyBuffered(u Update) error {
	if !b.validator.AcceptsSnapshotSeed(u, b.lastSeq) {
		return nil // strictly older than the snapshot: drop silently
	}
	ok, newSeq := b.validator.Validate(u, b.lastSeq)
	if !ok {
		return &errs.ConnectorError{Code: errs.CodeSequenceGap, Message: "buffered update does not chain from snapshot"}
	}
	b.applyLevels(u)
	b.lastSeq = newSeq
	return nil
}

// ApplyUpdate feeds one incremental diff through the state machine. It
// returns true when the update was applied and the book remains (or
// becomes) eligible to publish.
func (b *Book) ApplyUpdate(now time.Time, u Update) bool {
	switch b.state {
	case StateUnsynced:
		return false // caller must RequestSnapshot first
	case StateSnapshotPending, StateBuffering:
		// Seed() drains the buffer synchronously; reaching StateBuffering
		// here means Seed hasn't run yet for this update.
		b.evictStaleBuffered(now)
		b.buffered = append(b.buffered, u)
		return false
	case StateSynced:
		return b.applySynced(now, u)
	default:
		return false
	}
}

// evictStaleBuffered drops buffered pre-snapshot updates older than
// staleBufferAge, so a slow snapshot fetch can't replay ancient diffs
// once it finally lands.
func (b *Book) evictStaleBuffered(now time.Time) {
	kept := b.buffered[:0]
	for _, u := range b.buffered {
		if now.Sub(u.ReceivedAt) <= staleBufferAge {
			kept = append(kept, u)
		}
	}
	b.buffered = kept
}

func (b *Book) applySynced(now time.Time, u Update) bool {
	if now.Before(b.cooldownUntil) {
		return false
	}
	ok, newSeq := b.validator.Validate(u, b.lastSeq)
	if !ok {
		b.recordGap(now)
		return false
	}
	b.applyLevels(u)
	b.lastSeq = newSeq

	if u.HasChecksum {
		want := OKXChecksum(b.bids.Top(25), b.asks.Top(25))
		if want != u.Checksum {
			b.recordGap(now)
			return false
		}
	}
	return true
}

func (b *Book) applyLevels(u Update) {
	for _, l := range u.Bids {
		b.bids.Set(l.Price, l.Quantity)
	}
	for _, l := range u.Asks {
		b.asks.Set(l.Price, l.Quantity)
	}
}

func (b *Book) recordGap(now time.Time) {
	cutoff := now.Add(-gapWindow)
	kept := b.gapTimestamps[:0]
	for _, ts := range b.gapTimestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	b.gapTimestamps = kept

	if len(b.gapTimestamps) >= maxConsecutiveGaps {
		b.cooldownUntil = now.Add(gapCooldown)
		b.gapTimestamps = nil
	}
	b.reset()
}

func (b *Book) reset() {
	b.state = StateUnsynced
	b.bids = newSide(true)
	b.asks = newSide(false)
	b.lastSeq = 0
	b.buffered = nil
}

// Snapshot renders the current top-N levels as a canonical Orderbook
// record. Callers should only do this while State() == StateSynced;
// an empty or one-sided book is still a valid SYNCED snapshot (spec's
// edge case for newly-listed or thinly-traded symbols).
func (b *Book) Snapshot(now time.Time) schema.Orderbook {
	bids := b.bids.Top(b.depth)
	asks := b.asks.Top(b.depth)

	toLevels := func(ls []Level) []schema.PriceLevel {
		out := make([]schema.PriceLevel, len(ls))
		for i, l := range ls {
			out[i] = schema.PriceLevel{Price: l.Price, Quantity: l.Quantity}
		}
		return out
	}

	bestBid := decimalx.Zero
	bestAsk := decimalx.Zero
	if p, _, ok := b.bids.Best(); ok {
		bestBid = p
	}
	if p, _, ok := b.asks.Best(); ok {
		bestAsk = p
	}

	return schema.Orderbook{
		Common: schema.Common{
			Timestamp:  now,
			Exchange:   b.exchange,
			MarketType: b.marketType,
			Symbol:     b.symbol,
			DataSource: schema.DataSource,
		},
		LastUpdateID: b.lastSeq,
		BestBidPrice: bestBid,
		BestAskPrice: bestAsk,
		Bids:         toLevels(bids),
		Asks:         toLevels(asks),
	}
}
