package orderbook

import "time"

// Update is one incremental depth diff, exchange-specific sequencing
// fields left zero when not applicable to that exchange.
type Update struct {
	FirstUpdateID int64 // Binance "U"
	FinalUpdateID int64 // Binance "u"
	SeqID         int64 // OKX "seqId"
	PrevSeqID     int64 // OKX "prevSeqId"
	Checksum      int32 // OKX "checksum"
	HasChecksum   bool
	ReceivedAt    time.Time
	Bids          []Level
	Asks          []Level
}

// SequenceValidator encapsulates one exchange's gap-detection rule.
// AcceptsSnapshotSeed decides whether an update arriving before or
// alongside a snapshot should be kept or discarded as stale. Validate
// checks continuity against the book's current sequence cursor.
type SequenceValidator interface {
	AcceptsSnapshotSeed(update Update, snapshotSeq int64) bool
	Validate(update Update, lastSeq int64) (ok bool, newLastSeq int64)
}

// BinanceValidator implements Binance's U/u/lastUpdateId scheme: an
// event seeds the book if its final id is past the snapshot's
// lastUpdateId, and a later event chains as long as the book's cursor
// falls within its [U, u] range (U <= lastUpdateId+1 <= u), not only
// when U lands exactly on lastUpdateId+1.
type BinanceValidator struct{}

func (BinanceValidator) AcceptsSnapshotSeed(u Update, snapshotSeq int64) bool {
	return u.FinalUpdateID > snapshotSeq
}

func (BinanceValidator) Validate(u Update, lastSeq int64) (bool, int64) {
	if u.FirstUpdateID > lastSeq+1 || u.FinalUpdateID < lastSeq+1 {
		return false, lastSeq
	}
	return true, u.FinalUpdateID
}

// OKXValidator implements OKX's seqId/prevSeqId scheme: the first diff
// after a snapshot carries prevSeqId == -1 or equal to the snapshot's
// own seqId; every later diff must chain prevSeqId == previous seqId.
type OKXValidator struct{}

func (OKXValidator) AcceptsSnapshotSeed(u Update, snapshotSeq int64) bool {
	return u.SeqID > snapshotSeq
}

func (OKXValidator) Validate(u Update, lastSeq int64) (bool, int64) {
	if u.PrevSeqID != -1 && u.PrevSeqID != lastSeq {
		return false, lastSeq
	}
	return true, u.SeqID
}
