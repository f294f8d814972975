package orderbook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/marketprism/marketprism/internal/decimalx"
)

// binanceDiff mirrors a Binance depthUpdate payload (the unwrapped
// "data" field of a combined-stream envelope).
type binanceDiff struct {
	FirstUpdateID int64      `json:"U"`
	FinalUpdateID int64      `json:"u"`
	Bids          [][]string `json:"b"`
	Asks          [][]string `json:"a"`
}

// DecodeBinanceDiff parses one Binance depthUpdate payload into an
// Update, ready for BinanceValidator and Book.ApplyUpdate.
func DecodeBinanceDiff(payload []byte, receivedAt time.Time) (Update, error) {
	var d binanceDiff
	if err := json.Unmarshal(payload, &d); err != nil {
		return Update{}, fmt.Errorf("orderbook: decode binance diff: %w", err)
	}
	bids, err := decodeLevels(d.Bids)
	if err != nil {
		return Update{}, fmt.Errorf("orderbook: binance bids: %w", err)
	}
	asks, err := decodeLevels(d.Asks)
	if err != nil {
		return Update{}, fmt.Errorf("orderbook: binance asks: %w", err)
	}
	return Update{
		FirstUpdateID: d.FirstUpdateID,
		FinalUpdateID: d.FinalUpdateID,
		ReceivedAt:    receivedAt,
		Bids:          bids,
		Asks:          asks,
	}, nil
}

// okxDiff mirrors one element of an OKX "books"/"books5"/"books-l2-tbt"
// channel push's data array. The "books" channel tags its first push
// per subscription action:"snapshot" and every later one "update";
// "books5" omits the field because every push is already a full
// 5-level snapshot.
type okxDiff struct {
	Action    string     `json:"action"`
	Bids      [][]string `json:"bids"`
	Asks      [][]string `json:"asks"`
	SeqID     int64      `json:"seqId"`
	PrevSeqID int64      `json:"prevSeqId"`
	Checksum  int32      `json:"checksum"`
}

// DecodeOKXDiff parses one OKX order book push into an Update, ready
// for OKXValidator and Book.ApplyUpdate, plus whether the push is a
// full snapshot (seed the book directly) rather than an incremental
// diff. OKX price levels carry two trailing fields (order count
// metadata) beyond price/quantity, which decodeLevels ignores.
func DecodeOKXDiff(payload []byte, receivedAt time.Time) (u Update, isSnapshot bool, err error) {
	var d okxDiff
	if err := json.Unmarshal(payload, &d); err != nil {
		return Update{}, false, fmt.Errorf("orderbook: decode okx diff: %w", err)
	}
	bids, err := decodeLevels(d.Bids)
	if err != nil {
		return Update{}, false, fmt.Errorf("orderbook: okx bids: %w", err)
	}
	asks, err := decodeLevels(d.Asks)
	if err != nil {
		return Update{}, false, fmt.Errorf("orderbook: okx asks: %w", err)
	}
	isSnapshot = d.Action == "snapshot" || d.Action == ""
	return Update{
		SeqID:       d.SeqID,
		PrevSeqID:   d.PrevSeqID,
		Checksum:    d.Checksum,
		HasChecksum: d.Checksum != 0,
		ReceivedAt:  receivedAt,
		Bids:        bids,
		Asks:        asks,
	}, isSnapshot, nil
}

// decodeLevels parses [price, quantity, ...] string-tuple rows
// (Binance's two-element and OKX's four-element forms both start with
// price and quantity) into Level.
func decodeLevels(raw [][]string) ([]Level, error) {
	out := make([]Level, 0, len(raw))
	for _, row := range raw {
		if len(row) < 2 {
			return nil, fmt.Errorf("level row has %d fields, want at least 2", len(row))
		}
		price, err := decimalx.Parse(row[0])
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", row[0], err)
		}
		qty, err := decimalx.Parse(row[1])
		if err != nil {
			return nil, fmt.Errorf("quantity %q: %w", row[1], err)
		}
		out = append(out, Level{Price: price, Quantity: qty})
	}
	return out, nil
}
