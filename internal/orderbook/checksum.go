package orderbook

import (
	"hash/crc32"
	"strings"
)

// OKXChecksum computes the CRC32 of the top 25 bid/ask levels,
// interleaved as bidPrice:bidQty:askPrice:askQty per level and joined
// by colons, matching the shape OKX's own checksum field covers so a
// local mismatch against the exchange-supplied checksum reliably
// signals a missed or misordered update.
func OKXChecksum(bids, asks []Level) int32 {
	const depth = 25
	var parts []string
	for i := 0; i < depth; i++ {
		if i < len(bids) {
			parts = append(parts, bids[i].Price.String(), bids[i].Quantity.String())
		}
		if i < len(asks) {
			parts = append(parts, asks[i].Price.String(), asks[i].Quantity.String())
		}
	}
	return int32(crc32.ChecksumIEEE([]byte(strings.Join(parts, ":"))))
}
