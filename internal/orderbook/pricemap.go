package orderbook

import (
	"sort"

	"github.com/marketprism/marketprism/internal/decimalx"
)

// side is a decimal-keyed, sorted collection of price levels for one
// side of a book. Prices are kept in a slice sorted by desc (bids) or
// ascending (asks) order, giving O(1) best-price lookup via
// slice[0] and O(log n) level lookup via binary search; insertion and
// removal still cost O(n) for the slice shift, an acceptable tradeoff
// at the level counts (a few hundred per symbol) these books hold.
type side struct {
	descending bool
	prices     []decimalx.Number
	qty        map[string]decimalx.Number
}

func newSide(descending bool) *side {
	return &side{descending: descending, qty: make(map[string]decimalx.Number)}
}

func (s *side) search(price decimalx.Number) int {
	return sort.Search(len(s.prices), func(i int) bool {
		if s.descending {
			return s.prices[i].Cmp(price) <= 0
		}
		return s.prices[i].Cmp(price) >= 0
	})
}

// Set inserts or updates the quantity at price. A zero quantity
// removes the level, matching the order-book apply-update algorithm's
// "qty == 0 means delete" rule.
func (s *side) Set(price, qty decimalx.Number) {
	key := price.String()
	if qty.IsZero() {
		s.remove(price, key)
		return
	}

	if _, exists := s.qty[key]; exists {
		s.qty[key] = qty
		return
	}

	idx := s.search(price)
	s.prices = append(s.prices, decimalx.Zero)
	copy(s.prices[idx+1:], s.prices[idx:])
	s.prices[idx] = price
	s.qty[key] = qty
}

func (s *side) remove(price decimalx.Number, key string) {
	if _, exists := s.qty[key]; !exists {
		return
	}
	delete(s.qty, key)
	idx := s.search(price)
	if idx < len(s.prices) && s.prices[idx].Cmp(price) == 0 {
		s.prices = append(s.prices[:idx], s.prices[idx+1:]...)
	}
}

func (s *side) Best() (decimalx.Number, decimalx.Number, bool) {
	if len(s.prices) == 0 {
		return decimalx.Zero, decimalx.Zero, false
	}
	p := s.prices[0]
	return p, s.qty[p.String()], true
}

// Top returns up to n levels in priority order.
func (s *side) Top(n int) []Level {
	if n > len(s.prices) {
		n = len(s.prices)
	}
	levels := make([]Level, n)
	for i := 0; i < n; i++ {
		p := s.prices[i]
		levels[i] = Level{Price: p, Quantity: s.qty[p.String()]}
	}
	return levels
}

func (s *side) Len() int { return len(s.prices) }

// Level is a single resting (price, quantity) pair.
type Level struct {
	Price    decimalx.Number
	Quantity decimalx.Number
}
