package normalize

import "strings"

// quoteCurrencies is the fixed set of quote-currency suffixes recognized
// when splitting a compact exchange symbol into BASE-QUOTE form. Longer
// suffixes are tried first so e.g. "BUSD" doesn't get shadowed by "USD".
var quoteCurrencies = []string{
	"USDT", "USDC", "BUSD", "TUSD", "BTC", "ETH", "BNB", "USD", "EUR", "GBP", "JPY", "DAI",
}

// Symbol is the single pure function responsible for turning any exchange
// symbol spelling into canonical BASE-QUOTE form. It is deliberately the
// only place quote-currency detection happens, so every connector and the
// normalizer agree on one mapping.
func Symbol(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.TrimSuffix(s, "-SWAP")

	if strings.Contains(s, "-") {
		return s
	}

	for _, q := range quoteCurrencies {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			base := s[:len(s)-len(q)]
			return base + "-" + q
		}
	}

	// No recognized quote suffix (e.g. a Deribit options instrument id):
	// pass through unchanged per spec.md §9's open question resolution.
	return s
}
