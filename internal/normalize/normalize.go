// Package normalize turns a connector.RawEvent into one of the seven
// non-orderbook canonical schema.Record types, validating mandatory fields and
// rejecting malformed data before it ever reaches the publisher. Order
// book diffs are the one data type this package does not handle —
// those are owned by internal/orderbook, which applies them to
// per-symbol book state and emits its own schema.Orderbook snapshots.
package normalize

import (
	"fmt"
	"time"

	"github.com/marketprism/marketprism/internal/connector"
	"github.com/marketprism/marketprism/internal/schema"
)

// maxClockSkewAhead and maxClockSkewBehind bound the acceptable window
// around "now" a record's timestamp may fall in before it is rejected
// as corrupt or replayed.
const (
	maxClockSkewAhead  = 5 * time.Minute
	maxClockSkewBehind = 24 * time.Hour
)

// Normalize maps a raw exchange event to its canonical record. Callers
// must not pass DataTypeOrderbook events here.
func Normalize(ev connector.RawEvent) (schema.Record, error) {
	var (
		rec schema.Record
		err error
	)

	if env, ok := isCanonical(ev.Payload); ok {
		rec, err = decodeCanonical(ev, env)
		if err != nil {
			return nil, err
		}
		if err := validateTimestamp(rec.CommonFields().Timestamp); err != nil {
			return nil, err
		}
		return rec, nil
	}

	switch ev.Exchange {
	case schema.Binance:
		rec, err = normalizeBinance(ev)
	case schema.OKX:
		rec, err = normalizeOKX(ev)
	case schema.Deribit:
		rec, err = normalizeDeribit(ev)
	default:
		return nil, fmt.Errorf("normalize: unsupported exchange %q", ev.Exchange)
	}
	if err != nil {
		return nil, err
	}

	if err := validateTimestamp(rec.CommonFields().Timestamp); err != nil {
		return nil, err
	}
	return rec, nil
}

func validateTimestamp(ts time.Time) error {
	if ts.IsZero() {
		return fmt.Errorf("normalize: missing timestamp")
	}
	now := time.Now()
	if ts.After(now.Add(maxClockSkewAhead)) {
		return fmt.Errorf("normalize: timestamp %s is too far in the future", ts)
	}
	if ts.Before(now.Add(-maxClockSkewBehind)) {
		return fmt.Errorf("normalize: timestamp %s is too far in the past", ts)
	}
	return nil
}

func common(ev connector.RawEvent, ts time.Time) schema.Common {
	return schema.Common{
		Timestamp:  ts,
		Exchange:   ev.Exchange,
		MarketType: ev.MarketType,
		Symbol:     ev.Symbol,
		DataSource: schema.DataSource,
	}
}

func parseSide(raw string) (schema.Side, error) {
	switch raw {
	case "buy", "b", "BUY", "B":
		return schema.SideBuy, nil
	case "sell", "s", "SELL", "S":
		return schema.SideSell, nil
	default:
		return "", fmt.Errorf("normalize: invalid side %q", raw)
	}
}
