package normalize

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/marketprism/marketprism/internal/connector"
	"github.com/marketprism/marketprism/internal/schema"
)

// clickhouseTimeLayout mirrors schema.Common's ClickHouse DateTime64
// text form (schema keeps its own copy unexported), needed here to
// parse a record's own "timestamp" field back into a time.Time.
const clickhouseTimeLayout = "2006-01-02 15:04:05.000"

// canonicalEnvelope recognizes a payload that has already been through
// Normalize: every concrete schema record type marshals data_source to
// this exact constant, a value no exchange wire format emits, which a
// re-fed canonical record would otherwise fail to parse as any
// exchange's own trade/ticker/ratio shape.
type canonicalEnvelope struct {
	DataSource string `json:"data_source"`
	Timestamp  string `json:"timestamp"`
}

func isCanonical(payload []byte) (canonicalEnvelope, bool) {
	var env canonicalEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return canonicalEnvelope{}, false
	}
	return env, env.DataSource == schema.DataSource && env.Timestamp != ""
}

// decodeCanonical re-parses an already-normalized record back into its
// concrete schema type and restores the time.Time fields its MarshalJSON
// renders as text, the only fields that don't already round-trip through
// the struct's own JSON tags. This makes Normalize(Normalize(x)) return
// x unchanged instead of being routed through exchange-specific wire
// field parsing, which would reject it.
func decodeCanonical(ev connector.RawEvent, env canonicalEnvelope) (schema.Record, error) {
	ts, err := time.Parse(clickhouseTimeLayout, env.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("normalize: canonical timestamp: %w", err)
	}

	switch ev.DataType {
	case schema.DataTypeTrade:
		var r schema.Trade
		if err := json.Unmarshal(ev.Payload, &r); err != nil {
			return nil, fmt.Errorf("normalize: canonical trade decode: %w", err)
		}
		r.Timestamp = ts
		return r, nil

	case schema.DataTypeFundingRate:
		var r schema.FundingRate
		if err := json.Unmarshal(ev.Payload, &r); err != nil {
			return nil, fmt.Errorf("normalize: canonical funding rate decode: %w", err)
		}
		var times struct {
			FundingTime     string `json:"funding_time"`
			NextFundingTime string `json:"next_funding_time"`
		}
		if err := json.Unmarshal(ev.Payload, &times); err != nil {
			return nil, fmt.Errorf("normalize: canonical funding rate times: %w", err)
		}
		r.Timestamp = ts
		if r.FundingTime, err = time.Parse(clickhouseTimeLayout, times.FundingTime); err != nil {
			return nil, fmt.Errorf("normalize: canonical funding_time: %w", err)
		}
		if r.NextFundingTime, err = time.Parse(clickhouseTimeLayout, times.NextFundingTime); err != nil {
			return nil, fmt.Errorf("normalize: canonical next_funding_time: %w", err)
		}
		return r, nil

	case schema.DataTypeOpenInterest:
		var r schema.OpenInterest
		if err := json.Unmarshal(ev.Payload, &r); err != nil {
			return nil, fmt.Errorf("normalize: canonical open interest decode: %w", err)
		}
		r.Timestamp = ts
		return r, nil

	case schema.DataTypeLiquidation:
		var r schema.Liquidation
		if err := json.Unmarshal(ev.Payload, &r); err != nil {
			return nil, fmt.Errorf("normalize: canonical liquidation decode: %w", err)
		}
		r.Timestamp = ts
		return r, nil

	case schema.DataTypeLSRTopPosition:
		var r schema.LSRTopPosition
		if err := json.Unmarshal(ev.Payload, &r); err != nil {
			return nil, fmt.Errorf("normalize: canonical top-position LSR decode: %w", err)
		}
		r.Timestamp = ts
		return r, nil

	case schema.DataTypeLSRAllAccount:
		var r schema.LSRAllAccount
		if err := json.Unmarshal(ev.Payload, &r); err != nil {
			return nil, fmt.Errorf("normalize: canonical account LSR decode: %w", err)
		}
		r.Timestamp = ts
		return r, nil

	case schema.DataTypeVolatilityIndex:
		var r schema.VolatilityIndex
		if err := json.Unmarshal(ev.Payload, &r); err != nil {
			return nil, fmt.Errorf("normalize: canonical volatility index decode: %w", err)
		}
		r.Timestamp = ts
		return r, nil

	default:
		return nil, fmt.Errorf("normalize: canonical replay not supported for data type %q", ev.DataType)
	}
}
