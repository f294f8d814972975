package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/marketprism/marketprism/internal/connector/ratelimit"
	"github.com/marketprism/marketprism/internal/decimalx"
	"github.com/marketprism/marketprism/internal/errs"
	"github.com/marketprism/marketprism/internal/schema"
)

// Snapshot is a depth-REST order book snapshot used to seed the local
// book before WebSocket diffs are applied, per the SNAPSHOT_PENDING
// state in the order book sync state machine.
type Snapshot struct {
	LastUpdateID int64
	Bids         []schema.PriceLevel
	Asks         []schema.PriceLevel
}

type restDepthResponse struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// FetchSnapshot pulls a full depth snapshot for symbol via REST, the
// standard recovery path whenever the local book needs reseeding.
func (c *Connector) FetchSnapshot(ctx context.Context, symbol string, limit int) (Snapshot, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, ratelimit.Key("binance", "rest")); err != nil {
			return Snapshot{}, err
		}
	}

	base := spotRESTBase
	if c.marketType != schema.Spot {
		base = futRESTBase
	}
	rawSymbol := stripDash(symbol)
	url := fmt.Sprintf("%s/api/v3/depth?symbol=%s&limit=%d", base, rawSymbol, limit)
	if c.marketType != schema.Spot {
		url = fmt.Sprintf("%s/fapi/v1/depth?symbol=%s&limit=%d", base, rawSymbol, limit)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Snapshot{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Snapshot{}, &errs.ConnectorError{Source: "binance", Code: errs.CodeNetworkError, Message: "snapshot request failed", Temporary: true, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 418 {
		return Snapshot{}, &errs.ConnectorError{Source: "binance", Code: errs.CodeRateLimit, Message: "snapshot request throttled", RateLimited: true, Temporary: true, HTTPStatus: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, &errs.ConnectorError{Source: "binance", Code: errs.CodeAPIError, Message: "unexpected snapshot status", HTTPStatus: resp.StatusCode}
	}

	var parsed restDepthResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Snapshot{}, &errs.ConnectorError{Source: "binance", Code: errs.CodeInvalidData, Message: "malformed snapshot body", Cause: err}
	}

	bids, err := toLevels(parsed.Bids)
	if err != nil {
		return Snapshot{}, err
	}
	asks, err := toLevels(parsed.Asks)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{LastUpdateID: parsed.LastUpdateID, Bids: bids, Asks: asks}, nil
}

func toLevels(raw [][]string) ([]schema.PriceLevel, error) {
	levels := make([]schema.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		if len(pair) != 2 {
			return nil, fmt.Errorf("binance: malformed price level %v", pair)
		}
		price, err := decimalx.Parse(pair[0])
		if err != nil {
			return nil, err
		}
		qty, err := decimalx.Parse(pair[1])
		if err != nil {
			return nil, err
		}
		levels = append(levels, schema.PriceLevel{Price: price, Quantity: qty})
	}
	return levels, nil
}

func stripDash(symbol string) string {
	out := make([]byte, 0, len(symbol))
	for i := 0; i < len(symbol); i++ {
		if symbol[i] != '-' {
			out = append(out, symbol[i])
		}
	}
	return string(out)
}
