package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/marketprism/marketprism/internal/connector"
	"github.com/marketprism/marketprism/internal/connector/ratelimit"
	"github.com/marketprism/marketprism/internal/errs"
	"github.com/marketprism/marketprism/internal/normalize"
	"github.com/marketprism/marketprism/internal/schema"
)

type okxEnvelope struct {
	Code string            `json:"code"`
	Msg  string            `json:"msg"`
	Data []json.RawMessage `json:"data"`
}

// PollFundingAndOpenInterest pulls funding rate and open interest for
// swap instruments on a fixed interval; OKX does not push either over
// the public WebSocket's books/trades channels.
func (c *Connector) PollFundingAndOpenInterest(ctx context.Context, symbols []string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sym := range symbols {
				instID := sym + "-SWAP"
				if err := c.pollFunding(ctx, sym, instID); err != nil {
					log.Warn().Err(err).Str("symbol", sym).Msg("okx: funding poll failed")
				}
				if err := c.pollOpenInterest(ctx, sym, instID); err != nil {
					log.Warn().Err(err).Str("symbol", sym).Msg("okx: open interest poll failed")
				}
			}
		}
	}
}

func (c *Connector) pollFunding(ctx context.Context, symbol, instID string) error {
	data, err := c.getData(ctx, fmt.Sprintf("%s/api/v5/public/funding-rate?instId=%s", restBase, instID))
	if err != nil {
		return err
	}
	return c.emitFirst(schema.DataTypeFundingRate, symbol, data)
}

func (c *Connector) pollOpenInterest(ctx context.Context, symbol, instID string) error {
	data, err := c.getData(ctx, fmt.Sprintf("%s/api/v5/public/open-interest?instType=SWAP&instId=%s", restBase, instID))
	if err != nil {
		return err
	}
	return c.emitFirst(schema.DataTypeOpenInterest, symbol, data)
}

// PollLongShortRatio pulls OKX's top-trader contract long/short ratio,
// the closest public equivalent to Binance's position-ratio endpoint.
// OKX does not publish a separate all-account ratio, so only
// DataTypeLSRTopPosition is produced here.
func (c *Connector) PollLongShortRatio(ctx context.Context, symbols []string, period string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sym := range symbols {
				instID := sym + "-SWAP"
				url := fmt.Sprintf("%s/api/v5/rubik/stat/contracts/long-short-account-ratio-contract-top-trader?instId=%s&period=%s", restBase, instID, period)
				data, err := c.getData(ctx, url)
				if err != nil {
					log.Warn().Err(err).Str("symbol", sym).Msg("okx: LSR poll failed")
					continue
				}
				if err := c.emitFirst(schema.DataTypeLSRTopPosition, sym, data); err != nil {
					log.Warn().Err(err).Str("symbol", sym).Msg("okx: LSR emit failed")
				}
			}
		}
	}
}

func (c *Connector) emitFirst(dataType schema.DataType, symbol string, data []json.RawMessage) error {
	if len(data) == 0 {
		return fmt.Errorf("okx: empty data array")
	}
	c.events <- connector.RawEvent{
		Exchange:   schema.OKX,
		MarketType: schema.Perpetual,
		DataType:   dataType,
		Symbol:     normalize.Symbol(symbol),
		ReceivedAt: time.Now(),
		Payload:    data[0],
	}
	return nil
}

func (c *Connector) getData(ctx context.Context, url string) ([]json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, ratelimit.Key("okx", "rest")); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &errs.ConnectorError{Source: "okx", Code: errs.CodeNetworkError, Message: "poll request failed", Temporary: true, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &errs.ConnectorError{Source: "okx", Code: errs.CodeRateLimit, Message: "poll throttled", RateLimited: true, Temporary: true, HTTPStatus: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &errs.ConnectorError{Source: "okx", Code: errs.CodeAPIError, Message: "unexpected poll status", HTTPStatus: resp.StatusCode}
	}

	var env okxEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, &errs.ConnectorError{Source: "okx", Code: errs.CodeInvalidData, Message: "malformed poll body", Cause: err}
	}
	if env.Code != "0" {
		return nil, &errs.ConnectorError{Source: "okx", Code: errs.CodeAPIError, Message: env.Msg}
	}
	return env.Data, nil
}
