package binance

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

// PollFundingAndOpenInterest periodically pulls funding rate and open
// interest for perpetual symbols, since Binance does not push either
// over the combined WebSocket stream. It runs until ctx is cancelled.
func (c *Connector) PollFundingAndOpenInterest(ctx context.Context, symbols []string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sym := range symbols {
				if err := c.pollOne(ctx, sym); err != nil {
					log.Warn().Err(err).Str("symbol", sym).Msg("binance: funding/OI poll failed")
				}
			}
		}
	}
}

type premiumIndexResponse struct {
	Symbol          string `json:"symbol"`
	LastFundingRate string `json:"lastFundingRate"`
	NextFundingTime int64  `json:"nextFundingTime"`
	Time            int64  `json:"time"`
}

type openInterestResponse struct {
	Symbol       string `json:"symbol"`
	OpenInterest string `json:"openInterest"`
	Time         int64  `json:"time"`
}

// PollLongShortRatios periodically pulls top-trader-position and
// global-account long/short ratios, both REST-only on Binance.
func (c *Connector) PollLongShortRatios(ctx context.Context, symbols []string, period string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sym := range symbols {
				if err := c.pollRatio(ctx, sym, period, "topLongShortPositionRatio", schema.DataTypeLSRTopPosition); err != nil {
					log.Warn().Err(err).Str("symbol", sym).Msg("binance: top-position LSR poll failed")
				}
				if err := c.pollRatio(ctx, sym, period, "globalLongShortAccountRatio", schema.DataTypeLSRAllAccount); err != nil {
					log.Warn().Err(err).Str("symbol", sym).Msg("binance: account LSR poll failed")
				}
			}
		}
	}
}

func (c *Connector) pollRatio(ctx context.Context, symbol, period, endpoint string, dataType schema.DataType) error {
	raw := stripDash(symbol)
	url := fmt.Sprintf("%s/futures/data/%s?symbol=%s&period=%s&limit=1", futRESTBase, endpoint, raw, period)

	var rows []json.RawMessage
	if err := c.getJSON(ctx, url, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("binance: empty %s response", endpoint)
	}

	c.events <- connector.RawEvent{
		Exchange:   schema.Binance,
		MarketType: schema.Perpetual,
		DataType:   dataType,
		Symbol:     normalize.Symbol(symbol),
		ReceivedAt: time.Now(),
		Payload:    rows[len(rows)-1],
	}
	return nil
}

func (c *Connector) pollOne(ctx context.Context, symbol string) error {
	raw := stripDash(symbol)

	fundingURL := fmt.Sprintf("%s/fapi/v1/premiumIndex?symbol=%s", futRESTBase, raw)
	var premium premiumIndexResponse
	if err := c.getJSON(ctx, fundingURL, &premium); err != nil {
		return err
	}
	payload, err := json.Marshal(premium)
	if err != nil {
		return err
	}
	c.events <- connector.RawEvent{
		Exchange:   schema.Binance,
		MarketType: schema.Perpetual,
		DataType:   schema.DataTypeFundingRate,
		Symbol:     normalize.Symbol(symbol),
		ReceivedAt: time.Now(),
		Payload:    payload,
	}

	oiURL := fmt.Sprintf("%s/fapi/v1/openInterest?symbol=%s", futRESTBase, raw)
	var oi openInterestResponse
	if err := c.getJSON(ctx, oiURL, &oi); err != nil {
		return err
	}
	oiPayload, err := json.Marshal(oi)
	if err != nil {
		return err
	}
	c.events <- connector.RawEvent{
		Exchange:   schema.Binance,
		MarketType: schema.Perpetual,
		DataType:   schema.DataTypeOpenInterest,
		Symbol:     normalize.Symbol(symbol),
		ReceivedAt: time.Now(),
		Payload:    oiPayload,
	}
	return nil
}

func (c *Connector) getJSON(ctx context.Context, url string, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, ratelimit.Key("binance", "rest")); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &errs.ConnectorError{Source: "binance", Code: errs.CodeNetworkError, Message: "poll request failed", Temporary: true, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 418 {
		return &errs.ConnectorError{Source: "binance", Code: errs.CodeRateLimit, Message: "poll throttled", RateLimited: true, Temporary: true, HTTPStatus: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return &errs.ConnectorError{Source: "binance", Code: errs.CodeAPIError, Message: "unexpected poll status", HTTPStatus: resp.StatusCode}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
