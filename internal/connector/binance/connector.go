// Package binance implements the connector.Connector interface for
// Binance spot and USDM perpetual markets: a combined-stream
// WebSocket session for order book diffs and trades, plus REST pollers
// for funding rate and open interest.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/marketprism/marketprism/internal/connector"
	"github.com/marketprism/marketprism/internal/connector/circuit"
	"github.com/marketprism/marketprism/internal/connector/ratelimit"
	"github.com/marketprism/marketprism/internal/errs"
	"github.com/marketprism/marketprism/internal/normalize"
	"github.com/marketprism/marketprism/internal/schema"
)

const (
	spotWSBase = "wss://stream.binance.com:9443"
	futWSBase  = "wss://fstream.binance.com"
	spotRESTBase = "https://api.binance.com"
	futRESTBase  = "https://fapi.binance.com"
)

// Connector streams Binance market data over one combined WebSocket
// connection per market type, reconnecting with full-jitter backoff.
type Connector struct {
	marketType schema.MarketType
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	breaker    *circuit.Breaker
	backoff    connector.Backoff

	mu             sync.RWMutex
	conn           *websocket.Conn
	symbols        []string
	connected      bool
	lastMessageAt  time.Time
	reconnectCount int

	events chan connector.RawEvent
	done   chan struct{}
}

func New(marketType schema.MarketType, limiter *ratelimit.Limiter) *Connector {
	return &Connector{
		marketType: marketType,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    limiter,
		breaker:    circuit.New("binance", circuit.DefaultConfig()),
		backoff:    connector.DefaultBackoff(),
		events:     make(chan connector.RawEvent, 4096),
		done:       make(chan struct{}),
	}
}

func (c *Connector) Events() <-chan connector.RawEvent { return c.events }

func (c *Connector) wsBase() string {
	if c.marketType == schema.Spot {
		return spotWSBase
	}
	return futWSBase
}

// Subscribe opens the combined-stream WebSocket for symbols and blocks,
// reconnecting on failure, until ctx is cancelled.
func (c *Connector) Subscribe(ctx context.Context, marketType schema.MarketType, symbols []string) error {
	c.mu.Lock()
	c.marketType = marketType
	c.symbols = symbols
	c.mu.Unlock()

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		default:
		}

		err := c.breaker.Execute(func() error { return c.runSession(ctx) })
		if err == nil {
			attempt = 0
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		delay := c.backoff.Delay(attempt)
		attempt++
		log.Warn().Err(err).Str("exchange", "binance").Dur("retry_in", delay).Msg("session ended, reconnecting")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Connector) streamNames() []string {
	streams := make([]string, 0, len(c.symbols)*3)
	for _, sym := range c.symbols {
		lower := strings.ToLower(strings.ReplaceAll(sym, "-", ""))
		streams = append(streams, lower+"@depth@100ms", lower+"@trade")
		if c.marketType != schema.Spot {
			streams = append(streams, lower+"@forceOrder")
		}
	}
	return streams
}

func (c *Connector) runSession(ctx context.Context) error {
	streamPath := strings.Join(c.streamNames(), "/")
	u := c.wsBase() + "/stream?streams=" + url.QueryEscape(streamPath)

	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 15 * time.Second

	conn, _, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		return &errs.ConnectorError{Source: "binance", Code: errs.CodeNetworkError, Message: "dial failed", Temporary: true, Cause: err}
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.reconnectCount++
	c.mu.Unlock()

	defer func() {
		conn.Close()
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		default:
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return &errs.ConnectorError{Source: "binance", Code: errs.CodeNetworkError, Message: "read failed", Temporary: true, Cause: err}
		}

		c.mu.Lock()
		c.lastMessageAt = time.Now()
		c.mu.Unlock()

		if err := c.dispatch(data); err != nil {
			log.Error().Err(err).Msg("binance: failed to dispatch message")
		}
	}
}

type combinedEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

func (c *Connector) dispatch(raw []byte) error {
	var env combinedEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("binance: decode envelope: %w", err)
	}

	parts := strings.SplitN(env.Stream, "@", 2)
	if len(parts) != 2 {
		return fmt.Errorf("binance: malformed stream name %q", env.Stream)
	}
	symbol := normalize.Symbol(parts[0])

	var dataType schema.DataType
	switch {
	case strings.HasPrefix(parts[1], "depth"):
		dataType = schema.DataTypeOrderbook
	case strings.HasPrefix(parts[1], "trade"):
		dataType = schema.DataTypeTrade
	case strings.HasPrefix(parts[1], "forceOrder"):
		dataType = schema.DataTypeLiquidation
	default:
		return fmt.Errorf("binance: unrecognized stream kind %q", parts[1])
	}

	c.events <- connector.RawEvent{
		Exchange:   schema.Binance,
		MarketType: c.marketType,
		DataType:   dataType,
		Symbol:     symbol,
		ReceivedAt: time.Now(),
		Payload:    env.Data,
	}
	return nil
}

func (c *Connector) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	return nil
}

func (c *Connector) Health() connector.Health {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return connector.Health{
		Connected:      c.connected,
		LastMessageAt:  c.lastMessageAt,
		ReconnectCount: c.reconnectCount,
		CircuitState:   c.breaker.State(),
	}
}

func (c *Connector) Shutdown(ctx context.Context) error {
	close(c.done)
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}
