// Package deribit implements the connector.Connector interface for
// Deribit options and perpetuals. Deribit's public WebSocket speaks
// JSON-RPC 2.0: subscriptions are requests, pushes arrive as
// "subscription" notifications keyed by channel name.
package deribit

import (
	"context"
	"encoding/json"
	"fmt"
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

const wsBase = "wss://www.deribit.com/ws/api/v2"

type Connector struct {
	marketType schema.MarketType
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
		limiter:    limiter,
		breaker:    circuit.New("deribit", circuit.DefaultConfig()),
		backoff:    connector.DefaultBackoff(),
		events:     make(chan connector.RawEvent, 4096),
		done:       make(chan struct{}),
	}
}

func (c *Connector) Events() <-chan connector.RawEvent { return c.events }

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
		log.Warn().Err(err).Str("exchange", "deribit").Dur("retry_in", delay).Msg("session ended, reconnecting")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

// channelsFor builds Deribit's channel names for an instrument: order
// book, trades, and (for the BTC/ETH index) the volatility index.
func channelsFor(symbol string, marketType schema.MarketType) []string {
	instID := toInstrumentID(symbol, marketType)
	channels := []string{
		"book." + instID + ".100ms",
		"trades." + instID + ".raw",
	}
	if marketType == schema.Perpetual {
		channels = append(channels, "ticker."+instID+".100ms")
	}
	base := strings.ToLower(strings.SplitN(symbol, "-", 2)[0])
	channels = append(channels, "deribit_volatility_index."+base)
	return channels
}

func toInstrumentID(symbol string, marketType schema.MarketType) string {
	if marketType == schema.Perpetual {
		base := strings.SplitN(symbol, "-", 2)[0]
		return base + "-PERPETUAL"
	}
	// Options instruments are already in Deribit's own id form and
	// pass normalize.Symbol unchanged; see its options-passthrough rule.
	return symbol
}

func (c *Connector) runSession(ctx context.Context) error {
	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 15 * time.Second

	conn, _, err := dialer.DialContext(ctx, wsBase, nil)
	if err != nil {
		return &errs.ConnectorError{Source: "deribit", Code: errs.CodeNetworkError, Message: "dial failed", Temporary: true, Cause: err}
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.reconnectCount++
	symbols := append([]string(nil), c.symbols...)
	mt := c.marketType
	c.mu.Unlock()

	defer func() {
		conn.Close()
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	var channels []string
	for _, sym := range symbols {
		channels = append(channels, channelsFor(sym, mt)...)
	}
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "public/subscribe",
		Params:  map[string]interface{}{"channels": channels},
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return &errs.ConnectorError{Source: "deribit", Code: errs.CodeNetworkError, Message: "subscribe write failed", Temporary: true, Cause: err}
	}

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
			return &errs.ConnectorError{Source: "deribit", Code: errs.CodeNetworkError, Message: "read failed", Temporary: true, Cause: err}
		}

		c.mu.Lock()
		c.lastMessageAt = time.Now()
		c.mu.Unlock()

		if err := c.dispatch(data); err != nil {
			log.Debug().Err(err).Msg("deribit: skipped non-subscription message")
		}
	}
}

type rpcNotification struct {
	Method string `json:"method"`
	Params struct {
		Channel string          `json:"channel"`
		Data    json.RawMessage `json:"data"`
	} `json:"params"`
}

func (c *Connector) dispatch(raw []byte) error {
	var note rpcNotification
	if err := json.Unmarshal(raw, &note); err != nil {
		return fmt.Errorf("deribit: decode notification: %w", err)
	}
	if note.Method != "subscription" {
		return fmt.Errorf("deribit: non-subscription message (method %q)", note.Method)
	}

	parts := strings.Split(note.Params.Channel, ".")
	if len(parts) < 2 {
		return fmt.Errorf("deribit: malformed channel %q", note.Params.Channel)
	}

	var dataType schema.DataType
	var symbol string
	switch parts[0] {
	case "book":
		dataType = schema.DataTypeOrderbook
		symbol = normalize.Symbol(parts[1])
	case "trades":
		dataType = schema.DataTypeTrade
		symbol = normalize.Symbol(parts[1])
	case "ticker":
		// A single ticker push carries both funding and open interest
		// fields; emit it under both data types and let the normalizer
		// pick the fields each mapper needs.
		symbol = normalize.Symbol(parts[1])
		c.emit(schema.DataTypeFundingRate, symbol, note.Params.Data)
		c.emit(schema.DataTypeOpenInterest, symbol, note.Params.Data)
		return nil
	case "deribit_volatility_index":
		dataType = schema.DataTypeVolatilityIndex
		symbol = strings.ToUpper(parts[1])
	default:
		return fmt.Errorf("deribit: unrecognized channel kind %q", parts[0])
	}

	c.emit(dataType, symbol, note.Params.Data)
	return nil
}

func (c *Connector) emit(dataType schema.DataType, symbol string, payload json.RawMessage) {
	c.events <- connector.RawEvent{
		Exchange:   schema.Deribit,
		MarketType: c.marketType,
		DataType:   dataType,
		Symbol:     symbol,
		ReceivedAt: time.Now(),
		Payload:    payload,
	}
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
