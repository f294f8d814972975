// Package okx implements the connector.Connector interface for OKX
// spot and swap (perpetual) markets over its public WebSocket, plus a
// REST poller for funding rate and open interest.
package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
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
	wsPublicBase = "wss://ws.okx.com:8443/ws/v5/public"
	restBase     = "https://www.okx.com"
)

type Connector struct {
	marketType schema.MarketType
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	breaker    *circuit.Breaker
	backoff    connector.Backoff

	mu            sync.RWMutex
	conn          *websocket.Conn
	symbols       []string
	connected     bool
	lastMessageAt time.Time
	reconnectCount int

	events chan connector.RawEvent
	done   chan struct{}
}

func New(marketType schema.MarketType, limiter *ratelimit.Limiter) *Connector {
	return &Connector{
		marketType: marketType,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    limiter,
		breaker:    circuit.New("okx", circuit.DefaultConfig()),
		backoff:    connector.DefaultBackoff(),
		events:     make(chan connector.RawEvent, 4096),
		done:       make(chan struct{}),
	}
}

func (c *Connector) Events() <-chan connector.RawEvent { return c.events }

func instType(mt schema.MarketType) string {
	if mt == schema.Perpetual {
		return "SWAP"
	}
	return "SPOT"
}

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
		log.Warn().Err(err).Str("exchange", "okx").Dur("retry_in", delay).Msg("session ended, reconnecting")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}
	}
}

type subscribeArg struct {
	Channel  string `json:"channel"`
	InstID   string `json:"instId,omitempty"`
	InstType string `json:"instType,omitempty"`
}

type subscribeRequest struct {
	Op   string         `json:"op"`
	Args []subscribeArg `json:"args"`
}

func (c *Connector) runSession(ctx context.Context) error {
	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 15 * time.Second

	conn, _, err := dialer.DialContext(ctx, wsPublicBase, nil)
	if err != nil {
		return &errs.ConnectorError{Source: "okx", Code: errs.CodeNetworkError, Message: "dial failed", Temporary: true, Cause: err}
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

	it := instType(mt)
	args := make([]subscribeArg, 0, len(symbols)*2)
	for _, sym := range symbols {
		instID := sym
		if it == "SWAP" {
			instID = sym + "-SWAP"
		}
		args = append(args,
			subscribeArg{Channel: "books", InstID: instID},
			subscribeArg{Channel: "trades", InstID: instID},
		)
	}
	if it == "SWAP" {
		args = append(args, subscribeArg{Channel: "liquidation-orders", InstType: "SWAP"})
	}
	req := subscribeRequest{Op: "subscribe", Args: args}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return &errs.ConnectorError{Source: "okx", Code: errs.CodeNetworkError, Message: "subscribe write failed", Temporary: true, Cause: err}
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
			return &errs.ConnectorError{Source: "okx", Code: errs.CodeNetworkError, Message: "read failed", Temporary: true, Cause: err}
		}

		c.mu.Lock()
		c.lastMessageAt = time.Now()
		c.mu.Unlock()

		if err := c.dispatch(data); err != nil {
			log.Debug().Err(err).Msg("okx: skipped non-data message")
		}
	}
}

type pushMessage struct {
	Arg struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data []json.RawMessage `json:"data"`
}

func (c *Connector) dispatch(raw []byte) error {
	var msg pushMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("okx: decode push message: %w", err)
	}
	if msg.Arg.Channel == "" || len(msg.Data) == 0 {
		return fmt.Errorf("okx: non-channel message (event/ack)")
	}

	if msg.Arg.Channel == "liquidation-orders" {
		return c.dispatchLiquidations(msg.Data)
	}

	var dataType schema.DataType
	switch msg.Arg.Channel {
	case "books", "books5", "books-l2-tbt":
		dataType = schema.DataTypeOrderbook
	case "trades":
		dataType = schema.DataTypeTrade
	default:
		return fmt.Errorf("okx: unrecognized channel %q", msg.Arg.Channel)
	}

	symbol := normalize.Symbol(msg.Arg.InstID)
	for _, d := range msg.Data {
		c.events <- connector.RawEvent{
			Exchange:   schema.OKX,
			MarketType: c.marketType,
			DataType:   dataType,
			Symbol:     symbol,
			ReceivedAt: time.Now(),
			Payload:    d,
		}
	}
	return nil
}

// liquidationBatch is one push on the "liquidation-orders" channel: a
// per-instType batch whose own "details" array carries one entry per
// instrument, each with its own instId.
type liquidationBatch struct {
	InstType string `json:"instType"`
	Details  []struct {
		InstID    string          `json:"instId"`
		Side      string          `json:"side"`
		Price     string          `json:"bkPx"`
		Size      string          `json:"sz"`
		Timestamp string          `json:"ts"`
		Raw       json.RawMessage `json:"-"`
	} `json:"details"`
}

func (c *Connector) dispatchLiquidations(data []json.RawMessage) error {
	for _, d := range data {
		var batch liquidationBatch
		if err := json.Unmarshal(d, &batch); err != nil {
			return fmt.Errorf("okx: decode liquidation batch: %w", err)
		}
		for _, detail := range batch.Details {
			payload, err := json.Marshal(detail)
			if err != nil {
				return err
			}
			c.events <- connector.RawEvent{
				Exchange:   schema.OKX,
				MarketType: c.marketType,
				DataType:   schema.DataTypeLiquidation,
				Symbol:     normalize.Symbol(detail.InstID),
				ReceivedAt: time.Now(),
				Payload:    payload,
			}
		}
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
