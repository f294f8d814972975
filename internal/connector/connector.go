// Package connector defines the shared interface every exchange
// connector implements, plus the reconnect/backoff policy common to
// all of them. Concrete exchanges live in the binance, okx, and
// deribit subpackages; each wraps a gorilla/websocket session (and, for
// REST-only feeds like funding rate, a poller) behind this interface so
// the supervisor and the rest of the pipeline never branch on exchange.
package connector

import (
	"context"
	"math/rand"
	"time"

	"github.com/marketprism/marketprism/internal/schema"
)

// RawEvent is one exchange message after JSON decoding but before
// normalization, tagged with enough routing information for the
// normalizer to pick the right mapper.
type RawEvent struct {
	Exchange   schema.Exchange
	MarketType schema.MarketType
	DataType   schema.DataType
	Symbol     string
	ReceivedAt time.Time
	Payload    []byte
}

// Health summarizes a connector's current state for the health server.
type Health struct {
	Connected       bool
	LastMessageAt   time.Time
	ReconnectCount  int
	CircuitState    string
}

// Connector is implemented once per exchange. Subscribe starts
// streaming for the given symbols and blocks managing the connection
// until ctx is cancelled or Shutdown is called; events flow out on the
// channel returned by Events.
type Connector interface {
	Subscribe(ctx context.Context, marketType schema.MarketType, symbols []string) error
	Events() <-chan RawEvent
	Reconnect(ctx context.Context) error
	Health() Health
	Shutdown(ctx context.Context) error
}

// Backoff computes full-jitter exponential backoff delays, base 1s
// capped at 30s, matching the reconnect policy every connector uses.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Cap: 30 * time.Second}
}

// Delay returns the backoff delay for the given zero-indexed attempt,
// chosen uniformly in [0, min(cap, base*2^attempt)].
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	exp := b.Base << uint(min(attempt, 30))
	if exp <= 0 || exp > b.Cap {
		exp = b.Cap
	}
	return time.Duration(rand.Int63n(int64(exp) + 1))
}
