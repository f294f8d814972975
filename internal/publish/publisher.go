// Package publish routes canonical records onto NATS JetStream subjects.
// Every subject is derived exclusively through schema.Subject so a
// malformed subject can never reach the wire; per-subject publishes are
// serialized through one mutex-guarded writer per subject to preserve
// publish-order, and a bounded in-memory queue absorbs transient
// JetStream outages so a slow broker degrades throughput instead of
// dropping data outright.
package publish

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/marketprism/marketprism/internal/schema"
)

const (
	ackTimeout         = 5 * time.Second
	maxPublishAttempts = 3
	retryBaseDelay     = 200 * time.Millisecond
	fallbackCapacity   = 10000
	fallbackDrainEvery = 5 * time.Second

	streamMarketData   = "MARKET_DATA"
	streamOrderbookSnap = "ORDERBOOK_SNAP"

	headerDataType    = "data_type"
	headerExchange    = "exchange"
	headerMarketType  = "market_type"
	headerContentType = "content_type"
	contentTypeJSON   = "application/json"
)

// Outcome reports how a Publish call was ultimately handled.
type Outcome int

const (
	OutcomePublished Outcome = iota
	OutcomeQueued
	OutcomeDropped
)

func (o Outcome) String() string {
	switch o {
	case OutcomePublished:
		return "published"
	case OutcomeQueued:
		return "queued"
	case OutcomeDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Publisher owns the JetStream connection and one writer per subject
// seen so far.
type Publisher struct {
	js jetstream.JetStream

	mu      sync.Mutex
	writers map[string]*subjectWriter

	fallback *fallbackQueue

	done chan struct{}
}

// New wraps an already-connected *nats.Conn. Callers own the
// connection's lifecycle (reconnect handling, credentials, TLS); this
// package only talks JetStream once connected.
func New(nc *nats.Conn) (*Publisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("publish: creating jetstream context: %w", err)
	}
	p := &Publisher{
		js:       js,
		writers:  make(map[string]*subjectWriter),
		fallback: newFallbackQueue(fallbackCapacity),
		done:     make(chan struct{}),
	}
	return p, nil
}

// EnsureStreams idempotently creates the two streams every MarketPrism
// subject lands in. Safe to call on every startup.
func (p *Publisher) EnsureStreams(ctx context.Context) error {
	_, err := p.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name: streamMarketData,
		Subjects: []string{
			string(schema.DataTypeTrade) + ".>",
			string(schema.DataTypeFundingRate) + ".>",
			string(schema.DataTypeOpenInterest) + ".>",
			string(schema.DataTypeLiquidation) + ".>",
			string(schema.DataTypeLSRTopPosition) + ".>",
			string(schema.DataTypeLSRAllAccount) + ".>",
			string(schema.DataTypeVolatilityIndex) + ".>",
		},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("publish: ensuring %s stream: %w", streamMarketData, err)
	}

	_, err = p.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamOrderbookSnap,
		Subjects:  []string{string(schema.DataTypeOrderbook) + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    6 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("publish: ensuring %s stream: %w", streamOrderbookSnap, err)
	}
	return nil
}

// Run starts the background fallback drainer and blocks until ctx is
// done. Callers run this in its own goroutine.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(fallbackDrainEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case <-ticker.C:
			p.drainFallback(ctx)
		}
	}
}

// Shutdown stops the background drainer started by Run.
func (p *Publisher) Shutdown() {
	close(p.done)
}

// QueueDepth reports how many messages currently sit in the fallback
// queue, for health reporting.
func (p *Publisher) QueueDepth() int { return p.fallback.len() }

// DroppedTotal reports the lifetime count of messages evicted from the
// fallback queue because it was full.
func (p *Publisher) DroppedTotal() int64 { return p.fallback.droppedTotal() }

// Publish derives the canonical subject for (dataType, exchange,
// marketType, symbol) and publishes payload to it, retrying transient
// JetStream failures before falling back to the bounded in-memory
// queue.
func (p *Publisher) Publish(ctx context.Context, exchange schema.Exchange, marketType schema.MarketType, dataType schema.DataType, symbol string, payload []byte) (Outcome, error) {
	subject, err := schema.Subject(dataType, exchange, marketType, symbol)
	if err != nil {
		return OutcomeDropped, err
	}
	header := nats.Header{
		headerDataType:    []string{string(dataType)},
		headerExchange:    []string{string(exchange)},
		headerMarketType:  []string{string(marketType)},
		headerContentType: []string{contentTypeJSON},
	}
	return p.writerFor(subject).publish(ctx, header, payload)
}

func (p *Publisher) writerFor(subject string) *subjectWriter {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.writers[subject]
	if !ok {
		w = &subjectWriter{subject: subject, js: p.js, fallback: p.fallback}
		p.writers[subject] = w
	}
	return w
}

func (p *Publisher) drainFallback(ctx context.Context) {
	drained := p.fallback.drain(func(subject string, header nats.Header, payload []byte) error {
		pubCtx, cancel := context.WithTimeout(ctx, ackTimeout)
		defer cancel()
		_, err := p.js.PublishMsg(pubCtx, &nats.Msg{Subject: subject, Header: header, Data: payload})
		return err
	})
	if drained > 0 {
		log.Debug().Int("drained", drained).Int("remaining", p.fallback.len()).Msg("publish: drained fallback queue")
	}
}

// subjectWriter serializes every publish for one subject through its
// own mutex, so retries and fallback pushes for that subject can never
// reorder relative to each other.
type subjectWriter struct {
	subject  string
	js       jetstream.JetStream
	fallback *fallbackQueue

	mu sync.Mutex
}

func (w *subjectWriter) publish(ctx context.Context, header nats.Header, payload []byte) (Outcome, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	msg := &nats.Msg{Subject: w.subject, Header: header, Data: payload}

	delay := retryBaseDelay
	var lastErr error
	for attempt := 0; attempt < maxPublishAttempts; attempt++ {
		pubCtx, cancel := context.WithTimeout(ctx, ackTimeout)
		_, err := w.js.PublishMsg(pubCtx, msg)
		cancel()
		if err == nil {
			return OutcomePublished, nil
		}
		lastErr = err

		if attempt == maxPublishAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			lastErr = ctx.Err()
			break
		}
		delay *= 2
	}

	log.Warn().Err(lastErr).Str("subject", w.subject).Int("attempts", maxPublishAttempts).
		Msg("publish: jetstream publish failed, queueing to fallback")
	w.fallback.push(w.subject, header, payload)
	return OutcomeQueued, nil
}
