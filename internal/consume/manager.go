// Package consume owns the hot-storage consumer side: one durable
// JetStream consumer and one size/time batcher per canonical data
// type, acking each message only once its batch has been durably
// persisted (inserted into ClickHouse, or spooled on its behalf).
package consume

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/marketprism/marketprism/internal/schema"
)

// BatchPolicy is the per-data-type batching policy: flush at Size
// messages or FlushInterval elapsed, whichever comes first.
type BatchPolicy struct {
	Size          int
	FlushInterval time.Duration
}

// DefaultBatchPolicies returns the three-tier policy set.
func DefaultBatchPolicies() map[schema.DataType]BatchPolicy {
	highFreq := BatchPolicy{Size: 150, FlushInterval: time.Second}
	midFreq := BatchPolicy{Size: 50, FlushInterval: 2 * time.Second}
	lowFreq := BatchPolicy{Size: 20, FlushInterval: 5 * time.Second}
	return map[schema.DataType]BatchPolicy{
		schema.DataTypeTrade:           highFreq,
		schema.DataTypeOrderbook:       highFreq,
		schema.DataTypeFundingRate:     midFreq,
		schema.DataTypeOpenInterest:    midFreq,
		schema.DataTypeLiquidation:     lowFreq,
		schema.DataTypeLSRTopPosition:  lowFreq,
		schema.DataTypeLSRAllAccount:   lowFreq,
		schema.DataTypeVolatilityIndex: lowFreq,
	}
}

// Sink persists one batch of raw record payloads for dataType. A nil
// return means the batch is durable (inserted, or handed off to a
// spool) and JetStream is safe to ack; a non-nil return means neither
// happened and the batch must be redelivered.
type Sink interface {
	InsertBatch(ctx context.Context, dataType schema.DataType, payloads [][]byte) error
}

const ackWait = 60 * time.Second

// DurableName returns the durable consumer name for a data type.
// lsr_top_position and lsr_all_account get distinct consumers, never
// merged into one subscription.
func DurableName(dataType schema.DataType) string {
	return "hot-consumer-" + string(dataType)
}

func deliverPolicy(dataType schema.DataType) jetstream.DeliverPolicy {
	if dataType == schema.DataTypeOrderbook {
		return jetstream.DeliverLastPerSubjectPolicy
	}
	return jetstream.DeliverAllPolicy
}

func streamName(dataType schema.DataType) string {
	if dataType == schema.DataTypeOrderbook {
		return "ORDERBOOK_SNAP"
	}
	return "MARKET_DATA"
}

// Manager owns one durable consumer and batcher per canonical data
// type it's configured for.
type Manager struct {
	js       jetstream.JetStream
	sink     Sink
	policies map[schema.DataType]BatchPolicy

	wg sync.WaitGroup
}

func NewManager(js jetstream.JetStream, sink Sink, policies map[schema.DataType]BatchPolicy) *Manager {
	if policies == nil {
		policies = DefaultBatchPolicies()
	}
	return &Manager{js: js, sink: sink, policies: policies}
}

// Start idempotently creates the durable consumer for every configured
// data type and launches its run loop. It returns once every consumer
// has been created (or the first creation error); the loops themselves
// run until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) error {
	for _, dt := range schema.AllDataTypes {
		policy, ok := m.policies[dt]
		if !ok {
			continue
		}

		cons, err := m.js.CreateOrUpdateConsumer(ctx, streamName(dt), jetstream.ConsumerConfig{
			Durable:       DurableName(dt),
			FilterSubject: string(dt) + ".>",
			DeliverPolicy: deliverPolicy(dt),
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       ackWait,
		})
		if err != nil {
			return fmt.Errorf("consume: creating consumer for %s: %w", dt, err)
		}

		m.wg.Add(1)
		go m.run(ctx, dt, cons, policy)
	}
	return nil
}

// Wait blocks until every run loop has returned (ctx cancelled and
// drained).
func (m *Manager) Wait() { m.wg.Wait() }

func (m *Manager) run(ctx context.Context, dataType schema.DataType, cons jetstream.Consumer, policy BatchPolicy) {
	defer m.wg.Done()

	msgs, err := cons.Messages()
	if err != nil {
		log.Error().Err(err).Str("data_type", string(dataType)).Msg("consume: starting message iterator")
		return
	}
	defer msgs.Stop()

	msgCh := make(chan jetstream.Msg)
	go func() {
		for {
			msg, err := msgs.Next()
			if err != nil {
				close(msgCh)
				return
			}
			msgCh <- msg
		}
	}()

	batch := newBatcher(dataType, policy, m.sink)
	timer := time.NewTimer(policy.FlushInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			batch.flush(context.Background())
			return
		case msg, ok := <-msgCh:
			if !ok {
				batch.flush(context.Background())
				return
			}
			batch.add(msg)
			if batch.len() >= policy.Size {
				batch.flush(ctx)
				resetTimer(timer, policy.FlushInterval)
			}
		case <-timer.C:
			batch.flush(ctx)
			timer.Reset(policy.FlushInterval)
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
