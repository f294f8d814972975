package consume

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/marketprism/marketprism/internal/schema"
)

// ackableMsg is the slice of jetstream.Msg this package actually
// needs, kept narrow so tests can fake it without modeling the whole
// jetstream.Msg interface.
type ackableMsg interface {
	Data() []byte
	Ack() error
}

type pending struct {
	msg     ackableMsg
	payload []byte
}

// batcher accumulates messages for one data type until flush is
// called, either because it reached its policy size or its flush
// timer fired.
type batcher struct {
	dataType schema.DataType
	sink     Sink
	items    []pending
}

func newBatcher(dataType schema.DataType, policy BatchPolicy, sink Sink) *batcher {
	return &batcher{dataType: dataType, sink: sink, items: make([]pending, 0, policy.Size)}
}

func (b *batcher) add(msg ackableMsg) {
	b.items = append(b.items, pending{msg: msg, payload: msg.Data()})
}

func (b *batcher) len() int { return len(b.items) }

// flush hands the accumulated batch to the sink and acks every message
// only once the sink confirms it's durable. A failed flush leaves the
// messages unacked; JetStream redelivers them after ack_wait, so
// nothing is silently dropped.
func (b *batcher) flush(ctx context.Context) {
	if len(b.items) == 0 {
		return
	}
	payloads := make([][]byte, len(b.items))
	for i, it := range b.items {
		payloads[i] = it.payload
	}

	if err := b.sink.InsertBatch(ctx, b.dataType, payloads); err != nil {
		log.Error().Err(err).Str("data_type", string(b.dataType)).Int("batch_size", len(b.items)).
			Msg("consume: batch persist failed, leaving unacked for redelivery")
		b.items = b.items[:0]
		return
	}

	for _, it := range b.items {
		if err := it.msg.Ack(); err != nil {
			log.Warn().Err(err).Str("data_type", string(b.dataType)).Msg("consume: ack failed")
		}
	}
	b.items = b.items[:0]
}
