package consume

import (
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"

	"github.com/marketprism/marketprism/internal/schema"
)

func TestDurableName_DistinctForLSRVariants(t *testing.T) {
	assert.NotEqual(t, DurableName(schema.DataTypeLSRTopPosition), DurableName(schema.DataTypeLSRAllAccount))
}

func TestDeliverPolicy_OrderbookUsesLastPerSubject(t *testing.T) {
	assert.Equal(t, jetstream.DeliverLastPerSubjectPolicy, deliverPolicy(schema.DataTypeOrderbook))
	assert.Equal(t, jetstream.DeliverAllPolicy, deliverPolicy(schema.DataTypeTrade))
}

func TestStreamName_OrderbookUsesSnapshotStream(t *testing.T) {
	assert.Equal(t, "ORDERBOOK_SNAP", streamName(schema.DataTypeOrderbook))
	assert.Equal(t, "MARKET_DATA", streamName(schema.DataTypeTrade))
}

func TestDefaultBatchPolicies_CoversAllDataTypes(t *testing.T) {
	policies := DefaultBatchPolicies()
	for _, dt := range schema.AllDataTypes {
		p, ok := policies[dt]
		assert.True(t, ok, "missing batch policy for %s", dt)
		assert.Positive(t, p.Size)
		assert.Positive(t, p.FlushInterval)
	}
}

func TestDefaultBatchPolicies_HighFrequencyTiers(t *testing.T) {
	policies := DefaultBatchPolicies()
	assert.Equal(t, 150, policies[schema.DataTypeTrade].Size)
	assert.Equal(t, 150, policies[schema.DataTypeOrderbook].Size)
	assert.Equal(t, 50, policies[schema.DataTypeFundingRate].Size)
	assert.Equal(t, 20, policies[schema.DataTypeLiquidation].Size)
}
