package publish

import (
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackQueue_PushWithinCapacity(t *testing.T) {
	q := newFallbackQueue(3)
	q.push("a", nil, []byte("1"))
	q.push("b", nil, []byte("2"))
	assert.Equal(t, 2, q.len())
	assert.Equal(t, int64(0), q.droppedTotal())
}

func TestFallbackQueue_OverflowDropsOldest(t *testing.T) {
	q := newFallbackQueue(2)
	q.push("a", nil, []byte("1"))
	q.push("b", nil, []byte("2"))
	q.push("c", nil, []byte("3"))

	require.Equal(t, 2, q.len())
	assert.Equal(t, int64(1), q.droppedTotal())

	var seen []string
	q.drain(func(subject string, header nats.Header, payload []byte) error {
		seen = append(seen, subject)
		return nil
	})
	assert.Equal(t, []string{"b", "c"}, seen)
}

func TestFallbackQueue_DrainKeepsFailedItems(t *testing.T) {
	q := newFallbackQueue(10)
	q.push("a", nil, []byte("1"))
	q.push("b", nil, []byte("2"))

	drained := q.drain(func(subject string, header nats.Header, payload []byte) error {
		if subject == "a" {
			return errors.New("still down")
		}
		return nil
	})

	assert.Equal(t, 1, drained)
	assert.Equal(t, 1, q.len())
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "published", OutcomePublished.String())
	assert.Equal(t, "queued", OutcomeQueued.String())
	assert.Equal(t, "dropped", OutcomeDropped.String())
	assert.Equal(t, "unknown", Outcome(99).String())
}
