package publish

import (
	"sync"

	"github.com/nats-io/nats.go"
)

type fallbackItem struct {
	subject string
	header  nats.Header
	payload []byte
}

// fallbackQueue is a bounded, oldest-drop-on-overflow buffer of
// publishes that couldn't reach JetStream. It trades durability for
// availability: a sustained broker outage eventually loses the oldest
// queued messages rather than blocking every connector forever.
type fallbackQueue struct {
	mu       sync.Mutex
	items    []fallbackItem
	capacity int
	dropped  int64
}

func newFallbackQueue(capacity int) *fallbackQueue {
	return &fallbackQueue{capacity: capacity}
}

func (q *fallbackQueue) push(subject string, header nats.Header, payload []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.capacity {
		q.items = q.items[1:]
		q.dropped++
	}
	q.items = append(q.items, fallbackItem{subject: subject, header: header, payload: payload})
}

// drain attempts to republish every queued item via publish, keeping
// only the ones that still fail. Returns how many were successfully
// drained.
func (q *fallbackQueue) drain(publish func(subject string, header nats.Header, payload []byte) error) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	remaining := q.items[:0]
	drained := 0
	for _, it := range q.items {
		if err := publish(it.subject, it.header, it.payload); err != nil {
			remaining = append(remaining, it)
			continue
		}
		drained++
	}
	q.items = remaining
	return drained
}

func (q *fallbackQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *fallbackQueue) droppedTotal() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
