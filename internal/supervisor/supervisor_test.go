package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketprism/marketprism/internal/connector"
	"github.com/marketprism/marketprism/internal/errs"
)

func fastConfig() Config {
	return Config{
		Backoff:      connector.Backoff{Base: time.Millisecond, Cap: 5 * time.Millisecond},
		GraceTimeout: time.Second,
	}
}

type fakeDeadMarker struct {
	marked []string
}

func (f *fakeDeadMarker) MarkDead(task string) {
	f.marked = append(f.marked, task)
}

func TestSupervisor_ReturnsNilWhenContextCancelled(t *testing.T) {
	task := Task{Name: "collector", Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	s := New([]Task{task}, nil, fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := s.Run(ctx)
	assert.NoError(t, err)
}

func TestSupervisor_RestartsTransientFailureAndEventuallySucceeds(t *testing.T) {
	var calls int32
	task := Task{Name: "hot-consumer", Run: func(ctx context.Context) error {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			return &errs.ConnectorError{Source: "nats", Code: errs.CodeNetworkError, Temporary: true}
		}
		<-ctx.Done()
		return ctx.Err()
	}}
	s := New([]Task{task}, nil, fastConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_ = s.Run(ctx)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(3))
}

func TestSupervisor_FatalFailureMarksTaskDeadAndReturnsError(t *testing.T) {
	boom := errors.New("invalid schema, cannot continue")
	task := Task{Name: "cold-replicator", Run: func(ctx context.Context) error {
		return boom
	}}
	marker := &fakeDeadMarker{}
	s := New([]Task{task}, marker, fastConfig())

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, boom, err)
	assert.Equal(t, []string{"cold-replicator"}, marker.marked)
}

func TestSupervisor_OneFatalTaskStopsTheOthers(t *testing.T) {
	boom := errors.New("fatal")
	var otherRan int32
	fatalTask := Task{Name: "a", Run: func(ctx context.Context) error {
		return boom
	}}
	otherTask := Task{Name: "b", Run: func(ctx context.Context) error {
		atomic.AddInt32(&otherRan, 1)
		<-ctx.Done()
		return ctx.Err()
	}}
	s := New([]Task{fatalTask, otherTask}, nil, fastConfig())

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&otherRan))
}
