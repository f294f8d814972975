// Package supervisor runs a fixed set of long-lived tasks (the
// collector's per-exchange connectors, the hot-consumer's JetStream
// subscriptions, the cold-replicator's poll loop) under one process,
// restarting a task that fails transiently and escalating to a full
// shutdown when one fails for good.
package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/marketprism/marketprism/internal/connector"
	"github.com/marketprism/marketprism/internal/errs"
)

// Task is one supervised unit of work. Run blocks until ctx is
// cancelled or the task fails; a nil return means the task finished on
// its own and won't be restarted.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// DeadMarker receives notice when a task has failed for good, so the
// health server's /health endpoint can start reporting it.
type DeadMarker interface {
	MarkDead(task string)
}

// Config tunes restart behavior.
type Config struct {
	// Backoff computes the delay before restarting a task after its
	// Nth consecutive transient failure (zero-indexed). Defaults to
	// connector.DefaultBackoff's full-jitter schedule.
	Backoff connector.Backoff
	// GraceTimeout bounds how long Run waits for tasks to exit after
	// ctx is cancelled or a fatal error is observed.
	GraceTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{Backoff: connector.DefaultBackoff(), GraceTimeout: 30 * time.Second}
}

// Supervisor owns a set of Tasks and runs them concurrently until the
// parent context is cancelled or one task fails fatally.
type Supervisor struct {
	tasks []Task
	dead  DeadMarker
	cfg   Config
}

func New(tasks []Task, dead DeadMarker, cfg Config) *Supervisor {
	if cfg.Backoff == (connector.Backoff{}) {
		cfg.Backoff = connector.DefaultBackoff()
	}
	if cfg.GraceTimeout == 0 {
		cfg.GraceTimeout = 30 * time.Second
	}
	return &Supervisor{tasks: tasks, dead: dead, cfg: cfg}
}

// fatalTask pairs a task name with the error that killed it for good.
type fatalTask struct {
	name string
	err  error
}

// Run starts every task and blocks until ctx is cancelled (graceful
// shutdown, e.g. on SIGTERM) or a task fails fatally (a non-transient
// error). It returns the fatal error, if any; a nil return
// means every task stopped cleanly because ctx was cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	fatal := make(chan fatalTask, len(s.tasks))
	var wg sync.WaitGroup

	for _, task := range s.tasks {
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			s.runWithRestart(runCtx, t, fatal)
		}(task)
	}

	var fatalErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("supervisor: shutdown signal received, draining tasks")
	case f := <-fatal:
		log.Error().Err(f.err).Str("task", f.name).Msg("supervisor: task failed fatally, shutting down")
		fatalErr = f.err
		if s.dead != nil {
			s.dead.MarkDead(f.name)
		}
	}

	cancel() // tell every remaining task to stop

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.cfg.GraceTimeout):
		log.Warn().Dur("grace_timeout", s.cfg.GraceTimeout).Msg("supervisor: tasks did not drain in time")
	}

	return fatalErr
}

// runWithRestart runs t, restarting it with backoff on a transient
// failure, until ctx is cancelled or t fails fatally.
func (s *Supervisor) runWithRestart(ctx context.Context, t Task, fatal chan<- fatalTask) {
	attempt := 0
	for {
		err := t.Run(ctx)
		if err == nil {
			log.Info().Str("task", t.Name).Msg("supervisor: task exited cleanly")
			return
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}
		if !errs.Temporary(err) {
			select {
			case fatal <- fatalTask{name: t.Name, err: err}:
			default:
			}
			return
		}

		delay := s.cfg.Backoff.Delay(attempt)
		log.Warn().Err(err).Str("task", t.Name).Int("attempt", attempt+1).
			Dur("restart_in", delay).Msg("supervisor: task failed, restarting")
		attempt++

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}
