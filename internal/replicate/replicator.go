package replicate

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/marketprism/marketprism/internal/health"
)

// StateStore tracks the last successfully copied window per table, so
// a restarted replicator resumes instead of re-copying or skipping.
type StateStore interface {
	LastWindowEnd(ctx context.Context, table string) (time.Time, error)
	SetLastWindowEnd(ctx context.Context, table string, windowEnd time.Time) error
}

// Copier performs the actual hot-to-cold row copy for one window and
// reports how many rows moved.
type Copier interface {
	CopyWindow(ctx context.Context, table string, window TimeRange) (int64, error)
}

// Deleter removes a copied window's rows from the hot tier. Only
// invoked when Config.DeleteAfterCopy is set.
type Deleter interface {
	DeleteWindow(ctx context.Context, table string, window TimeRange) error
}

type Config struct {
	Tables          []string
	DeleteAfterCopy bool
	PollInterval    time.Duration
	MaxAttempts     int
	// WindowSize and SafetyLag override the package defaults of the
	// same name; zero means use the default.
	WindowSize time.Duration
	SafetyLag  time.Duration
	// Backoff overrides the retry delay function; nil uses backoffFor.
	// Exposed mainly so tests don't have to sleep through real backoff.
	Backoff func(attempt int) time.Duration
}

func DefaultConfig(tables []string) Config {
	return Config{
		Tables:       tables,
		PollInterval: time.Minute,
		MaxAttempts:  8,
		WindowSize:   WindowSize,
		SafetyLag:    SafetyLag,
	}
}

func (c Config) backoff(attempt int) time.Duration {
	if c.Backoff != nil {
		return c.Backoff(attempt)
	}
	return backoffFor(attempt)
}

func (c Config) windowSize() time.Duration {
	if c.WindowSize > 0 {
		return c.WindowSize
	}
	return WindowSize
}

func (c Config) safetyLag() time.Duration {
	if c.SafetyLag > 0 {
		return c.SafetyLag
	}
	return SafetyLag
}

// Replicator drives the windowed hot to cold copy, one table at a
// time, each table independently tracked in StateStore.
type Replicator struct {
	state   StateStore
	copier  Copier
	deleter Deleter
	cfg     Config
	metrics *health.Metrics
}

func New(state StateStore, copier Copier, deleter Deleter, cfg Config) *Replicator {
	return &Replicator{state: state, copier: copier, deleter: deleter, cfg: cfg}
}

// SetMetrics attaches the ReplicationRowsCopied counter runTable reports
// into. Optional; a nil metrics leaves it untouched.
func (r *Replicator) SetMetrics(m *health.Metrics) {
	r.metrics = m
}

// Run polls for newly eligible windows on every configured table until
// ctx is cancelled.
func (r *Replicator) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Replicator) tick(ctx context.Context) {
	for _, table := range r.cfg.Tables {
		if err := r.runTable(ctx, table); err != nil {
			log.Error().Err(err).Str("table", table).Msg("replicate: table copy failed")
		}
	}
}

// runTable copies at most one window for table: the oldest one whose
// trailing edge has cleared the safety lag. Returning without copying
// is normal steady-state behavior once the replicator has caught up.
func (r *Replicator) runTable(ctx context.Context, table string) error {
	lastEnd, err := r.state.LastWindowEnd(ctx, table)
	if err != nil {
		return err
	}

	window, ok := NextWindowWithParams(lastEnd, time.Now(), r.cfg.windowSize(), r.cfg.safetyLag())
	if !ok {
		return nil
	}

	rows, err := r.copyWithRetry(ctx, table, window)
	if err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.ReplicationRowsCopied.WithLabelValues(table).Add(float64(rows))
	}

	if r.cfg.DeleteAfterCopy {
		if err := r.deleteWithRetry(ctx, table, window); err != nil {
			return err
		}
	}

	log.Info().Str("table", table).Int64("rows", rows).
		Time("window_from", window.From).Time("window_to", window.To).
		Msg("replicate: window copied")
	return r.state.SetLastWindowEnd(ctx, table, window.To)
}

func (r *Replicator) copyWithRetry(ctx context.Context, table string, window TimeRange) (int64, error) {
	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(r.cfg.backoff(attempt - 1)):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
		rows, err := r.copier.CopyWindow(ctx, table, window)
		if err == nil {
			return rows, nil
		}
		lastErr = err
		log.Warn().Err(err).Str("table", table).Int("attempt", attempt+1).Msg("replicate: copy attempt failed")
	}
	return 0, lastErr
}

func (r *Replicator) deleteWithRetry(ctx context.Context, table string, window TimeRange) error {
	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(r.cfg.backoff(attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err := r.deleter.DeleteWindow(ctx, table, window)
		if err == nil {
			return nil
		}
		lastErr = err
		log.Warn().Err(err).Str("table", table).Int("attempt", attempt+1).Msg("replicate: delete attempt failed")
	}
	return lastErr
}
