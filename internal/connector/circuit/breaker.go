// Package circuit wraps github.com/sony/gobreaker into a per-exchange
// breaker that speaks the pipeline's own errs.ConnectorError shape,
// so a tripped breaker looks like any other classified connector
// failure to callers.
package circuit

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/marketprism/marketprism/internal/errs"
)

// Config tunes a Breaker. Zero values fall back to DefaultConfig.
type Config struct {
	MaxFailures      uint32
	SuccessThreshold uint32
	OpenTimeout      time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxFailures:      5,
		SuccessThreshold: 3,
		OpenTimeout:      30 * time.Second,
	}
}

// Breaker guards calls against a single exchange connection. One
// Breaker is owned per (exchange, market type) connector instance.
type Breaker struct {
	exchange string
	inner    *gobreaker.CircuitBreaker[any]
}

func New(exchange string, cfg Config) *Breaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = DefaultConfig().MaxFailures
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = DefaultConfig().SuccessThreshold
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = DefaultConfig().OpenTimeout
	}

	settings := gobreaker.Settings{
		Name:        exchange + "-connector",
		MaxRequests: cfg.SuccessThreshold,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("exchange", exchange).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}

	return &Breaker{
		exchange: exchange,
		inner:    gobreaker.NewCircuitBreaker[any](settings),
	}
}

// Execute runs fn through the breaker. A tripped breaker short-circuits
// fn entirely and returns a CodeCircuitOpen ConnectorError.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.inner.Execute(func() (any, error) {
		return nil, fn()
	})
	if err == nil {
		return nil
	}
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return &errs.ConnectorError{
			Source:    b.exchange,
			Code:      errs.CodeCircuitOpen,
			Message:   "circuit breaker open",
			Temporary: true,
			Cause:     err,
		}
	}
	return err
}

// State reports the breaker's current gobreaker state name.
func (b *Breaker) State() string {
	return b.inner.State().String()
}
