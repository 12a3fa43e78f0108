// Package breaker wraps sony/gobreaker with the fabric's conventions:
// breakers are identified by the logical name of the downstream
// dependency, trip after a fixed number of consecutive transport
// failures, allow a single half-open probe after the timeout, and emit
// prometheus state/call metrics. An optional fallback runs when the
// breaker short-circuits.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/sparkmatch/sparkmatch/internal/apierr"
	"github.com/sparkmatch/sparkmatch/internal/metrics"
)

// Settings configures one breaker.
type Settings struct {
	// Name is the logical downstream identity, not a URL.
	Name string
	// FailMax is the consecutive-failure threshold (typical 3-5).
	FailMax uint32
	// Timeout is how long the breaker stays open (typical 30-60s).
	Timeout time.Duration
	// Fallback, when set, is invoked instead of failing while open.
	Fallback func(ctx context.Context) (any, error)
}

// Breaker guards calls to one downstream dependency.
type Breaker struct {
	name     string
	cb       *gobreaker.CircuitBreaker
	fallback func(ctx context.Context) (any, error)
}

// New creates a breaker with the fabric defaults filled in.
func New(s Settings) *Breaker {
	if s.FailMax == 0 {
		s.FailMax = 5
	}
	if s.Timeout == 0 {
		s.Timeout = 60 * time.Second
	}

	b := &Breaker{name: s.Name, fallback: s.Fallback}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1, // one half-open probe
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.FailMax
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation is not a downstream failure.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(stateValue(to))
			log.Warn().
				Str("dependency", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})
	metrics.BreakerState.WithLabelValues(s.Name).Set(stateValue(gobreaker.StateClosed))
	return b
}

// Execute runs fn through the breaker. While the breaker is open the call
// short-circuits: the fallback runs if registered, otherwise a SYS_002
// unavailable error is returned without touching the network.
func (b *Breaker) Execute(ctx context.Context, fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	// Sampled after the call, so the request that trips the breaker is
	// attributed to the state it produced.
	state := b.cb.State().String()
	switch {
	case err == nil:
		metrics.BreakerCalls.WithLabelValues(b.name, state, "success").Inc()
		return result, nil
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.BreakerCalls.WithLabelValues(b.name, state, "short_circuit").Inc()
		if b.fallback != nil {
			return b.fallback(ctx)
		}
		return nil, apierr.Unavailable(b.name)
	default:
		metrics.BreakerCalls.WithLabelValues(b.name, state, "failure").Inc()
		return nil, err
	}
}

// State exposes the current breaker state for tests and health surfaces.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}
