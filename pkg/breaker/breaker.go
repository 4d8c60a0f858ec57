// Package breaker gates outbound requests behind a circuit breaker so
// sustained upstream failure stops the pipeline from hammering a degraded
// API. After a run of consecutive failures the circuit opens for a cooldown
// window, then permits a single half-open trial before closing again.
package breaker

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Prometheus metrics for circuit breaker operations.
var (
	aqBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aq_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	})

	aqBreakerTripsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aq_breaker_trips_total",
		Help: "Total number of times the circuit breaker opened",
	})

	aqBreakerRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aq_breaker_rejections_total",
		Help: "Total number of requests rejected while the circuit was open",
	})
)

// ErrOpen is returned by Allow when the circuit is open or a half-open
// trial is already in flight. Callers must fail fast without network I/O.
var ErrOpen = errors.New("circuit breaker open")

// State represents the circuit breaker state.
type State int

const (
	// StateClosed permits all calls.
	StateClosed State = iota

	// StateHalfOpen permits a single trial call after cooldown.
	StateHalfOpen

	// StateOpen rejects all calls until cooldown elapses.
	StateOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Config holds the circuit breaker configuration.
type Config struct {
	// Name identifies the breaker in logs and errors.
	Name string

	// FailureThreshold is the number of consecutive failures that trips
	// the circuit open.
	FailureThreshold uint32

	// Cooldown is how long the circuit stays open before permitting a
	// half-open trial.
	Cooldown time.Duration
}

// DefaultConfig returns the default breaker configuration.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		Cooldown:         1800 * time.Second,
	}
}

// Breaker is a process-wide circuit breaker. State transitions are atomic
// with respect to concurrent callers: while a half-open trial is
// outstanding every other Allow is rejected.
type Breaker struct {
	cb     *gobreaker.TwoStepCircuitBreaker
	logger zerolog.Logger
}

// New creates a circuit breaker from the given configuration.
func New(cfg Config, logger zerolog.Logger) *Breaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 1800 * time.Second
	}

	b := &Breaker{logger: logger}
	b.cb = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1, // exactly one half-open trial at a time
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: b.onStateChange,
	})

	return b
}

// Allow reports whether a call may proceed. On success it returns a done
// callback that must be invoked with the call's outcome; otherwise it
// returns ErrOpen and the caller must not perform any network I/O.
func (b *Breaker) Allow() (func(success bool), error) {
	done, err := b.cb.Allow()
	if err != nil {
		aqBreakerRejectionsTotal.Inc()
		b.logger.Warn().
			Str("state", b.State().String()).
			Msg("Request rejected by circuit breaker")
		return nil, ErrOpen
	}
	return done, nil
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// ConsecutiveFailures returns the current run of consecutive failures.
// A single success resets it to zero.
func (b *Breaker) ConsecutiveFailures() uint32 {
	return b.cb.Counts().ConsecutiveFailures
}

// onStateChange logs transitions and keeps the state gauge current.
func (b *Breaker) onStateChange(name string, from, to gobreaker.State) {
	switch to {
	case gobreaker.StateOpen:
		aqBreakerState.Set(2)
		aqBreakerTripsTotal.Inc()
		b.logger.Error().
			Str("breaker", name).
			Str("from", from.String()).
			Msg("Circuit breaker opened - blocking upstream requests")
	case gobreaker.StateHalfOpen:
		aqBreakerState.Set(1)
		b.logger.Warn().
			Str("breaker", name).
			Msg("Circuit breaker half-open - permitting one trial request")
	case gobreaker.StateClosed:
		aqBreakerState.Set(0)
		b.logger.Info().
			Str("breaker", name).
			Msg("Circuit breaker closed - upstream recovered")
	}
}
