// Package ratelimit enforces a process-wide minimum interval between
// outbound requests so concurrent extraction workers never exceed the
// upstream's request-per-second guidance.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for rate limiter operations.
var (
	aqRateLimitAcquiresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aq_rate_limit_acquires_total",
		Help: "Total number of rate limiter slots granted",
	})

	aqRateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "aq_rate_limit_wait_seconds",
		Help:    "Time spent waiting for a rate limiter slot",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})
)

// Config holds the rate limiter configuration.
type Config struct {
	// MaxRequestsPerSecond bounds the request rate across all workers.
	// Zero or negative disables pacing.
	MaxRequestsPerSecond int

	// MinDelay is a floor on the interval between requests, applied even
	// when MaxRequestsPerSecond alone would allow tighter spacing.
	MinDelay time.Duration
}

// DefaultConfig returns the default rate limiter configuration.
func DefaultConfig() Config {
	return Config{
		MaxRequestsPerSecond: 5,
		MinDelay:             100 * time.Millisecond,
	}
}

// Limiter grants request slots spaced at least one interval apart,
// process-wide. Safe for concurrent use; the underlying token bucket
// serializes reservations so no two callers share an elapsed-time baseline.
type Limiter struct {
	interval time.Duration
	bucket   *rate.Limiter
	logger   zerolog.Logger

	mu   sync.Mutex
	last time.Time
}

// New creates a rate limiter from the given configuration.
func New(cfg Config, logger zerolog.Logger) *Limiter {
	interval := effectiveInterval(cfg)
	if interval <= 0 {
		return &Limiter{logger: logger}
	}

	return &Limiter{
		interval: interval,
		// Burst 1: a slot frees exactly one interval after the previous one.
		bucket: rate.NewLimiter(rate.Every(interval), 1),
		logger: logger,
	}
}

// effectiveInterval derives the inter-request spacing from the configured
// rate, honoring the minimum-delay floor.
func effectiveInterval(cfg Config) time.Duration {
	if cfg.MaxRequestsPerSecond <= 0 {
		return 0
	}

	interval := time.Second / time.Duration(cfg.MaxRequestsPerSecond)
	if cfg.MinDelay > interval {
		interval = cfg.MinDelay
	}
	return interval
}

// Interval returns the enforced spacing between permitted requests.
// Zero means pacing is disabled.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Acquire blocks until a request slot is available and returns the
// permitted timestamp of that slot. Permitted timestamps across all
// concurrent callers are spaced at least Interval apart. Cancelling the
// context releases the reservation and returns the context error.
func (l *Limiter) Acquire(ctx context.Context) (time.Time, error) {
	now := time.Now()
	if l.bucket == nil {
		return now, nil
	}

	reservation := l.bucket.ReserveN(now, 1)

	// The bucket's delay round-trips tokens through float64 seconds and can
	// come back a nanosecond short of the interval. Clamp each slot against
	// the previous one so permitted timestamps never close up below
	// Interval.
	l.mu.Lock()
	permitted := now.Add(reservation.DelayFrom(now))
	if !l.last.IsZero() {
		if floor := l.last.Add(l.interval); permitted.Before(floor) {
			permitted = floor
		}
	}
	l.last = permitted
	l.mu.Unlock()

	if wait := time.Until(permitted); wait > 0 {
		l.logger.Debug().
			Dur("wait", wait).
			Msg("Waiting for rate limiter slot")

		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			reservation.Cancel()
			return time.Time{}, ctx.Err()
		case <-timer.C:
		}
	}

	aqRateLimitAcquiresTotal.Inc()
	aqRateLimitWaitSeconds.Observe(time.Since(now).Seconds())

	return permitted, nil
}
