// Package backoff computes retry delays: exponential growth with random
// jitter, capped at a ceiling, with server-provided Retry-After hints
// taking precedence when they ask for a longer wait.
package backoff

import (
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// Policy holds the backoff configuration. It is a pure value; Delay performs
// no I/O and keeps no state between calls.
type Policy struct {
	// Base is the delay for the first retry.
	Base time.Duration

	// Ceiling caps the exponential delay and any Retry-After hint.
	Ceiling time.Duration

	// JitterFraction adds uniform random jitter in [0, delay*JitterFraction].
	JitterFraction float64

	// Rand returns a value in [0, 1). Defaults to math/rand when nil,
	// injectable so tests can pin jitter.
	Rand func() float64
}

// DefaultPolicy returns the default backoff policy.
func DefaultPolicy() Policy {
	return Policy{
		Base:           1500 * time.Millisecond,
		Ceiling:        60 * time.Second,
		JitterFraction: 0.1,
	}
}

// Delay returns the sleep duration before retry number attempt (1-indexed).
// The exponential schedule is min(Base * 2^(attempt-1), Ceiling) plus
// jitter. A positive retryAfter hint wins when it is larger than the
// computed delay; hints are still capped at Ceiling so a pathological
// header cannot park a worker indefinitely.
func (p Policy) Delay(attempt int, retryAfter time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := time.Duration(float64(p.Base) * math.Pow(2, float64(attempt-1)))
	if delay > p.Ceiling || delay < 0 {
		delay = p.Ceiling
	}

	if p.JitterFraction > 0 {
		random := p.Rand
		if random == nil {
			random = rand.Float64
		}
		delay += time.Duration(float64(delay) * p.JitterFraction * random())
	}

	if retryAfter > delay {
		delay = retryAfter
		if delay > p.Ceiling {
			delay = p.Ceiling
		}
	}

	if delay < 0 {
		delay = 0
	}
	return delay
}

// ParseRetryAfter extracts a Retry-After hint from response headers.
// Accepts an integer number of seconds or an HTTP date. Returns 0 when the
// header is absent or unparseable.
func ParseRetryAfter(headers http.Header) time.Duration {
	header := headers.Get("Retry-After")
	if header == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(header); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}

	if at, err := http.ParseTime(header); err == nil {
		wait := time.Until(at)
		if wait < 0 {
			return 0
		}
		return wait
	}

	return 0
}
