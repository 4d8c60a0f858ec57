// Package client provides the resilient fetch orchestrator shared by all
// extraction workers: rate-limited, retried with backoff, and guarded by a
// circuit breaker.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/soar-data/aq-api-client/pkg/backoff"
	"github.com/soar-data/aq-api-client/pkg/breaker"
	"github.com/soar-data/aq-api-client/pkg/cache"
	"github.com/soar-data/aq-api-client/pkg/ratelimit"
	"github.com/soar-data/aq-api-client/pkg/session"
)

// Prometheus metrics for fetch operations.
var (
	aqRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aq_requests_total",
		Help: "Total upstream requests by endpoint and status",
	}, []string{"endpoint", "status"})

	aqRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aq_request_duration_seconds",
		Help:    "Upstream request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	aqErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aq_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})

	aqRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aq_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	aqRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aq_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	aqRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aq_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RequestSpec describes a single read-only fetch.
type RequestSpec struct {
	// URL is the target URL; query parameters may be embedded or supplied
	// via Query.
	URL string

	// Query are extra query parameters merged into the URL.
	Query url.Values

	// Timeout overrides the session's default per-request timeout when
	// positive.
	Timeout time.Duration
}

// Config holds the client configuration.
type Config struct {
	// Rate limiting across all workers.
	MaxRequestsPerSecond int
	MinDelay             time.Duration

	// Circuit breaker.
	BreakerThreshold uint32
	BreakerCooldown  time.Duration

	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// Backoff policy for retry delays.
	Backoff backoff.Policy

	// Redis enables the optional response cache when non-nil.
	Redis    *redis.Client
	CacheTTL time.Duration
}

// DefaultConfig returns a safe default configuration matching the upstream
// API guidance the pipeline was tuned for.
func DefaultConfig() Config {
	return Config{
		MaxRequestsPerSecond: 5,
		MinDelay:             100 * time.Millisecond,
		BreakerThreshold:     5,
		BreakerCooldown:      1800 * time.Second,
		MaxRetries:           6,
		Backoff:              backoff.DefaultPolicy(),
	}
}

// Client orchestrates rate limiting, retries, and circuit breaking for
// JSON fetches. One instance is shared by all workers; all mutable shared
// state (limiter, breaker) lives here rather than in package globals.
type Client struct {
	limiter *ratelimit.Limiter
	breaker *breaker.Breaker
	cache   *cache.Manager
	config  Config
	logger  zerolog.Logger
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}
	if cfg.Backoff.Base <= 0 {
		return nil, fmt.Errorf("backoff base must be positive (got %v)", cfg.Backoff.Base)
	}
	if cfg.Backoff.Ceiling < cfg.Backoff.Base {
		return nil, fmt.Errorf("backoff ceiling %v below base %v", cfg.Backoff.Ceiling, cfg.Backoff.Base)
	}

	logger := log.With().Str("component", "aq-client").Logger()

	var cacheManager *cache.Manager
	if cfg.Redis != nil {
		cacheManager = cache.NewManager(cfg.Redis, cfg.CacheTTL)
	}

	return &Client{
		limiter: ratelimit.New(ratelimit.Config{
			MaxRequestsPerSecond: cfg.MaxRequestsPerSecond,
			MinDelay:             cfg.MinDelay,
		}, logger),
		breaker: breaker.New(breaker.Config{
			Name:             "upstream",
			FailureThreshold: cfg.BreakerThreshold,
			Cooldown:         cfg.BreakerCooldown,
		}, logger),
		cache:  cacheManager,
		config: cfg,
		logger: logger,
	}, nil
}

// Breaker exposes the circuit breaker state (for callers and tests).
func (c *Client) Breaker() *breaker.Breaker {
	return c.breaker
}

// attemptFailure carries one attempt's outcome through the retry driver.
type attemptFailure struct {
	err        error
	class      ErrorClass
	retryable  bool
	retryAfter time.Duration
}

// FetchJSON fetches the spec's URL through the worker's session and returns
// the decoded JSON value (object or array, returned unchanged). All
// failures surface as typed errors: ErrCircuitOpen, *HTTPError, ErrTimeout
// (wrapped), *DecodeError, or *RetriesExhaustedError wrapping the last
// reason. Safe to call from many workers concurrently.
func (c *Client) FetchJSON(ctx context.Context, sess *session.Session, spec RequestSpec) (any, error) {
	endpoint := endpointLabel(spec.URL)

	startTime := time.Now()
	defer func() {
		aqRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	cacheKey := cache.Key{URL: spec.URL, Query: spec.Query}
	if c.cache != nil {
		body, err := c.cache.Get(ctx, cacheKey)
		if err == nil {
			var value any
			if err := json.Unmarshal(body, &value); err == nil {
				c.logger.Debug().Str("endpoint", endpoint).Msg("Cache hit")
				aqRequestsTotal.WithLabelValues(endpoint, "cache_hit").Inc()
				return value, nil
			}
			// Corrupt entry: fall through to a real fetch.
			_ = c.cache.Delete(ctx, cacheKey)
		} else if err != cache.ErrCacheMiss {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
	}

	maxAttempts := c.config.MaxRetries + 1
	var lastFailure *attemptFailure

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		value, body, failure := c.attempt(ctx, sess, spec, endpoint)
		if failure == nil {
			if attempt > 1 {
				c.logger.Info().
					Str("endpoint", endpoint).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			if c.cache != nil {
				if err := c.cache.Set(ctx, cacheKey, body); err != nil {
					c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Failed to cache response")
				}
			}
			return value, nil
		}

		aqErrorsTotal.WithLabelValues(string(failure.class)).Inc()

		if !failure.retryable {
			return nil, failure.err
		}

		lastFailure = failure
		if attempt >= maxAttempts {
			break
		}

		delay := c.config.Backoff.Delay(attempt, failure.retryAfter)
		aqRetriesTotal.WithLabelValues(string(failure.class)).Inc()
		aqRetryBackoffSeconds.WithLabelValues(string(failure.class)).Observe(delay.Seconds())

		c.logger.Debug().
			Str("endpoint", endpoint).
			Str("error_class", string(failure.class)).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	aqRetryExhaustedTotal.WithLabelValues(string(lastFailure.class)).Inc()
	c.logger.Warn().
		Str("endpoint", endpoint).
		Str("error_class", string(lastFailure.class)).
		Int("max_attempts", maxAttempts).
		Msg("Retry attempts exhausted")

	return nil, &RetriesExhaustedError{Attempts: maxAttempts, LastErr: lastFailure.err}
}

// attempt performs a single breaker-gated, rate-limited request. On success
// it returns the decoded value and the raw body; on failure it classifies
// the outcome for the retry driver.
func (c *Client) attempt(ctx context.Context, sess *session.Session, spec RequestSpec, endpoint string) (any, json.RawMessage, *attemptFailure) {
	// Breaker check comes first: a rejected call consumes no rate limiter
	// token and performs no network I/O.
	done, err := c.breaker.Allow()
	if err != nil {
		aqRequestsTotal.WithLabelValues(endpoint, "circuit_open").Inc()
		return nil, nil, &attemptFailure{err: ErrCircuitOpen, class: ErrorClassCircuitOpen}
	}

	if _, err := c.limiter.Acquire(ctx); err != nil {
		// Local abort, not an upstream verdict. The done callback must
		// still run or a half-open trial slot would leak; failure is the
		// conservative outcome.
		done(false)
		return nil, nil, &attemptFailure{err: err, class: ErrorClassNetwork}
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = sess.Timeout()
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := sess.NewRequest(reqCtx, spec.URL, spec.Query)
	if err != nil {
		done(false)
		return nil, nil, &attemptFailure{err: fmt.Errorf("build request: %w", err), class: ErrorClassClient}
	}

	resp, err := sess.Do(req)
	if err != nil {
		done(false)
		aqRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")

		if ctx.Err() != nil {
			// Parent context cancelled or expired: surface it, no retry.
			return nil, nil, &attemptFailure{err: ctx.Err(), class: ErrorClassNetwork}
		}
		if isTimeout(err) {
			return nil, nil, &attemptFailure{
				err:       fmt.Errorf("%w: %v", ErrTimeout, err),
				class:     ErrorClassNetwork,
				retryable: true,
			}
		}
		return nil, nil, &attemptFailure{err: err, class: ErrorClassNetwork, retryable: true}
	}
	defer resp.Body.Close()

	aqRequestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
		class := classifyStatus(resp.StatusCode)

		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Upstream request error")

		if class == ErrorClassClient {
			// 4xx other than 429: the upstream answered authoritatively,
			// so the breaker records a success and the call fails fast.
			done(true)
			return nil, nil, &attemptFailure{err: httpErr, class: class}
		}

		done(false)
		return nil, nil, &attemptFailure{
			err:        httpErr,
			class:      class,
			retryable:  true,
			retryAfter: backoff.ParseRetryAfter(resp.Header),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		done(false)
		if isTimeout(err) {
			return nil, nil, &attemptFailure{
				err:       fmt.Errorf("%w: %v", ErrTimeout, err),
				class:     ErrorClassNetwork,
				retryable: true,
			}
		}
		return nil, nil, &attemptFailure{
			err:       fmt.Errorf("read response body: %w", err),
			class:     ErrorClassNetwork,
			retryable: true,
		}
	}

	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		// Malformed JSON from an otherwise-2xx response is treated as a
		// transient upstream fault.
		done(false)
		return nil, nil, &attemptFailure{
			err:       &DecodeError{Err: err},
			class:     ErrorClassDecode,
			retryable: true,
		}
	}

	done(true)
	return value, body, nil
}

// isTimeout reports whether err is a deadline or network timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// endpointLabel derives a bounded metrics label from a URL.
func endpointLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "unknown"
	}
	return u.Path
}
