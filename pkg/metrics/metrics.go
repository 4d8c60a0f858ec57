// Package metrics provides the centralized Prometheus metrics registry for
// the resilient API client. All metrics are defined in their respective
// packages (client, ratelimit, breaker, session, cache) to maintain
// modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - aq_rate_limit_acquires_total (Counter): Rate limiter slots granted
//   - aq_rate_limit_wait_seconds (Histogram): Time spent waiting for a slot
//
// Circuit Breaker Metrics (pkg/breaker):
//   - aq_breaker_state (Gauge): Breaker state (0=closed, 1=half-open, 2=open)
//   - aq_breaker_trips_total (Counter): Times the breaker opened
//   - aq_breaker_rejections_total (Counter): Calls rejected while open
//
// Session Metrics (pkg/session):
//   - aq_sessions_created_total (Counter): Worker sessions created
//
// Cache Metrics (pkg/cache):
//   - aq_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - aq_cache_misses_total (Counter): Cache misses
//   - aq_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - aq_requests_total{endpoint, status} (Counter): Requests by endpoint and outcome
//   - aq_request_duration_seconds{endpoint} (Histogram): Fetch duration by endpoint
//   - aq_errors_total{class} (Counter): Errors by class
//
// Retry Metrics (pkg/client):
//   - aq_retries_total{error_class} (Counter): Retry attempts by error class
//   - aq_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - aq_retry_exhausted_total{error_class} (Counter): Fetches that exhausted max retries
//
// Example Prometheus Queries:
//
//   # Breaker open?
//   aq_breaker_state == 2
//
//   # Request Error Rate
//   rate(aq_errors_total[5m])
//
//   # Cache Hit Rate
//   sum(rate(aq_cache_hits_total[5m])) /
//   (sum(rate(aq_cache_hits_total[5m])) + sum(rate(aq_cache_misses_total[5m])))
//
//   # P95 Fetch Latency
//   histogram_quantile(0.95, rate(aq_request_duration_seconds_bucket[5m]))
//
//   # Retry Pressure
//   rate(aq_retries_total[5m])
