// Package extract provides parallel fetching helpers for chunked
// extraction jobs: calendar-year date windows (the chunking unit of the
// AQS API) and a bounded worker pool that drives request specs through the
// resilient client, one session per worker.
package extract
