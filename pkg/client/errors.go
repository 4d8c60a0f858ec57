package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrCircuitOpen is returned when the circuit breaker rejects a call
	// before any network I/O is attempted.
	ErrCircuitOpen = errors.New("circuit open: upstream presumed degraded")

	// ErrTimeout is returned when a request exceeds its timeout.
	ErrTimeout = errors.New("request timed out")
)

// HTTPError represents a non-2xx response from the upstream.
type HTTPError struct {
	StatusCode int
	Status     string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream HTTP error (status %d): %s", e.StatusCode, e.Status)
}

// DecodeError represents a response body that is not valid JSON.
type DecodeError struct {
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode response body: %v", e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// RetriesExhaustedError is returned when every attempt failed. It unwraps
// to the last failure reason.
type RetriesExhaustedError struct {
	Attempts int
	LastErr  error
}

// Error implements the error interface.
func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RetriesExhaustedError) Unwrap() error {
	return e.LastErr
}

// ErrorClass classifies a failure for metrics and retry decisions.
type ErrorClass string

const (
	// ErrorClassClient represents non-retryable 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimited represents 429 responses.
	ErrorClassRateLimited ErrorClass = "rate_limited"

	// ErrorClassNetwork represents transport and timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents malformed JSON bodies.
	ErrorClassDecode ErrorClass = "decode"

	// ErrorClassCircuitOpen represents calls rejected by the open circuit
	// breaker before any network I/O.
	ErrorClassCircuitOpen ErrorClass = "circuit_open"
)

// classifyStatus maps a non-2xx status code to an error class.
func classifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode == 429:
		return ErrorClassRateLimited
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}
