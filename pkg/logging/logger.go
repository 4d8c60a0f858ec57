// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it. Every package
// in this module logs through zerolog, so this is called once at process
// start (cmd/aq-proxy, examples) before any client is built.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Rate limiter waits (wait duration)
//   - Cache operations (hit/miss, key)
//   - Worker session creation
//
// Info: Normal operation events
//   - Successful requests after retry
//   - Circuit breaker closing (upstream recovered)
//   - Extraction job start/completion
//
// Warn: Warning conditions that don't prevent operation
//   - Retry attempts and backoff sleeps
//   - Breaker rejections (fail-fast while open)
//   - Cache errors (fallback to direct request)
//   - Failed chunks in a parallel extraction
//
// Error: Error conditions requiring attention
//   - Circuit breaker opening
//   - Requests failed after exhausting retries
//   - Configuration errors
//
// Context Fields:
//   - endpoint: upstream URL path
//   - status: HTTP status code
//   - error_class: failure classification (client, server, rate_limited, network, decode, circuit_open)
//   - attempt: retry attempt number
//   - backoff: computed backoff duration
//   - worker_id: extraction worker identity
//   - wait: rate limiter wait duration
