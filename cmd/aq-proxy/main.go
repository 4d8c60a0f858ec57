// Command aq-proxy exposes the resilient API client as a small HTTP
// daemon: pipeline orchestrators call /fetch?url=... and get the upstream
// JSON back, with rate limiting, retries, and circuit breaking applied
// process-wide. Prometheus metrics are served on /metrics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/soar-data/aq-api-client/pkg/client"
	"github.com/soar-data/aq-api-client/pkg/logging"
	"github.com/soar-data/aq-api-client/pkg/session"
)

// proxySessionPool bounds the number of proxy-owned worker sessions.
const proxySessionPool = 4

func main() {
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnv("LOG_PRETTY", "") != "",
		Output: os.Stderr,
	})

	port := getEnv("PORT", "8080")

	cfg := configFromEnv(logger)
	aqClient, err := client.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create client")
	}

	sessions := session.NewManager(sessionConfigFromEnv(), logger)

	http.HandleFunc("/health", healthHandler)
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/fetch", fetchHandler(aqClient, sessions))

	addr := ":" + port
	logger.Info().
		Str("addr", addr).
		Int("max_rps", cfg.MaxRequestsPerSecond).
		Int("max_retries", cfg.MaxRetries).
		Msg("Starting aq-proxy")

	if err := http.ListenAndServe(addr, nil); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

// configFromEnv builds the client configuration from environment
// variables, falling back to the pipeline defaults.
func configFromEnv(logger zerolog.Logger) client.Config {
	cfg := client.DefaultConfig()
	cfg.MaxRequestsPerSecond = getEnvInt("AQ_MAX_RPS", cfg.MaxRequestsPerSecond)
	cfg.MinDelay = getEnvSeconds("AQ_MIN_DELAY", cfg.MinDelay)
	cfg.BreakerThreshold = uint32(getEnvInt("AQ_CIRCUIT_THRESHOLD", int(cfg.BreakerThreshold)))
	cfg.BreakerCooldown = getEnvSeconds("AQ_CIRCUIT_COOLDOWN", cfg.BreakerCooldown)
	cfg.MaxRetries = getEnvInt("AQ_RETRIES", cfg.MaxRetries)
	cfg.Backoff.Base = getEnvSeconds("AQ_BACKOFF_FACTOR", cfg.Backoff.Base)
	cfg.Backoff.Ceiling = getEnvSeconds("AQ_RETRY_MAX_WAIT", cfg.Backoff.Ceiling)

	if redisURL := getEnv("REDIS_URL", ""); redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warn().Err(err).Str("redis_url", redisURL).Msg("Redis unreachable - response cache disabled")
		} else {
			logger.Info().Str("redis_url", redisURL).Msg("Response cache enabled")
			cfg.Redis = redisClient
			cfg.CacheTTL = getEnvSeconds("AQ_CACHE_TTL", 6*time.Hour)
		}
	}

	return cfg
}

// sessionConfigFromEnv builds the session configuration, attaching AQS
// credentials when present in the environment.
func sessionConfigFromEnv() session.Config {
	cfg := session.DefaultConfig()
	cfg.UserAgent = getEnv("USER_AGENT", cfg.UserAgent)
	cfg.Timeout = getEnvSeconds("AQ_TIMEOUT", cfg.Timeout)

	if email, key := os.Getenv("AQS_EMAIL"), os.Getenv("AQS_KEY"); email != "" && key != "" {
		cfg.Credentials = session.AQSCredentials(email, key)
	}

	return cfg
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// fetchHandler proxies a single upstream fetch through the resilient
// client. Concurrent requests are spread over a small fixed pool of
// sessions so no session is owned by two in-flight handlers of the same
// slot while the pool stays bounded.
func fetchHandler(aqClient *client.Client, sessions *session.Manager) http.HandlerFunc {
	var next atomic.Uint64

	return func(w http.ResponseWriter, r *http.Request) {
		target := r.URL.Query().Get("url")
		if target == "" {
			http.Error(w, "missing url parameter", http.StatusBadRequest)
			return
		}

		workerID := fmt.Sprintf("proxy-%d", next.Add(1)%proxySessionPool)
		sess := sessions.Session(workerID)

		value, err := aqClient.FetchJSON(r.Context(), sess, client.RequestSpec{URL: target})
		if err != nil {
			http.Error(w, fmt.Sprintf("fetch failed: %v", err), statusForError(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(value); err != nil {
			http.Error(w, fmt.Sprintf("encode response: %v", err), http.StatusInternalServerError)
		}
	}
}

// statusForError maps client failures onto proxy response codes.
func statusForError(err error) int {
	var httpErr *client.HTTPError
	switch {
	case errors.Is(err, client.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.As(err, &httpErr):
		return httpErr.StatusCode
	case errors.Is(err, client.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvSeconds reads a duration expressed as (possibly fractional)
// seconds, the unit the original pipeline configuration used.
func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil && parsed >= 0 {
			return time.Duration(parsed * float64(time.Second))
		}
	}
	return defaultValue
}
