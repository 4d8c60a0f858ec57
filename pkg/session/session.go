// Package session manages per-worker HTTP sessions. Each extraction worker
// gets its own reusable session (connection pool plus configured
// credentials), created lazily on first use and never shared across
// workers.
package session

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var aqSessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "aq_sessions_created_total",
	Help: "Total number of worker sessions created",
})

// Credentials are attached to every outgoing request. AQS-style APIs take
// query parameters (email/key), Envista-style APIs take headers.
type Credentials struct {
	Params  url.Values
	Headers http.Header
}

// AQSCredentials builds query-parameter credentials for the AQS API.
func AQSCredentials(email, key string) Credentials {
	return Credentials{
		Params: url.Values{
			"email": []string{email},
			"key":   []string{key},
		},
	}
}

// TokenCredentials builds header-based credentials for token APIs.
func TokenCredentials(header, token string) Credentials {
	h := http.Header{}
	h.Set(header, token)
	return Credentials{Headers: h}
}

// Config holds the session configuration shared by all workers.
type Config struct {
	// UserAgent identifies the pipeline to the upstream.
	UserAgent string

	// Credentials are attached to every request built by a session.
	Credentials Credentials

	// Timeout is the default per-request timeout.
	Timeout time.Duration
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		UserAgent: "soar-pipeline/1.0",
		Timeout:   120 * time.Second,
	}
}

// Session is a worker-owned connection/credential bundle. It is created
// once per worker and reused for all of that worker's requests; workers
// never share sessions.
type Session struct {
	workerID   string
	httpClient *http.Client
	creds      Credentials
	userAgent  string
	timeout    time.Duration
}

// WorkerID returns the identity of the owning worker.
func (s *Session) WorkerID() string {
	return s.workerID
}

// Timeout returns the session's default per-request timeout.
func (s *Session) Timeout() time.Duration {
	return s.timeout
}

// NewRequest builds a GET request for the given URL with credentials,
// extra query parameters, and the User-Agent header applied.
func (s *Session) NewRequest(ctx context.Context, rawURL string, query url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	q := req.URL.Query()
	for key, values := range query {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	for key, values := range s.creds.Params {
		for _, v := range values {
			q.Set(key, v)
		}
	}
	req.URL.RawQuery = q.Encode()

	for key, values := range s.creds.Headers {
		for _, v := range values {
			req.Header.Set(key, v)
		}
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/json")

	return req, nil
}

// Do executes the request on the session's own connection pool.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	return s.httpClient.Do(req)
}

// SetHTTPClient replaces the underlying HTTP client (for testing).
func (s *Session) SetHTTPClient(client *http.Client) {
	s.httpClient = client
}

// Manager hands out sessions keyed by worker identity. The registry
// tolerates distinct workers registering concurrently; a worker never calls
// for its own session from two goroutines at once. Sessions are not
// evicted: worker count is small and bounded, process exit reclaims the
// pools.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	sessions map[string]*Session
	logger   zerolog.Logger
}

// NewManager creates a session manager.
func NewManager(cfg Config, logger zerolog.Logger) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// Session returns the worker's session, constructing it on first use.
func (m *Manager) Session(workerID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, ok := m.sessions[workerID]; ok {
		return sess
	}

	sess := &Session{
		workerID: workerID,
		httpClient: &http.Client{
			// Each worker owns its pool; connections are never shared
			// across workers.
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: m.cfg.Timeout,
		},
		creds:     m.cfg.Credentials,
		userAgent: m.cfg.UserAgent,
		timeout:   m.cfg.Timeout,
	}
	m.sessions[workerID] = sess

	aqSessionsCreatedTotal.Inc()
	m.logger.Debug().
		Str("worker_id", workerID).
		Msg("Created worker session")

	return sess
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
