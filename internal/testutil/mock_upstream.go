// Package testutil provides testing utilities for the resilient API client.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// Response defines one scripted upstream response.
type Response struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockUpstream is a scriptable fake API server. Responses are served in
// script order; the last entry repeats once the script is exhausted. The
// request counter makes "no network attempt was made" assertions possible.
type MockUpstream struct {
	server *httptest.Server

	mu           sync.Mutex
	script       []Response
	requestCount int
	lastRequest  *http.Request
}

// NewMockUpstream creates a mock server with the given response script.
// With an empty script every request gets 200 {}.
func NewMockUpstream(script ...Response) *MockUpstream {
	mock := &MockUpstream{script: script}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		idx := mock.requestCount
		mock.requestCount++
		mock.lastRequest = r.Clone(r.Context())

		resp := Response{StatusCode: http.StatusOK, Body: "{}"}
		if len(mock.script) > 0 {
			if idx >= len(mock.script) {
				idx = len(mock.script) - 1
			}
			resp = mock.script[idx]
		}
		mock.mu.Unlock()

		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write([]byte(resp.Body))
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// RequestCount returns the number of requests served.
func (m *MockUpstream) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// LastRequest returns a clone of the most recent request, or nil.
func (m *MockUpstream) LastRequest() *http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequest
}

// Reset clears the request counter.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.lastRequest = nil
}
