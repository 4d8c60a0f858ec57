package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/soar-data/aq-api-client/internal/testutil"
	"github.com/soar-data/aq-api-client/pkg/backoff"
	"github.com/soar-data/aq-api-client/pkg/client"
	"github.com/soar-data/aq-api-client/pkg/session"
)

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func newProxyClient(t *testing.T) (*client.Client, *session.Manager) {
	t.Helper()

	cfg := client.DefaultConfig()
	cfg.MaxRequestsPerSecond = 0
	cfg.MaxRetries = 0
	cfg.Backoff = backoff.Policy{Base: time.Millisecond, Ceiling: time.Second}

	aqClient, err := client.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	return aqClient, session.NewManager(session.DefaultConfig(), zerolog.Nop())
}

func TestFetchEndpoint(t *testing.T) {
	upstream := testutil.NewMockUpstream(testutil.Response{
		StatusCode: 200,
		Body:       `{"Data":[{"value":12.5}]}`,
	})
	defer upstream.Close()

	aqClient, sessions := newProxyClient(t)
	handler := fetchHandler(aqClient, sessions)

	req := httptest.NewRequest("GET", "/fetch?url="+upstream.URL()+"/data/api/test", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d (%s)", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), `"Data"`) {
		t.Errorf("Expected proxied JSON body, got %s", body)
	}
}

func TestFetchEndpoint_MissingURL(t *testing.T) {
	aqClient, sessions := newProxyClient(t)
	handler := fetchHandler(aqClient, sessions)

	req := httptest.NewRequest("GET", "/fetch", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	if got := w.Result().StatusCode; got != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", got)
	}
}

func TestFetchEndpoint_UpstreamError(t *testing.T) {
	upstream := testutil.NewMockUpstream(testutil.Response{StatusCode: 404, Body: `{"error":"nope"}`})
	defer upstream.Close()

	aqClient, sessions := newProxyClient(t)
	handler := fetchHandler(aqClient, sessions)

	req := httptest.NewRequest("GET", "/fetch?url="+upstream.URL()+"/data/api/missing", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	if got := w.Result().StatusCode; got != http.StatusNotFound {
		t.Errorf("Expected upstream 404 passed through, got %d", got)
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("AQ_TEST_STR", "value")
	if got := getEnv("AQ_TEST_STR", "fallback"); got != "value" {
		t.Errorf("getEnv = %q, want value", got)
	}
	if got := getEnv("AQ_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("getEnv = %q, want fallback", got)
	}

	t.Setenv("AQ_TEST_INT", "7")
	if got := getEnvInt("AQ_TEST_INT", 3); got != 7 {
		t.Errorf("getEnvInt = %d, want 7", got)
	}
	t.Setenv("AQ_TEST_INT", "junk")
	if got := getEnvInt("AQ_TEST_INT", 3); got != 3 {
		t.Errorf("getEnvInt with junk = %d, want fallback 3", got)
	}

	t.Setenv("AQ_TEST_SEC", "1.5")
	if got := getEnvSeconds("AQ_TEST_SEC", time.Second); got != 1500*time.Millisecond {
		t.Errorf("getEnvSeconds = %v, want 1.5s", got)
	}
	t.Setenv("AQ_TEST_SEC", "-2")
	if got := getEnvSeconds("AQ_TEST_SEC", time.Second); got != time.Second {
		t.Errorf("getEnvSeconds negative = %v, want fallback 1s", got)
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"circuit open", client.ErrCircuitOpen, http.StatusServiceUnavailable},
		{"http error", &client.HTTPError{StatusCode: 429, Status: "429"}, 429},
		{"timeout", client.ErrTimeout, http.StatusGatewayTimeout},
		{"other", io.ErrUnexpectedEOF, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusForError(tt.err); got != tt.want {
				t.Errorf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
