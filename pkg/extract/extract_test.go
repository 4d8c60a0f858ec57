package extract

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/soar-data/aq-api-client/pkg/client"
	"github.com/soar-data/aq-api-client/pkg/session"
)

func TestYearChunks(t *testing.T) {
	date := func(y, m, d int) time.Time {
		return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	}

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  []Chunk
	}{
		{
			name:  "single year",
			start: date(2023, 3, 15),
			end:   date(2023, 9, 30),
			want:  []Chunk{{"20230315", "20230930"}},
		},
		{
			name:  "two years",
			start: date(2022, 6, 1),
			end:   date(2023, 2, 28),
			want:  []Chunk{{"20220601", "20221231"}, {"20230101", "20230228"}},
		},
		{
			name:  "full middle years",
			start: date(2020, 11, 5),
			end:   date(2023, 1, 2),
			want: []Chunk{
				{"20201105", "20201231"},
				{"20210101", "20211231"},
				{"20220101", "20221231"},
				{"20230101", "20230102"},
			},
		},
		{
			name:  "same day",
			start: date(2023, 7, 4),
			end:   date(2023, 7, 4),
			want:  []Chunk{{"20230704", "20230704"}},
		},
		{
			name:  "end before start",
			start: date(2023, 1, 1),
			end:   date(2022, 1, 1),
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := YearChunks(tt.start, tt.end)
			if len(got) != len(tt.want) {
				t.Fatalf("YearChunks() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("chunk %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

// fakeFetcher records which sessions fetched which specs.
type fakeFetcher struct {
	mu       sync.Mutex
	calls    map[string][]string // worker ID -> URLs
	failures map[string]error    // URL -> error
	delay    time.Duration
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		calls:    make(map[string][]string),
		failures: make(map[string]error),
	}
}

func (f *fakeFetcher) FetchJSON(ctx context.Context, sess *session.Session, spec client.RequestSpec) (any, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.calls[sess.WorkerID()] = append(f.calls[sess.WorkerID()], spec.URL)
	err := f.failures[spec.URL]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return map[string]any{"url": spec.URL}, nil
}

func TestPool_FetchAll(t *testing.T) {
	fetcher := newFakeFetcher()
	sessions := session.NewManager(session.DefaultConfig(), zerolog.Nop())
	pool := NewPool(fetcher, sessions, 3)

	specs := make([]client.RequestSpec, 10)
	for i := range specs {
		specs[i] = client.RequestSpec{URL: fmt.Sprintf("https://example.com/chunk/%d", i)}
	}

	results := pool.FetchAll(context.Background(), specs)
	if len(results) != len(specs) {
		t.Fatalf("results = %d, want %d", len(results), len(specs))
	}

	// Order preserved, every spec fetched exactly once.
	for i, r := range results {
		if r.Err != nil {
			t.Errorf("result %d error: %v", i, r.Err)
		}
		if r.Spec.URL != specs[i].URL {
			t.Errorf("result %d spec = %s, want %s", i, r.Spec.URL, specs[i].URL)
		}
	}

	// No more sessions than workers, and each worker kept its own.
	if got := sessions.Len(); got > 3 {
		t.Errorf("sessions created = %d, want <= 3", got)
	}
}

func TestPool_FetchAll_PartialFailure(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.failures["https://example.com/chunk/1"] = errors.New("upstream down")

	sessions := session.NewManager(session.DefaultConfig(), zerolog.Nop())
	pool := NewPool(fetcher, sessions, 2)

	specs := []client.RequestSpec{
		{URL: "https://example.com/chunk/0"},
		{URL: "https://example.com/chunk/1"},
		{URL: "https://example.com/chunk/2"},
	}

	results := pool.FetchAll(context.Background(), specs)

	if results[0].Err != nil || results[2].Err != nil {
		t.Error("healthy chunks should succeed despite a failing sibling")
	}
	if results[1].Err == nil {
		t.Error("failing chunk should carry its error")
	}
	if results[1].Value != nil {
		t.Error("failed result must not carry a value")
	}
}

func TestPool_FetchAll_ContextCancelled(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.delay = 50 * time.Millisecond

	sessions := session.NewManager(session.DefaultConfig(), zerolog.Nop())
	pool := NewPool(fetcher, sessions, 1)

	specs := make([]client.RequestSpec, 20)
	for i := range specs {
		specs[i] = client.RequestSpec{URL: fmt.Sprintf("https://example.com/chunk/%d", i)}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	results := pool.FetchAll(ctx, specs)

	cancelled := 0
	for _, r := range results {
		if errors.Is(r.Err, context.DeadlineExceeded) {
			cancelled++
		}
	}
	if cancelled == 0 {
		t.Error("expected some chunks to be skipped after cancellation")
	}
}

func TestNewPool_DefaultWorkers(t *testing.T) {
	pool := NewPool(newFakeFetcher(), session.NewManager(session.DefaultConfig(), zerolog.Nop()), 0)
	if pool.workers != 4 {
		t.Errorf("default workers = %d, want 4", pool.workers)
	}
}
