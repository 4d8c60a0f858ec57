package extract

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/soar-data/aq-api-client/pkg/client"
	"github.com/soar-data/aq-api-client/pkg/session"
)

// Fetcher fetches a single spec. *client.Client satisfies it.
type Fetcher interface {
	FetchJSON(ctx context.Context, sess *session.Session, spec client.RequestSpec) (any, error)
}

// Result is the outcome of fetching one spec. Exactly one of Value and Err
// is set.
type Result struct {
	Spec  client.RequestSpec
	Value any
	Err   error
}

// Pool fetches many specs in parallel through a bounded worker pool. Each
// worker holds its own session from the manager for its whole lifetime.
type Pool struct {
	fetcher  Fetcher
	sessions *session.Manager
	workers  int
}

// NewPool creates a worker pool. workers <= 0 defaults to 4, matching the
// extraction pipelines this client was built for.
func NewPool(fetcher Fetcher, sessions *session.Manager, workers int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	return &Pool{
		fetcher:  fetcher,
		sessions: sessions,
		workers:  workers,
	}
}

// FetchAll fetches every spec and returns results in spec order. Failed
// specs carry their error in the result; one bad chunk does not abort the
// rest of the job. Respects context cancellation between fetches.
func (p *Pool) FetchAll(ctx context.Context, specs []client.RequestSpec) []Result {
	start := time.Now()

	results := make([]Result, len(specs))
	queue := make(chan int, len(specs))
	for i := range specs {
		queue <- i
	}
	close(queue)

	workers := p.workers
	if workers > len(specs) {
		workers = len(specs)
	}

	log.Info().
		Int("specs", len(specs)).
		Int("workers", workers).
		Msg("Starting parallel fetch")

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			sess := p.sessions.Session(fmt.Sprintf("extract-worker-%d", workerID))

			for idx := range queue {
				select {
				case <-ctx.Done():
					results[idx] = Result{Spec: specs[idx], Err: ctx.Err()}
					continue
				default:
				}

				value, err := p.fetcher.FetchJSON(ctx, sess, specs[idx])
				results[idx] = Result{Spec: specs[idx], Value: value, Err: err}

				if err != nil {
					log.Warn().
						Err(err).
						Int("worker_id", workerID).
						Str("url", specs[idx].URL).
						Msg("Chunk fetch failed")
				}
			}
		}(w)
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}

	log.Info().
		Int("specs", len(specs)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Parallel fetch complete")

	return results
}
