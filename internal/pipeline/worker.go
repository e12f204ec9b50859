package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/swscloud/reviewd/internal/observability"
)

// Pool runs pipeline jobs on a fixed set of workers. A version is never
// queued twice at the same time.
type Pool struct {
	p       *Pipeline
	jobs    chan int64
	workers int

	mu       sync.Mutex
	inflight map[int64]bool
	wg       sync.WaitGroup
}

// NewPool builds a pool with the given worker count (minimum 1).
func NewPool(p *Pipeline, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		p:        p,
		jobs:     make(chan int64, 64),
		workers:  workers,
		inflight: make(map[int64]bool),
	}
}

// Start launches the workers. They drain until ctx is done.
func (pl *Pool) Start(ctx context.Context) {
	for i := 0; i < pl.workers; i++ {
		pl.wg.Add(1)
		go pl.worker(ctx, i)
	}
}

// Wait blocks until every worker has exited.
func (pl *Pool) Wait() { pl.wg.Wait() }

// Enqueue schedules a version for processing. Returns false when the
// version is already queued or running, or the queue is full.
func (pl *Pool) Enqueue(versionID int64) bool {
	pl.mu.Lock()
	if pl.inflight[versionID] {
		pl.mu.Unlock()
		return false
	}
	pl.inflight[versionID] = true
	pl.mu.Unlock()

	select {
	case pl.jobs <- versionID:
		return true
	default:
		pl.mu.Lock()
		delete(pl.inflight, versionID)
		pl.mu.Unlock()
		return false
	}
}

func (pl *Pool) worker(ctx context.Context, n int) {
	defer pl.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case versionID := <-pl.jobs:
			if err := pl.p.Process(ctx, versionID); err != nil {
				observability.Warn(ctx, "pipeline job failed",
					slog.Int("worker", n),
					slog.Int64("version_id", versionID),
					slog.Any("error", err))
			}
			pl.mu.Lock()
			delete(pl.inflight, versionID)
			pl.mu.Unlock()
		}
	}
}
