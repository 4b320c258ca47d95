package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/deckpipe/deckpipe/internal/config"
	"github.com/deckpipe/deckpipe/internal/models"
	"github.com/deckpipe/deckpipe/internal/statuschan"
)

// WorkerPool runs cfg.WorkerCount workers against one queue, sharing a
// single rate limiter so the per-kind cap applies across the whole pool,
// not per worker.
type WorkerPool struct {
	name    string
	kind    models.JobKind
	cfg     config.QueueConfig
	workers []*Worker
	wg      sync.WaitGroup
}

// newWorkerPool constructs a pool. cfg.WorkerCount workers are created but
// not yet started.
func newWorkerPool(name string, kind models.JobKind, claimer JobClaimer, jobStore JobUpdater, status *statuschan.Channel, executor JobExecutor, cfg config.QueueConfig, registry CancelRegistry, cleanup CleanupHook) *WorkerPool {
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), 1)
	workers := make([]*Worker, 0, cfg.WorkerCount)
	for i := 0; i < cfg.WorkerCount; i++ {
		id := fmt.Sprintf("%s-worker-%d", name, i)
		workers = append(workers, newWorker(id, name, kind, claimer, jobStore, status, executor, cfg, limiter, registry, cleanup))
	}
	return &WorkerPool{name: name, kind: kind, cfg: cfg, workers: workers}
}

func (p *WorkerPool) start(ctx context.Context) {
	slog.Info("starting worker pool", "queue", p.name, "worker_count", len(p.workers))
	for _, w := range p.workers {
		w.start(ctx)
	}
}

func (p *WorkerPool) stop() {
	slog.Info("stopping worker pool", "queue", p.name)
	for _, w := range p.workers {
		w.stop()
	}
}

// Health reports per-worker status for this queue.
func (p *WorkerPool) Health() PoolHealth {
	stats := make([]WorkerHealth, len(p.workers))
	active := 0
	for i, w := range p.workers {
		stats[i] = w.Health()
		if stats[i].Status == string(WorkerStatusWorking) {
			active++
		}
	}
	return PoolHealth{Queue: p.name, ActiveWorkers: active, TotalWorkers: len(p.workers), WorkerStats: stats}
}
