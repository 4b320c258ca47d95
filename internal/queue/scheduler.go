package queue

import (
	"context"
	"sync"

	"github.com/deckpipe/deckpipe/internal/config"
	"github.com/deckpipe/deckpipe/internal/models"
	"github.com/deckpipe/deckpipe/internal/statuschan"
)

// Scheduler owns one WorkerPool per queue and the cross-queue cancellation
// registry — job ids are globally unique so one registry serves every
// queue, scoped above per-queue pools rather than inside a single one.
type Scheduler struct {
	claimer  JobClaimer
	jobStore JobUpdater
	status   *statuschan.Channel
	cleanup  CleanupHook

	mu    sync.RWMutex
	pools map[string]*WorkerPool

	activeMu sync.RWMutex
	active   map[string]context.CancelFunc
}

// NewScheduler constructs an empty Scheduler. Queues are added with
// AddQueue before Start.
func NewScheduler(claimer JobClaimer, jobStore JobUpdater, status *statuschan.Channel, cleanup CleanupHook) *Scheduler {
	return &Scheduler{
		claimer:  claimer,
		jobStore: jobStore,
		status:   status,
		cleanup:  cleanup,
		pools:    make(map[string]*WorkerPool),
		active:   make(map[string]context.CancelFunc),
	}
}

// AddQueue registers a worker pool for kind, bound to executor. Call before
// Start; adding a queue after Start does not retroactively start it.
func (s *Scheduler) AddQueue(kind models.JobKind, cfg config.QueueConfig, executor JobExecutor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := string(kind)
	s.pools[name] = newWorkerPool(name, kind, s.claimer, s.jobStore, s.status, executor, cfg, s, s.cleanup)
}

// Start starts every registered queue's worker pool.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.pools {
		p.start(ctx)
	}
}

// Stop stops every worker pool, waiting for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.pools {
		p.stop()
	}
}

// Cancel requests cooperative cancellation of jobID if it is currently
// running on this process. It returns false if the job is not active here
// (already terminal, or running on another process — cross-process
// cancellation isn't supported).
func (s *Scheduler) Cancel(jobID string) bool {
	s.activeMu.RLock()
	defer s.activeMu.RUnlock()
	cancel, ok := s.active[jobID]
	if !ok {
		return false
	}
	cancel()
	return true
}

// RegisterJob implements CancelRegistry.
func (s *Scheduler) RegisterJob(jobID string, cancel context.CancelFunc) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	s.active[jobID] = cancel
}

// UnregisterJob implements CancelRegistry.
func (s *Scheduler) UnregisterJob(jobID string) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	delete(s.active, jobID)
}

// Health reports per-queue worker pool status.
func (s *Scheduler) Health() []PoolHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PoolHealth, 0, len(s.pools))
	for _, p := range s.pools {
		out = append(out, p.Health())
	}
	return out
}
