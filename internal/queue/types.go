// Package queue implements the Job Scheduler: one worker pool per queue,
// prefetch=1 (a worker claims at most one job at a time), early-ack (the
// claim itself, a pending->processing compare-and-set, is the
// acknowledgement), per-queue rate limiting, soft/hard per-job timeouts, an
// always-run post-task cleanup hook, and a cooperative cancellation
// registry the Job API signals through.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/deckpipe/deckpipe/internal/models"
)

// ErrAtCapacity is reserved for future use if a pool-wide concurrent-job cap
// is added; today WorkerCount alone bounds a queue's concurrency.
var ErrAtCapacity = errors.New("queue: at capacity")

// JobExecutor runs one job end to end and reports its terminal outcome. It
// owns all progress reporting through the Status Channel during execution;
// the worker only handles claiming, timeouts, terminal status, and cleanup.
type JobExecutor interface {
	Execute(ctx context.Context, job *models.Job) *ExecutionResult
}

// ExecutionResult is the terminal outcome of one job run.
type ExecutionResult struct {
	OutputRef string
	Err       *models.JobError
}

// CleanupHook runs after every job, regardless of outcome (success, failure,
// cancel), to release resources a job run may have accumulated.
type CleanupHook func(ctx context.Context, job *models.Job, result *ExecutionResult)

// JobClaimer is the subset of the Job Store a worker claims jobs through.
type JobClaimer interface {
	ClaimNext(ctx context.Context, kind models.JobKind) (*models.Job, error)
}

// JobUpdater is the subset of the Job Store a worker writes terminal status
// through.
type JobUpdater interface {
	Update(ctx context.Context, id string, fromStatus models.JobStatus, patch models.Patch) error
}

// CancelRegistry tracks cancel functions for in-flight jobs so the Job API
// can request cooperative cancellation by id.
type CancelRegistry interface {
	RegisterJob(jobID string, cancel context.CancelFunc)
	UnregisterJob(jobID string)
}

// PoolHealth summarizes one queue's worker pool.
type PoolHealth struct {
	Queue         string         `json:"queue"`
	ActiveWorkers int            `json:"active_workers"`
	TotalWorkers  int            `json:"total_workers"`
	WorkerStats   []WorkerHealth `json:"worker_stats"`
}

// WorkerHealth summarizes one worker.
type WorkerHealth struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	CurrentJobID  string    `json:"current_job_id,omitempty"`
	JobsProcessed int       `json:"jobs_processed"`
	LastActivity  time.Time `json:"last_activity"`
}
