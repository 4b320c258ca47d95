package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/deckpipe/deckpipe/internal/config"
	"github.com/deckpipe/deckpipe/internal/models"
	"github.com/deckpipe/deckpipe/internal/statuschan"
	"github.com/deckpipe/deckpipe/internal/store"
)

// WorkerStatus is a worker's current activity.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// Worker polls one queue for pending jobs and runs them one at a time
// (prefetch=1).
type Worker struct {
	id       string
	queue    string
	kind     models.JobKind
	claimer  JobClaimer
	jobStore JobUpdater
	status   *statuschan.Channel
	executor JobExecutor
	cfg      config.QueueConfig
	limiter  *rate.Limiter
	registry CancelRegistry
	cleanup  CleanupHook

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu            sync.RWMutex
	health        WorkerStatus
	currentJobID  string
	jobsProcessed int
	lastActivity  time.Time
}

// newWorker constructs a Worker. limiter is shared across every worker in
// the same pool — it paces the queue, not any one worker.
func newWorker(id, queue string, kind models.JobKind, claimer JobClaimer, jobStore JobUpdater, status *statuschan.Channel, executor JobExecutor, cfg config.QueueConfig, limiter *rate.Limiter, registry CancelRegistry, cleanup CleanupHook) *Worker {
	return &Worker{
		id:           id,
		queue:        queue,
		kind:         kind,
		claimer:      claimer,
		jobStore:     jobStore,
		status:       status,
		executor:     executor,
		cfg:          cfg,
		limiter:      limiter,
		registry:     registry,
		cleanup:      cleanup,
		stopCh:       make(chan struct{}),
		health:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// start begins the worker's polling loop in a goroutine.
func (w *Worker) start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// stop signals the worker to stop after its current job and waits.
func (w *Worker) stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        string(w.health),
		CurrentJobID:  w.currentJobID,
		JobsProcessed: w.jobsProcessed,
		LastActivity:  w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	log := slog.With("worker_id", w.id, "queue", w.queue)
	log.Info("worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("worker shutting down")
			return
		case <-ctx.Done():
			log.Info("context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, store.ErrNoJobsAvailable) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("error processing job", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollInterval returns the poll duration jittered within
// [base-jitter, base+jitter].
func (w *Worker) pollInterval() time.Duration {
	base, jitter := w.cfg.PollInterval, w.cfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

// pollAndProcess claims the next pending job of this worker's kind, if any,
// and runs it to completion.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	job, err := w.claimer.ClaimNext(ctx, w.kind)
	if err != nil {
		return err
	}
	// Claiming IS the acknowledgement: the pending->processing transition
	// already landed before any execution starts (early-ack).

	log := slog.With("job_id", job.ID, "worker_id", w.id)
	log.Info("job claimed")

	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	w.setHealth(WorkerStatusWorking, job.ID)
	defer w.setHealth(WorkerStatusIdle, "")

	_ = w.status.Update(ctx, job.ID, &models.StatusSnapshot{
		Status:      models.JobStatusProcessing,
		CurrentStep: "claimed",
	})

	jobCtx, cancelJob := context.WithTimeout(ctx, w.cfg.HardTimeout)
	defer cancelJob()

	w.registry.RegisterJob(job.ID, cancelJob)
	defer w.registry.UnregisterJob(job.ID)

	softTimer := time.AfterFunc(w.cfg.SoftTimeout, func() {
		log.Warn("job exceeded soft timeout", "soft_timeout", w.cfg.SoftTimeout)
	})
	defer softTimer.Stop()

	result := w.executor.Execute(jobCtx, job)
	if result == nil {
		result = synthesizeResult(jobCtx)
	} else if result.Err == nil {
		if synthetic := synthesizeResult(jobCtx); synthetic.Err != nil {
			result = synthetic
		}
	}

	w.finalize(context.Background(), job, result)

	// Cleanup always runs, on every outcome.
	if w.cleanup != nil {
		w.cleanup(context.Background(), job, result)
	}

	w.mu.Lock()
	w.jobsProcessed++
	w.mu.Unlock()

	log.Info("job processing complete")
	return nil
}

// synthesizeResult turns a context cancellation/deadline into a JobError
// when the executor itself did not already report one (e.g. it returned
// before noticing the context died).
func synthesizeResult(ctx context.Context) *ExecutionResult {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &ExecutionResult{Err: models.NewJobError(models.ErrorKindTimeout, "job exceeded hard timeout")}
	case errors.Is(ctx.Err(), context.Canceled):
		return &ExecutionResult{Err: models.NewJobError(models.ErrorKindCancelled, "job cancelled")}
	default:
		return &ExecutionResult{}
	}
}

// finalize writes the terminal Job Store row and Status Channel snapshot.
// Per the cancellation/publish-ordering decision, this worker goroutine is
// the only place a claimed job ever transitions to the cancelled status —
// for a running job the Job API only requests cancellation. The Job API
// writes cancelled itself only for a job still pending, which no worker
// has claimed.
func (w *Worker) finalize(ctx context.Context, job *models.Job, result *ExecutionResult) {
	status := models.JobStatusCompleted
	if result.Err != nil {
		status = models.JobStatusFailed
		if result.Err.Kind == models.ErrorKindCancelled {
			status = models.JobStatusCancelled
		}
	}

	patch := models.Patch{Status: &status}
	if result.OutputRef != "" {
		patch.OutputRef = &result.OutputRef
	}
	if result.Err != nil {
		patch.Error = result.Err
	} else {
		// Progress reaches 100 iff the job completes successfully; patched
		// here too (independent of the Stage Engine's own checkpoint
		// patches) so the invariant holds even for executors that don't
		// report intermediate progress.
		done := 100
		patch.Progress = &done
	}

	// Best-effort: a store write failure here is logged, not escalated —
	// the Status Channel update below still gives clients the true outcome.
	if err := w.jobStore.Update(ctx, job.ID, models.JobStatusProcessing, patch); err != nil {
		slog.Error("writing terminal job status to store", "job_id", job.ID, "error", err)
	}

	snapshot := &models.StatusSnapshot{Status: status, Progress: 100, CurrentStep: "done"}
	if result.Err != nil {
		snapshot.Progress = job.Progress
		snapshot.Error = result.Err
	}
	if err := w.status.Update(ctx, job.ID, snapshot); err != nil {
		slog.Error("publishing terminal status", "job_id", job.ID, "error", err)
	}
}

func (w *Worker) setHealth(status WorkerStatus, jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.health = status
	w.currentJobID = jobID
	w.lastActivity = time.Now()
}
