// Package stage implements the Stage Engine: the ordered, fail-fast
// execution of Parse, Analyze Template, Plan Content, Generate Slides, and
// Finalize for a generate job (plus a standalone Analyze Template path for
// analyze-template jobs), consulting the Artifact Cache between stages and
// reporting progress through the Status Channel.
package stage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/deckpipe/deckpipe/internal/artifact"
	"github.com/deckpipe/deckpipe/internal/config"
	"github.com/deckpipe/deckpipe/internal/models"
	"github.com/deckpipe/deckpipe/internal/modelpool"
	"github.com/deckpipe/deckpipe/internal/mutate"
	"github.com/deckpipe/deckpipe/internal/queue"
	"github.com/deckpipe/deckpipe/internal/statuschan"
	"github.com/deckpipe/deckpipe/internal/validate"
)

// Stage names, used as artifact cache namespaces, checkpoint entries, and
// status payload's current_step field.
const (
	StageParse           = "parse"
	StageAnalyzeTemplate = "analyze_template"
	StagePlanContent     = "plan_content"
	StageGenerateSlides  = "generate_slides"
	StageFinalize        = "finalize"
)

// NewPresentationClient constructs a fresh mutate.Client for one
// presentation. Engine calls this for the job's working presentation, and
// also for the template itself when Analyze Template misses the cache; each
// returned client is closed when the stage or pipeline run that opened it
// ends (success or failure).
type NewPresentationClient func() mutate.Client

// Engine drives the five-stage pipeline for one job at a time. It holds no
// per-job state between calls to Run — all per-job state is local to that
// call: the in-memory presentation is owned by one worker and mutated only
// there.
type Engine struct {
	cache         *artifact.Cache
	status        *statuschan.Channel
	jobStore      queue.JobUpdater
	pool          *modelpool.Pool
	newClient     NewPresentationClient
	validationCfg config.ValidationConfig
	outputRoot    string
	workRoot      string
}

// New constructs an Engine. jobStore receives a best-effort Stage/Progress
// patch at every checkpoint report passes through, so the Job Store record
// mirrors live progress independent of the Status Channel's own TTL and
// availability.
func New(cache *artifact.Cache, status *statuschan.Channel, jobStore queue.JobUpdater, pool *modelpool.Pool, newClient NewPresentationClient, validationCfg config.ValidationConfig, outputRoot, workRoot string) *Engine {
	return &Engine{
		cache:         cache,
		status:        status,
		jobStore:      jobStore,
		pool:          pool,
		newClient:     newClient,
		validationCfg: validationCfg,
		outputRoot:    outputRoot,
		workRoot:      workRoot,
	}
}

// CancelledFunc is polled at every stage boundary, the cooperative
// cancellation checkpoint.
type CancelledFunc func() bool

// report writes progress through the Status Channel: write-then-broadcast.
// It also best-effort patches the Job Store's stage/progress columns, so a
// reader of the persisted record (rather than the Status Snapshot) still
// observes progress advancing and, at the final checkpoint, reaching 100.
func (e *Engine) report(ctx context.Context, jobID, step, description string, progress int) {
	_ = e.status.Update(ctx, jobID, &models.StatusSnapshot{
		Status:          models.JobStatusProcessing,
		Progress:        progress,
		CurrentStep:     step,
		StepDescription: description,
	})

	if e.jobStore == nil {
		return
	}
	stage, progressCopy := step, progress
	patch := models.Patch{Stage: &stage, Progress: &progressCopy}
	if err := e.jobStore.Update(ctx, jobID, models.JobStatusProcessing, patch); err != nil {
		slog.Warn("stage: patching job store progress", "job_id", jobID, "step", step, "error", err)
	}
}

// Run executes the full generate pipeline for job. It returns the final
// output_ref on success, or a typed JobError identifying which stage failed
// and why. Between-stage cache checks and checkpointing happen internally;
// cancelled is polled at each stage boundary.
func (e *Engine) Run(ctx context.Context, job *models.Job, cancelled CancelledFunc) (outputRef string, jobErr *models.JobError) {
	workDir := filepath.Join(e.workRoot, job.ID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("creating work directory: %v", err))
	}
	defer os.RemoveAll(workDir)

	if cancelled() {
		return "", models.NewJobError(models.ErrorKindCancelled, "cancelled before parse")
	}
	e.report(ctx, job.ID, StageParse, "parsing markdown", 5)
	outline, jobErr := e.runParse(ctx, job.Input.Markdown)
	if jobErr != nil {
		return "", jobErr
	}

	if cancelled() {
		return "", models.NewJobError(models.ErrorKindCancelled, "cancelled before analyze template")
	}
	e.report(ctx, job.ID, StageAnalyzeTemplate, "analyzing template layouts", 20)
	layout, jobErr := e.runAnalyzeTemplate(ctx, job.Input.TemplateRef)
	if jobErr != nil {
		return "", jobErr
	}

	if cancelled() {
		return "", models.NewJobError(models.ErrorKindCancelled, "cancelled before plan content")
	}
	e.report(ctx, job.ID, StagePlanContent, "planning slide structure", 35)
	plan, jobErr := e.runPlanContent(ctx, outline, layout)
	if jobErr != nil {
		return "", jobErr
	}

	workingPath := filepath.Join(workDir, filepath.Base(job.Input.TemplateRef))
	if err := copyFile(job.Input.TemplateRef, workingPath); err != nil {
		return "", models.NewJobError(models.ErrorKindPreconditionMissing, fmt.Sprintf("staging working copy: %v", err))
	}

	client := e.newClient()
	defer client.Close()
	if err := client.Open(ctx, workingPath); err != nil {
		return "", models.NewJobError(models.ErrorKindPreconditionMissing, fmt.Sprintf("opening working presentation: %v", err))
	}

	if cancelled() {
		return "", models.NewJobError(models.ErrorKindCancelled, "cancelled before generate slides")
	}
	e.report(ctx, job.ID, StageGenerateSlides, "generating slides", 55)
	generated, originalSlideCount, jobErr := e.runGenerateSlides(ctx, client, plan, layout, outline)
	if jobErr != nil {
		return "", jobErr
	}

	if cancelled() {
		return "", models.NewJobError(models.ErrorKindCancelled, "cancelled before finalize")
	}
	e.report(ctx, job.ID, StageFinalize, "finalizing presentation", 75)
	outputPath := filepath.Join(e.outputRoot, job.ID, filepath.Base(job.Input.TemplateRef))
	jobErr = e.runFinalize(ctx, job, client, plan, generated, originalSlideCount, outputPath, cancelled)
	if jobErr != nil {
		return "", jobErr
	}

	e.report(ctx, job.ID, StageFinalize, "done", 100)
	return outputPath, nil
}

// RunAnalyzeOnly executes just the Analyze Template stage, for
// analyze-template jobs.
func (e *Engine) RunAnalyzeOnly(ctx context.Context, job *models.Job) (*models.LayoutFeatures, *models.JobError) {
	e.report(ctx, job.ID, StageAnalyzeTemplate, "analyzing template layouts", 50)
	return e.runAnalyzeTemplate(ctx, job.Input.TemplateRef)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// newValidationLoop constructs a Validation Loop bound to this job's plan
// and presentation client, deferring to the injected config for iteration
// and worker bounds.
func (e *Engine) newValidationLoop(client mutate.Client, plan *models.ContentPlan) *validate.Loop {
	visionClient := func(ctx context.Context) (modelpool.Client, error) {
		return e.pool.Get(ctx, config.KindVision)
	}
	return validate.New(client, plan, visionClient, e.validationCfg.MaxIterations, e.validationCfg.MaxWorkers)
}
