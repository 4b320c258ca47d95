package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/deckpipe/deckpipe/internal/models"
	"github.com/deckpipe/deckpipe/internal/queue"
)

// Executor adapts Engine to queue.JobExecutor, the one boundary between the
// Job Scheduler's claim/timeout/cleanup concerns and the Stage Engine's
// pipeline-running concern.
type Executor struct {
	engine     *Engine
	outputRoot string
}

// NewExecutor constructs an Executor. outputRoot matches the Engine's own,
// passed separately since analyze-template jobs write their result directly
// here rather than through Engine.Run's output path.
func NewExecutor(engine *Engine, outputRoot string) *Executor {
	return &Executor{engine: engine, outputRoot: outputRoot}
}

// Execute implements queue.JobExecutor. Cancellation is observed purely
// through ctx: the Job Scheduler cancels jobCtx on a Job API cancel request,
// and Engine.Run polls that through the CancelledFunc passed here.
func (x *Executor) Execute(ctx context.Context, job *models.Job) *queue.ExecutionResult {
	cancelled := func() bool { return ctx.Err() != nil }

	switch job.Kind {
	case models.JobKindGenerate:
		outputRef, jobErr := x.engine.Run(ctx, job, cancelled)
		return &queue.ExecutionResult{OutputRef: outputRef, Err: jobErr}

	case models.JobKindAnalyzeTemplate:
		features, jobErr := x.engine.RunAnalyzeOnly(ctx, job)
		if jobErr != nil {
			return &queue.ExecutionResult{Err: jobErr}
		}
		outputRef, err := x.writeLayoutResult(job.ID, features)
		if err != nil {
			return &queue.ExecutionResult{Err: models.NewJobError(models.ErrorKindStageFailed, err.Error())}
		}
		return &queue.ExecutionResult{OutputRef: outputRef}

	default:
		return &queue.ExecutionResult{Err: models.NewJobError(models.ErrorKindInputInvalid, fmt.Sprintf("unknown job kind %q", job.Kind))}
	}
}

func (x *Executor) writeLayoutResult(jobID string, features *models.LayoutFeatures) (string, error) {
	dir := filepath.Join(x.outputRoot, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	data, err := json.MarshalIndent(features, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling layout result: %w", err)
	}
	path := filepath.Join(dir, "layout.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing layout result: %w", err)
	}
	return path, nil
}
