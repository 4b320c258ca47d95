package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/deckpipe/deckpipe/internal/models"
	"github.com/deckpipe/deckpipe/internal/mutate"
)

// runFinalize implements stage 5: Finalize. It deletes the original
// template slides (never all slides), reorders the remainder to match
// content_plan order using the slide_id notes marker, runs the Validation
// Loop if the job requested it, and saves the result to outputPath.
func (e *Engine) runFinalize(ctx context.Context, job *models.Job, client mutate.Client, plan *models.ContentPlan, generated []models.GeneratedSlide, originalSlideCount int, outputPath string, cancelled CancelledFunc) *models.JobError {
	total, err := client.SlideCount(ctx)
	if err != nil {
		return models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("reading slide count before finalize: %v", err))
	}

	deleteIdx := make([]int, 0, originalSlideCount)
	for i := 0; i < originalSlideCount && i < total; i++ {
		deleteIdx = append(deleteIdx, i)
	}
	if len(deleteIdx) == total {
		return models.NewJobError(models.ErrorKindStageFailed, "finalize would delete every slide; refusing")
	}
	if len(deleteIdx) > 0 {
		if err := client.DeleteSlides(ctx, deleteIdx); err != nil {
			return models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("deleting template remnants: %v", err))
		}
	}

	remaining, err := client.SlideCount(ctx)
	if err != nil {
		return models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("reading slide count after deletion: %v", err))
	}

	positionBySlideID := make(map[string]int, remaining)
	for i := 0; i < remaining; i++ {
		notes, err := client.GetNotes(ctx, i)
		if err != nil {
			return models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("reading notes for slide position %d: %v", i, err))
		}
		id, ok := mutate.ParseSlideID(notes)
		if !ok {
			return models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("slide at position %d has no slide_id marker", i))
		}
		positionBySlideID[id] = i
	}

	order := make([]int, 0, len(plan.Slides))
	for _, entry := range plan.Slides {
		pos, ok := positionBySlideID[entry.SlideID]
		if !ok {
			return models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("generated slide %s missing from presentation", entry.SlideID))
		}
		order = append(order, pos)
	}
	if err := client.ReorderSlides(ctx, order); err != nil {
		return models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("reordering slides: %v", err))
	}

	if job.Input.ValidationEnabled {
		if cancelled() {
			return models.NewJobError(models.ErrorKindCancelled, "cancelled before validation loop")
		}
		loop := e.newValidationLoop(client, plan)
		if _, err := loop.Run(ctx, cancelled); err != nil {
			// A save/render failure inside the loop aborts only the
			// iteration it occurred in and is never returned (see
			// internal/validate); Run returns an error only when ctx
			// itself is done, which ends the stage as a failure.
			return models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("validation loop: %v", err))
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("creating output directory: %v", err))
	}
	if err := client.Save(ctx, outputPath); err != nil {
		return models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("saving output artifact: %v", err))
	}
	return nil
}
