package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/deckpipe/deckpipe/internal/models"
)

// submitJobHandler handles POST /api/v1/jobs. Creates a job in "pending"
// status and returns immediately; the Job Scheduler picks it up.
func (s *Server) submitJobHandler(c *echo.Context) error {
	var req SubmitJobRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	kind := models.JobKind(req.Kind)
	if !kind.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "kind must be \"generate\" or \"analyze-template\"")
	}
	if req.TemplateRef == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "template_ref is required")
	}
	if kind == models.JobKindGenerate && req.Markdown == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "markdown is required for generate jobs")
	}

	job := &models.Job{
		ID:   uuid.NewString(),
		Kind: kind,
		Input: models.JobInput{
			TemplateRef:       req.TemplateRef,
			Markdown:          req.Markdown,
			ValidationEnabled: req.ValidationEnabled,
		},
		Status:    models.JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.jobStore.Create(c.Request().Context(), job); err != nil {
		return mapStoreError(err)
	}

	return c.JSON(http.StatusAccepted, newJobResponse(job))
}

// getJobHandler handles GET /api/v1/jobs/:id.
func (s *Server) getJobHandler(c *echo.Context) error {
	id := c.Param("id")
	job, err := s.jobStore.Get(c.Request().Context(), id)
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, s.mergedJobResponse(c.Request().Context(), job))
}

// listJobsHandler handles GET /api/v1/jobs.
func (s *Server) listJobsHandler(c *echo.Context) error {
	filter := models.ListFilter{
		Kind:   models.JobKind(c.QueryParam("kind")),
		Status: models.JobStatus(c.QueryParam("status")),
	}

	jobs, err := s.jobStore.List(c.Request().Context(), filter)
	if err != nil {
		return mapStoreError(err)
	}

	ctx := c.Request().Context()
	resp := &ListJobsResponse{Jobs: make([]*JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, s.mergedJobResponse(ctx, j))
	}
	return c.JSON(http.StatusOK, resp)
}

// mergedJobResponse builds the response for job the way status(id) is
// specified: the Job Store record with its live-progress fields overlaid
// from the Status Snapshot, the Status Channel's source of truth while a job
// is not yet terminal. The Job Store's own status, error, and output_ref
// stay authoritative regardless of what the snapshot holds.
func (s *Server) mergedJobResponse(ctx context.Context, job *models.Job) *JobResponse {
	resp := newJobResponse(job)
	if s.status == nil {
		return resp
	}

	snap, found, err := s.status.Get(ctx, job.ID)
	if err != nil || !found {
		return resp
	}

	resp.Progress = snap.Progress
	resp.CurrentStep = snap.CurrentStep
	resp.StepDescription = snap.StepDescription
	resp.PreviewRefs = snap.PreviewRefs
	return resp
}

// cancelJobHandler handles POST /api/v1/jobs/:id/cancel. A pending job (not
// yet claimed by any worker) is flipped straight to cancelled here, since no
// worker will ever run it. A processing job is only asked to cancel
// cooperatively through the scheduler; its terminal status is written by
// the worker that owns it, never by this handler — that worker is the sole
// writer of terminal state.
func (s *Server) cancelJobHandler(c *echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()

	job, err := s.jobStore.Get(ctx, id)
	if err != nil {
		return mapStoreError(err)
	}

	if job.Status.Terminal() {
		return echo.NewHTTPError(http.StatusConflict, "job is already in a terminal state")
	}

	if job.Status == models.JobStatusPending {
		cancelled := models.JobStatusCancelled
		if err := s.jobStore.Update(ctx, id, models.JobStatusPending, models.Patch{Status: &cancelled}); err != nil {
			return mapStoreError(err)
		}
		return c.JSON(http.StatusOK, &CancelResponse{ID: id, Message: "job cancelled before it was claimed"})
	}

	requested := s.scheduler.Cancel(id)
	message := "cancellation requested"
	if !requested {
		message = "job is not currently running on this process; it may finish, or another process may still be running it"
	}
	return c.JSON(http.StatusOK, &CancelResponse{ID: id, Message: message})
}

// outputJobHandler handles GET /api/v1/jobs/:id/output, serving the job's
// output file once it has completed.
func (s *Server) outputJobHandler(c *echo.Context) error {
	id := c.Param("id")
	job, err := s.jobStore.Get(c.Request().Context(), id)
	if err != nil {
		return mapStoreError(err)
	}
	if job.Status != models.JobStatusCompleted || job.OutputRef == "" {
		return echo.NewHTTPError(http.StatusConflict, "job has no output yet")
	}
	http.ServeFile(c.Response(), c.Request(), job.OutputRef)
	return nil
}
