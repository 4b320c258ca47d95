package api

import "github.com/deckpipe/deckpipe/internal/models"

// JobResponse is returned by POST /api/v1/jobs and GET /api/v1/jobs/:id. For
// a non-terminal job, CurrentStep, StepDescription, and PreviewRefs are
// filled from the Status Snapshot, not the Job Store — see mergedJobResponse.
type JobResponse struct {
	ID              string           `json:"id"`
	Kind            models.JobKind   `json:"kind"`
	Status          models.JobStatus `json:"status"`
	Stage           string           `json:"stage,omitempty"`
	Progress        int              `json:"progress"`
	CurrentStep     string           `json:"current_step,omitempty"`
	StepDescription string           `json:"step_description,omitempty"`
	PreviewRefs     []string         `json:"preview_refs,omitempty"`
	OutputRef       string           `json:"output_ref,omitempty"`
	Error           *models.JobError `json:"error,omitempty"`
	CreatedAt       string           `json:"created_at"`
	StartedAt       string           `json:"started_at,omitempty"`
	CompletedAt     string           `json:"completed_at,omitempty"`
	Attempts        int              `json:"attempts"`
}

func newJobResponse(job *models.Job) *JobResponse {
	resp := &JobResponse{
		ID:        job.ID,
		Kind:      job.Kind,
		Status:    job.Status,
		Stage:     job.Stage,
		Progress:  job.Progress,
		OutputRef: job.OutputRef,
		Error:     job.Error,
		CreatedAt: job.CreatedAt.Format(timeLayout),
		Attempts:  job.Attempts,
	}
	if job.StartedAt != nil {
		resp.StartedAt = job.StartedAt.Format(timeLayout)
	}
	if job.CompletedAt != nil {
		resp.CompletedAt = job.CompletedAt.Format(timeLayout)
	}
	return resp
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// CancelResponse is returned by POST /api/v1/jobs/:id/cancel.
type CancelResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// ListJobsResponse is returned by GET /api/v1/jobs.
type ListJobsResponse struct {
	Jobs []*JobResponse `json:"jobs"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string            `json:"status"`
	Database string            `json:"database"`
	Queues   []queueHealthView `json:"queues,omitempty"`
}

type queueHealthView struct {
	Queue         string `json:"queue"`
	ActiveWorkers int    `json:"active_workers"`
	TotalWorkers  int    `json:"total_workers"`
}
