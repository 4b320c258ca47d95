// Package models holds the domain types shared across the orchestration
// core: jobs, status snapshots, stage artifacts, and the typed error
// taxonomy that flows from a stage failure all the way to the status
// payload a client reads.
package models

import "time"

// JobKind distinguishes the two pipeline entry points.
type JobKind string

const (
	JobKindGenerate        JobKind = "generate"
	JobKindAnalyzeTemplate JobKind = "analyze-template"
)

// Valid reports whether k is one of the known job kinds.
func (k JobKind) Valid() bool {
	switch k {
	case JobKindGenerate, JobKindAnalyzeTemplate:
		return true
	default:
		return false
	}
}

// JobStatus is a node in the job state graph:
// pending -> processing -> {completed | failed | cancelled}.
// cancelled may interrupt processing.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether s is a terminal state; terminal states are never
// overwritten except cancel applied to a non-terminal record.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// validTransitions enumerates the legal edges of the job status graph.
var validTransitions = map[JobStatus]map[JobStatus]bool{
	JobStatusPending: {
		JobStatusProcessing: true,
		JobStatusCancelled:  true,
	},
	JobStatusProcessing: {
		JobStatusCompleted: true,
		JobStatusFailed:    true,
		JobStatusCancelled: true,
	},
}

// CanTransition reports whether moving from 'from' to 'to' is legal.
func CanTransition(from, to JobStatus) bool {
	edges, ok := validTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// JobInput is the kind-specific payload carried by a Job. For JobKindGenerate,
// TemplateRef and Markdown are required and ValidationEnabled toggles the
// Validation Loop inside Finalize. For JobKindAnalyzeTemplate, only
// TemplateRef is used.
type JobInput struct {
	TemplateRef       string `json:"template_ref"`
	Markdown          string `json:"markdown,omitempty"`
	ValidationEnabled bool   `json:"validation_enabled,omitempty"`
}

// ErrorKind is the taxonomy surfaced to clients in the status payload's
// error object and recorded on the Job record.
type ErrorKind string

const (
	ErrorKindInputInvalid        ErrorKind = "InputInvalid"
	ErrorKindPreconditionMissing ErrorKind = "PreconditionMissing"
	ErrorKindStageFailed         ErrorKind = "StageFailed"
	ErrorKindModelUnavailable    ErrorKind = "ModelUnavailable"
	ErrorKindTimeout             ErrorKind = "Timeout"
	ErrorKindCancelled           ErrorKind = "Cancelled"
)

// JobError is the structured failure recorded on a Job and serialized
// directly into the status payload's error object.
type JobError struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
}

func (e *JobError) Error() string {
	if e == nil {
		return ""
	}
	return string(e.Kind) + ": " + e.Message
}

// NewJobError constructs a JobError. Only ModelUnavailable is ever
// retryable-at-caller's-discretion; every other kind is hard.
func NewJobError(kind ErrorKind, message string) *JobError {
	return &JobError{
		Kind:      kind,
		Message:   message,
		Retryable: kind == ErrorKindModelUnavailable,
	}
}

// Job is the persistent record of one end-to-end pipeline invocation.
type Job struct {
	ID          string     `json:"id"`
	Kind        JobKind    `json:"kind"`
	Input       JobInput   `json:"input"`
	Stage       string     `json:"stage,omitempty"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	OutputRef   string     `json:"output_ref,omitempty"`
	Error       *JobError  `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Attempts    int        `json:"attempts"`
}

// ListFilter narrows a Job Store listing by kind, status, and a creation-time
// cursor for pagination.
type ListFilter struct {
	Kind         JobKind
	Status       JobStatus
	CreatedAfter time.Time
	Limit        int
}
