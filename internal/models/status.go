package models

// StatusSnapshot is a live mirror of a Job with fields the worker updates far
// more frequently than the Job Store record. The Job Store is the source of
// truth on terminal state; the snapshot is the source of truth for live
// progress and is held in the Status Channel with a TTL, refreshed on every
// write.
type StatusSnapshot struct {
	Status          JobStatus `json:"status"`
	Progress        int       `json:"progress"`
	CurrentStep     string    `json:"current_step,omitempty"`
	StepDescription string    `json:"step_description,omitempty"`
	PreviewRefs     []string  `json:"preview_refs,omitempty"`
	Error           *JobError `json:"error,omitempty"`
}

// Patch describes a partial update merged into a snapshot or a Job record.
// Zero-value fields are not applied; use pointers where "unset" must be
// distinguishable from the zero value.
type Patch struct {
	Status          *JobStatus
	Stage           *string
	Progress        *int
	CurrentStep     *string
	StepDescription *string
	PreviewRefs     []string
	OutputRef       *string
	Error           *JobError
}
