package stage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/deckpipe/deckpipe/internal/config"
	"github.com/deckpipe/deckpipe/internal/models"
)

const parsePrompt = `Parse the following Markdown document into a structured outline. ` +
	`Respond with JSON: {"title","subtitle","sections":[{"title","blocks":[...],"subsections":[...],` +
	`"semantic_type","relation_type","visualization_hint"}]}.`

// runParse implements stage 1: Parse. Precondition: non-empty markdown
// (enforced at submission as InputInvalid; here a defensive
// PreconditionMissing covers a job that somehow reached this point with
// none). A model-call failure is retried (bounded, inside the Model Client
// Pool) and becomes StageFailed only once that budget is exhausted; an
// outline that parses but yields zero sections is a distinct, immediate
// StageFailed — never retried, per the Open Question 1 decision recorded in
// DESIGN.md.
func (e *Engine) runParse(ctx context.Context, markdown string) (*models.ContentOutline, *models.JobError) {
	if markdown == "" {
		return nil, models.NewJobError(models.ErrorKindPreconditionMissing, "markdown input is empty")
	}

	key, err := fingerprint(markdown)
	if err != nil {
		return nil, models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("fingerprinting markdown: %v", err))
	}

	var outline models.ContentOutline
	if hit, err := e.cache.Get(ctx, StageParse, key, &outline); err == nil && hit {
		return &outline, nil
	}

	client, err := e.pool.Get(ctx, config.KindText)
	if err != nil {
		return nil, models.NewJobError(models.ErrorKindModelUnavailable, fmt.Sprintf("acquiring text client: %v", err))
	}

	raw, err := client.GenerateText(ctx, parsePrompt+"\n\n"+markdown)
	if err != nil {
		var jobErr *models.JobError
		if errors.As(err, &jobErr) {
			return nil, models.NewJobError(models.ErrorKindStageFailed, "parse model call exhausted retry budget: "+jobErr.Message)
		}
		return nil, models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("parse model call failed: %v", err))
	}

	if err := json.Unmarshal([]byte(raw), &outline); err != nil {
		return nil, models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("parsing outline response: %v", err))
	}

	if outline.Empty() {
		return nil, models.NewJobError(models.ErrorKindStageFailed, "parsed outline contains zero sections")
	}

	if err := e.cache.Put(ctx, StageParse, key, &outline); err != nil {
		return nil, models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("caching outline: %v", err))
	}
	return &outline, nil
}
