package stage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/deckpipe/deckpipe/internal/config"
	"github.com/deckpipe/deckpipe/internal/models"
)

const planContentPrompt = `Given this document outline and these template layouts (JSON below), produce an ` +
	`ordered slide plan. It must open with exactly one opening slide and close with exactly one closing ` +
	`slide, mapping each logical section to one or more layout choices. Respond with JSON: {"slides":[` +
	`{"slide_type","layout_ref","reasoning","section_title"}]} (omit slide_id; it is assigned after).`

type planInput struct {
	Outline *models.ContentOutline `json:"outline"`
	Layout  *models.LayoutFeatures `json:"layout"`
}

// runPlanContent implements stage 3: Plan content. Precondition: both
// content_structure and layout_features are available (enforced by call
// order in Run).
func (e *Engine) runPlanContent(ctx context.Context, outline *models.ContentOutline, layout *models.LayoutFeatures) (*models.ContentPlan, *models.JobError) {
	outlineKey, err := fingerprint(outline)
	if err != nil {
		return nil, models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("fingerprinting outline: %v", err))
	}
	layoutKey, err := fingerprint(layout)
	if err != nil {
		return nil, models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("fingerprinting layout: %v", err))
	}
	key := combineFingerprints(outlineKey, layoutKey)

	var plan models.ContentPlan
	if hit, err := e.cache.Get(ctx, StagePlanContent, key, &plan); err == nil && hit {
		return &plan, nil
	}

	payload, err := json.Marshal(planInput{Outline: outline, Layout: layout})
	if err != nil {
		return nil, models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("marshaling plan input: %v", err))
	}

	client, err := e.pool.Get(ctx, config.KindDeepThinking)
	if err != nil {
		return nil, models.NewJobError(models.ErrorKindModelUnavailable, fmt.Sprintf("acquiring deep_thinking client: %v", err))
	}

	raw, err := client.GenerateText(ctx, planContentPrompt+"\n\n"+string(payload))
	if err != nil {
		return nil, models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("plan content model call: %v", err))
	}

	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("parsing content plan response: %v", err))
	}
	if len(plan.Slides) < 2 {
		return nil, models.NewJobError(models.ErrorKindStageFailed, "content plan has fewer than 2 slides (must have opening and closing)")
	}

	// Assign durable slide_ids: the planner is not trusted to emit globally
	// unique ids, so the engine is the sole authority for slide_id minting.
	for i := range plan.Slides {
		plan.Slides[i].SlideID = uuid.NewString()
	}

	if err := e.cache.Put(ctx, StagePlanContent, key, &plan); err != nil {
		return nil, models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("caching content plan: %v", err))
	}
	return &plan, nil
}
