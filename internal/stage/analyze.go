package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/deckpipe/deckpipe/internal/config"
	"github.com/deckpipe/deckpipe/internal/models"
)

const analyzeTemplatePrompt = `Given the raw elements of each template slide below (as JSON, indexed by ` +
	`slide position), classify each slide layout. Respond with JSON: {"theme","layouts":[` +
	`{"layout_name","purpose","structure_type","editable_areas":[{"element_id","role"}],` +
	`"image_slots":[{"element_id"}],"group_relations":[{"name","element_ids"}],"template_slide_index"}]}.`

// rawSlideElements is the per-slide element dump fed to the analyzer.
type rawSlideElements struct {
	SlideIndex int      `json:"slide_index"`
	Elements   []string `json:"elements"`
}

// runAnalyzeTemplate implements stage 2: Analyze template. Precondition:
// the template file exists.
func (e *Engine) runAnalyzeTemplate(ctx context.Context, templateRef string) (*models.LayoutFeatures, *models.JobError) {
	if _, err := os.Stat(templateRef); err != nil {
		return nil, models.NewJobError(models.ErrorKindPreconditionMissing, fmt.Sprintf("template file %q: %v", templateRef, err))
	}

	key := templateStem(templateRef)
	var features models.LayoutFeatures
	if hit, err := e.cache.Get(ctx, StageAnalyzeTemplate, key, &features); err == nil && hit {
		return &features, nil
	}

	client := e.newClient()
	defer client.Close()
	if err := client.Open(ctx, templateRef); err != nil {
		return nil, models.NewJobError(models.ErrorKindPreconditionMissing, fmt.Sprintf("opening template: %v", err))
	}

	count, err := client.SlideCount(ctx)
	if err != nil {
		return nil, models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("reading template slide count: %v", err))
	}

	raw := make([]rawSlideElements, 0, count)
	for i := 0; i < count; i++ {
		elems, err := client.ListElements(ctx, i)
		if err != nil {
			return nil, models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("listing elements on template slide %d: %v", i, err))
		}
		ids := make([]string, 0, len(elems))
		for _, el := range elems {
			ids = append(ids, el.ElementID+":"+el.Kind)
		}
		raw = append(raw, rawSlideElements{SlideIndex: i, Elements: ids})
	}

	payload, err := json.Marshal(raw)
	if err != nil {
		return nil, models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("marshaling template elements: %v", err))
	}

	modelClient, err := e.pool.Get(ctx, config.KindDeepThinking)
	if err != nil {
		return nil, models.NewJobError(models.ErrorKindModelUnavailable, fmt.Sprintf("acquiring deep_thinking client: %v", err))
	}

	result, err := modelClient.GenerateText(ctx, analyzeTemplatePrompt+"\n\n"+string(payload))
	if err != nil {
		return nil, models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("analyze template model call: %v", err))
	}

	if err := json.Unmarshal([]byte(result), &features); err != nil {
		return nil, models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("parsing layout features response: %v", err))
	}

	if err := e.cache.Put(ctx, StageAnalyzeTemplate, key, &features); err != nil {
		return nil, models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("caching layout features: %v", err))
	}
	return &features, nil
}
