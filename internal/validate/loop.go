// Package validate implements the Validation Loop: the convergent per-slide
// render-diagnose-repair cycle inside Finalize. Diagnosis fans out as
// bounded concurrent tasks; repairs are applied serially in ascending
// position order to preserve structural integrity. The concurrent-dispatch
// / serial-drain shape uses a bounded reservation-counter plus a buffered
// results channel for concurrent sub-task dispatch, adapted here to
// validation rounds — these must not share an iteration counter with any
// other round-based loop in the process.
package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/deckpipe/deckpipe/internal/models"
	"github.com/deckpipe/deckpipe/internal/modelpool"
	"github.com/deckpipe/deckpipe/internal/mutate"
)

// CancelledFunc is polled at the top of every outer iteration.
type CancelledFunc func() bool

// VisionClientFunc returns the vision-kind Model Client Pool client,
// resolved lazily so the loop never holds a stale reference across a config
// hot-reload.
type VisionClientFunc func(ctx context.Context) (modelpool.Client, error)

// Loop runs the bounded outer-iteration validation algorithm against one
// job's in-memory presentation.
type Loop struct {
	client        mutate.Client
	plan          *models.ContentPlan
	visionClient  VisionClientFunc
	maxIterations int
	maxWorkers    int
}

// New constructs a Loop. maxIterations and maxWorkers default to 1 if
// non-positive.
func New(client mutate.Client, plan *models.ContentPlan, visionClient VisionClientFunc, maxIterations, maxWorkers int) *Loop {
	if maxIterations <= 0 {
		maxIterations = 1
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &Loop{client: client, plan: plan, visionClient: visionClient, maxIterations: maxIterations, maxWorkers: maxWorkers}
}

// analysisResult is one slide's per-iteration diagnosis.
type analysisResult struct {
	position     int
	slideID      string
	hasIssues    bool
	issues       []string
	suggestions  []string
	operations   []mutate.Operation
	qualityScore float64
	err          error
}

// modelResponse is the vision analyzer's JSON contract.
type modelResponse struct {
	HasIssues    bool               `json:"has_issues"`
	Issues       []string           `json:"issues"`
	Suggestions  []string           `json:"suggestions"`
	Operations   []mutate.Operation `json:"operations"`
	QualityScore float64            `json:"quality_score"`
}

// Run executes the outer iteration loop and returns the final per-slide
// validation records, each guaranteed to be the last one observed for its
// slide. Run returns a non-nil error only when the context itself is
// cancelled; a save/render failure aborts just that iteration (it is neither
// logged nor returned) and the next iteration is attempted.
func (l *Loop) Run(ctx context.Context, cancelled CancelledFunc) ([]models.SlideValidationRecord, error) {
	records := make(map[string]models.SlideValidationRecord)

	for iteration := 1; iteration <= l.maxIterations; iteration++ {
		if cancelled() {
			return recordSlice(records), nil
		}
		if err := ctx.Err(); err != nil {
			return recordSlice(records), err
		}

		imageByPosition, slideIDByPosition, err := l.renderBatch(ctx)
		if err != nil {
			// Save/render failure: abort this iteration only, retry next.
			continue
		}

		candidates := l.matchCandidates(imageByPosition, slideIDByPosition)
		results := l.diagnoseAll(ctx, candidates)

		anyIssues, operationsExecuted := l.applyRepairs(ctx, results, records)

		if !anyIssues || operationsExecuted == 0 {
			break
		}
	}

	return recordSlice(records), nil
}

// renderBatch saves the presentation and rasterizes every current slide,
// returning position->image_path and position->slide_id maps.
func (l *Loop) renderBatch(ctx context.Context) (map[int]string, map[int]string, error) {
	tmpDir, err := os.MkdirTemp("", "validate-render-*")
	if err != nil {
		return nil, nil, fmt.Errorf("creating render scratch dir: %w", err)
	}
	tmpFile := tmpDir + "/current.tmp"
	if err := l.client.Save(ctx, tmpFile); err != nil {
		return nil, nil, fmt.Errorf("saving presentation for render: %w", err)
	}

	images, err := l.client.RenderSlides(ctx, tmpDir)
	if err != nil {
		return nil, nil, fmt.Errorf("rendering slides: %w", err)
	}

	slideIDs := make(map[int]string, len(images))
	for position := range images {
		notes, err := l.client.GetNotes(ctx, position)
		if err != nil {
			continue
		}
		if id, ok := mutate.ParseSlideID(notes); ok {
			slideIDs[position] = id
		}
	}
	return images, slideIDs, nil
}

type candidate struct {
	position int
	slideID  string
	imgPath  string
	plan     models.SlideDescriptor
}

// matchCandidates keeps only positions that have both an image and a
// matching content_plan entry by slide_id.
func (l *Loop) matchCandidates(imageByPosition, slideIDByPosition map[int]string) []candidate {
	var out []candidate
	for position, imgPath := range imageByPosition {
		id, ok := slideIDByPosition[position]
		if !ok {
			continue
		}
		entry, ok := l.plan.SlideByID(id)
		if !ok {
			continue
		}
		out = append(out, candidate{position: position, slideID: id, imgPath: imgPath, plan: entry})
	}
	return out
}

// diagnoseAll dispatches per-slide analyses as bounded concurrent tasks (up
// to maxWorkers) and collects every result before returning — analyses run
// in unspecified order, but diagnoseAll always waits for all of them, since
// the repair phase that follows must see every slide's diagnosis.
func (l *Loop) diagnoseAll(ctx context.Context, candidates []candidate) []analysisResult {
	sem := make(chan struct{}, l.maxWorkers)
	results := make(chan analysisResult, len(candidates))

	var wg sync.WaitGroup
	for _, c := range candidates {
		c := c
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results <- l.diagnoseOne(ctx, c)
		}()
	}
	wg.Wait()
	close(results)

	out := make([]analysisResult, 0, len(candidates))
	for r := range results {
		out = append(out, r)
	}
	return out
}

func (l *Loop) diagnoseOne(ctx context.Context, c candidate) analysisResult {
	vc, err := l.visionClient(ctx)
	if err != nil {
		return analysisResult{position: c.position, slideID: c.slideID, err: fmt.Errorf("acquiring vision client: %w", err)}
	}

	elements, err := l.client.ListElements(ctx, c.position)
	if err != nil {
		return analysisResult{position: c.position, slideID: c.slideID, err: fmt.Errorf("listing elements: %w", err)}
	}
	prompt, err := buildAnalysisPrompt(c.plan, elements)
	if err != nil {
		return analysisResult{position: c.position, slideID: c.slideID, err: fmt.Errorf("building analysis prompt: %w", err)}
	}

	raw, err := vc.AnalyzeImage(ctx, c.imgPath, prompt)
	if err != nil {
		// An individual slide's analysis failure does not abort the loop —
		// it is recorded and the loop continues.
		return analysisResult{position: c.position, slideID: c.slideID, err: err}
	}

	var resp modelResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return analysisResult{position: c.position, slideID: c.slideID, err: fmt.Errorf("parsing analysis response: %w", err)}
	}
	return analysisResult{
		position: c.position, slideID: c.slideID,
		hasIssues: resp.HasIssues, issues: resp.Issues, suggestions: resp.Suggestions,
		operations: resp.Operations, qualityScore: resp.QualityScore,
	}
}

func buildAnalysisPrompt(entry models.SlideDescriptor, elements []mutate.ElementInfo) (string, error) {
	payload, err := json.Marshal(struct {
		Section  string               `json:"section_title"`
		Elements []mutate.ElementInfo `json:"elements"`
	}{Section: entry.SectionTitle, Elements: elements})
	if err != nil {
		return "", err
	}
	return "Evaluate this slide for overflow, readability, and layout issues against its intended content. " +
		"Respond with JSON: {\"has_issues\",\"issues\",\"suggestions\",\"operations\",\"quality_score\"}.\n\n" + string(payload), nil
}

// applyRepairs applies each result's operations in ascending position order,
// recording the final per-slide state into records and returning whether
// any slide reported issues this iteration and the count of operations
// actually executed.
func (l *Loop) applyRepairs(ctx context.Context, results []analysisResult, records map[string]models.SlideValidationRecord) (anyIssues bool, operationsExecuted int) {
	sort.Slice(results, func(i, j int) bool { return results[i].position < results[j].position })

	for _, r := range results {
		record := models.SlideValidationRecord{
			SlideID:      r.slideID,
			HasIssues:    r.hasIssues,
			Issues:       r.issues,
			Suggestions:  r.suggestions,
			QualityScore: r.qualityScore,
		}

		if r.err != nil {
			record.AnalysisError = r.err.Error()
			records[r.slideID] = record
			continue
		}

		if r.hasIssues {
			anyIssues = true
		}

		if r.hasIssues && len(r.operations) > 0 {
			applied, err := mutate.ApplyBatch(ctx, l.client, r.position, r.operations)
			if err != nil {
				record.AnalysisError = err.Error()
			} else {
				record.OperationsApplied = applied
				operationsExecuted += applied
			}
		}

		records[r.slideID] = record
	}
	return anyIssues, operationsExecuted
}

func recordSlice(records map[string]models.SlideValidationRecord) []models.SlideValidationRecord {
	out := make([]models.SlideValidationRecord, 0, len(records))
	for _, r := range records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlideID < out[j].SlideID })
	return out
}
