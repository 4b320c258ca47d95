package models

import "github.com/deckpipe/deckpipe/internal/mutate"

// SlideDescriptor is one entry in a content plan. SlideID is durable: it is
// embedded into the generated slide's notes as "slide_id: <id>" so physical
// position can be re-associated with logical identity after reordering or
// deletion of neighbouring slides.
type SlideDescriptor struct {
	SlideID       string `json:"slide_id"`
	SlideType     string `json:"slide_type"`
	LayoutRef     string `json:"layout_ref"`
	Reasoning     string `json:"reasoning,omitempty"`
	SectionTitle  string `json:"section_title,omitempty"`
	SectionConent string `json:"-"` // reserved; section content is resolved from the outline at generate time, not serialized here
}

// ContentPlan is the Plan Content stage's artifact: the ordered slide list
// that dictates final structure. It always opens with one opening slide and
// closes with one closing slide.
type ContentPlan struct {
	Slides []SlideDescriptor `json:"slides"`
}

// SlideByID returns the plan entry with the given slide_id, or false if none
// matches.
func (p *ContentPlan) SlideByID(id string) (SlideDescriptor, bool) {
	for _, s := range p.Slides {
		if s.SlideID == id {
			return s, true
		}
	}
	return SlideDescriptor{}, false
}

// GeneratedSlide records the outcome of the Generate Slides stage for one
// plan entry: the operations it emitted and applied against the cloned
// template slide.
type GeneratedSlide struct {
	SlideID    string             `json:"slide_id"`
	Operations []mutate.Operation `json:"operations"`
}

// SlideValidationRecord is the per-slide outcome of one Validation Loop
// iteration, carried forward across iterations so the final recorded
// quality_score is always the last one observed.
type SlideValidationRecord struct {
	SlideID          string   `json:"slide_id"`
	HasIssues        bool     `json:"has_issues"`
	Issues           []string `json:"issues,omitempty"`
	Suggestions      []string `json:"suggestions,omitempty"`
	QualityScore     float64  `json:"quality_score"`
	OperationsApplied int     `json:"operations_applied"`
	AnalysisError    string   `json:"analysis_error,omitempty"`
}
