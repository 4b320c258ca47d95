// Package mutate implements the tagged-sum Operation type used throughout
// the pipeline to describe element-addressed edits to a presentation, its
// single applier, and the narrow presentation-mutation client contract that
// internal/stage and internal/validate call through. The mutation API's own
// internals are out of scope; only this contract is implemented here.
package mutate

import "fmt"

// Verb names one kind of element-addressed edit. Dynamic dispatch over verbs
// is implemented as this tagged sum rather than an interface hierarchy, so
// a vision analyzer's or content planner's JSON output decodes directly into
// Operation before application.
type Verb string

const (
	VerbUpdateText      Verb = "update_text"
	VerbAdjustFontSize  Verb = "adjust_font_size"
	VerbReplaceImage    Verb = "replace_image"
	VerbAdjustPosition  Verb = "adjust_position"
	VerbResize          Verb = "resize"
	VerbDeleteElement   Verb = "delete_element"
)

// priority orders operation application within a single batch: font-size
// adjustments first, then text-content updates, then reposition/resize.
// Verbs not listed sort last, in encounter order relative to each other
// (stable sort).
var priority = map[Verb]int{
	VerbAdjustFontSize: 0,
	VerbUpdateText:     1,
	VerbAdjustPosition: 2,
	VerbResize:         2,
	VerbReplaceImage:   3,
	VerbDeleteElement:  4,
}

// Priority returns v's sort rank for SortByPriority. Unknown verbs rank last.
func Priority(v Verb) int {
	if p, ok := priority[v]; ok {
		return p
	}
	return len(priority)
}

// Operation is one typed, element-addressed edit. Only the fields relevant
// to Verb are populated; the rest are left at their zero value.
type Operation struct {
	Verb      Verb    `json:"verb"`
	ElementID string  `json:"element_id"`
	Text      string  `json:"text,omitempty"`
	FontSize  float64 `json:"font_size,omitempty"`
	ImagePath string  `json:"image_path,omitempty"`
	X         float64 `json:"x,omitempty"`
	Y         float64 `json:"y,omitempty"`
	Width     float64 `json:"width,omitempty"`
	Height    float64 `json:"height,omitempty"`
}

// Validate reports whether an operation is well-formed enough to apply:
// it must name an element and carry a known verb.
func (op Operation) Validate() error {
	if op.ElementID == "" {
		return fmt.Errorf("mutate: operation %s missing element_id", op.Verb)
	}
	switch op.Verb {
	case VerbUpdateText, VerbAdjustFontSize, VerbReplaceImage, VerbAdjustPosition, VerbResize, VerbDeleteElement:
		return nil
	default:
		return fmt.Errorf("mutate: unknown operation verb %q", op.Verb)
	}
}

// SortByPriority stable-sorts ops in place by their verb priority, so a
// single slide's mixed operation batch applies font-size adjustments, then
// text updates, then repositioning/resizing, in one pass.
func SortByPriority(ops []Operation) {
	stableSortByPriority(ops)
}
