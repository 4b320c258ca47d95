package mutate

import "context"

// ElementInfo describes one element discovered on a slide by ListElements.
type ElementInfo struct {
	ElementID string  `json:"element_id"`
	Kind      string  `json:"kind"` // "text", "shape", "image"
	Text      string  `json:"text,omitempty"`
	X, Y      float64 `json:"-"`
	Width     float64 `json:"-"`
	Height    float64 `json:"-"`
}

// Client is the narrow presentation-mutation contract the Stage Engine and
// Validation Loop call through. Its implementation — the actual file format
// and editing library — is an external collaborator and out of scope here;
// only this interface and a description of how it's used is specified.
type Client interface {
	// Open loads the presentation at path into working memory.
	Open(ctx context.Context, path string) error
	// Save persists the current in-memory presentation to path.
	Save(ctx context.Context, path string) error
	// SlideCount returns the number of slides currently in the presentation.
	SlideCount(ctx context.Context) (int, error)
	// CloneSlide duplicates the slide at templateIndex, appending the copy,
	// and returns the new slide's index.
	CloneSlide(ctx context.Context, templateIndex int) (int, error)
	// DeleteSlides removes the slides at the given indices. Implementations
	// must refuse (return an error) if indices covers every slide.
	DeleteSlides(ctx context.Context, indices []int) error
	// ReorderSlides rearranges slides so that physical index i holds the
	// slide currently at order[i].
	ReorderSlides(ctx context.Context, order []int) error
	// GetNotes returns the raw notes text of the slide at index.
	GetNotes(ctx context.Context, index int) (string, error)
	// SetNotes replaces the notes text of the slide at index.
	SetNotes(ctx context.Context, index int, notes string) error
	// ListElements enumerates the editable elements on the slide at index.
	ListElements(ctx context.Context, index int) ([]ElementInfo, error)
	// Apply performs ops against the slide at index, in the order given —
	// callers are expected to have already called SortByPriority.
	Apply(ctx context.Context, index int, ops []Operation) error
	// RenderSlides rasterizes every current slide to an image file under
	// outDir and returns a map of slide index to image path.
	RenderSlides(ctx context.Context, outDir string) (map[int]string, error)
	// Close releases any resources held by the open presentation. Safe to
	// call multiple times.
	Close() error
}
