package models

// SemanticType classifies the topical role a section plays in the document.
type SemanticType string

const (
	SemanticIntroduction SemanticType = "introduction"
	SemanticBackground   SemanticType = "background"
	SemanticProblem      SemanticType = "problem"
	SemanticSolution     SemanticType = "solution"
	SemanticData         SemanticType = "data"
	SemanticComparison   SemanticType = "comparison"
	SemanticProcess      SemanticType = "process"
	SemanticConclusion   SemanticType = "conclusion"
	SemanticReference    SemanticType = "reference"
)

// RelationType classifies how a section relates to its siblings.
type RelationType string

const (
	RelationSequential   RelationType = "sequential"
	RelationParallel     RelationType = "parallel"
	RelationHierarchical RelationType = "hierarchical"
	RelationCausal       RelationType = "causal"
	RelationContrasting  RelationType = "contrasting"
	RelationStandalone   RelationType = "standalone"
)

// VisualizationHint suggests how a section's content should be rendered.
type VisualizationHint string

const (
	VisualizationTextOnly   VisualizationHint = "text_only"
	VisualizationBulletList VisualizationHint = "bullet_list"
	VisualizationChart      VisualizationHint = "chart"
	VisualizationImage      VisualizationHint = "image"
	VisualizationTable      VisualizationHint = "table"
	VisualizationTimeline   VisualizationHint = "timeline"
	VisualizationDiagram    VisualizationHint = "diagram"
)

// MaxSectionDepth is the deepest a section nesting may go: optional nested
// subsections up to 5 levels.
const MaxSectionDepth = 5

// ContentBlockKind enumerates the shapes a section's body content can take.
type ContentBlockKind string

const (
	BlockParagraph      ContentBlockKind = "paragraph"
	BlockOrderedList    ContentBlockKind = "ordered_list"
	BlockUnorderedList  ContentBlockKind = "unordered_list"
	BlockCode           ContentBlockKind = "code_block"
	BlockTable          ContentBlockKind = "table"
	BlockImageReference ContentBlockKind = "image_ref"
)

// ContentBlock is one piece of a section's body, in document order.
type ContentBlock struct {
	Kind ContentBlockKind `json:"kind"`
	// Text holds paragraph/code text, or a single list item/table cell
	// joined by newlines for list/table kinds.
	Text string `json:"text,omitempty"`
	// Items holds list items for BlockOrderedList/BlockUnorderedList.
	Items []string `json:"items,omitempty"`
	// Rows holds table rows (each a slice of cell strings) for BlockTable.
	Rows [][]string `json:"rows,omitempty"`
	// ImageRef holds the referenced path/URL for BlockImageReference.
	ImageRef string `json:"image_ref,omitempty"`
}

// Section is one node of the parsed outline tree.
type Section struct {
	Title             string            `json:"title"`
	Blocks            []ContentBlock    `json:"blocks,omitempty"`
	Subsections       []Section         `json:"subsections,omitempty"`
	SemanticType      SemanticType      `json:"semantic_type"`
	RelationType      RelationType      `json:"relation_type"`
	VisualizationHint VisualizationHint `json:"visualization_hint"`
}

// ContentOutline is the Parse stage's artifact: the document's structural
// decomposition, cached under a fingerprint of the source markdown.
type ContentOutline struct {
	Title    string    `json:"title"`
	Subtitle string    `json:"subtitle,omitempty"`
	Sections []Section `json:"sections"`
}

// Empty reports whether the outline carries no sections — the distinct,
// non-retryable failure mode for a structurally empty document: a
// successfully parsed-but-empty outline fails immediately and is never
// retried, unlike a model-call failure during Parse.
func (o *ContentOutline) Empty() bool {
	return o == nil || len(o.Sections) == 0
}
