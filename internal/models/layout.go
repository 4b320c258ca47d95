package models

// ContentStructureType classifies a template layout's overall shape.
type ContentStructureType string

const (
	StructureTitleBody  ContentStructureType = "title_body"
	StructureBulletList ContentStructureType = "bullet_list"
	StructureFlow       ContentStructureType = "flow"
	StructureGrid       ContentStructureType = "grid"
	StructureComparison ContentStructureType = "comparison"
	StructureTimeline   ContentStructureType = "timeline"
	StructureFreeForm   ContentStructureType = "free_form"
)

// EditableAreaRole classifies the purpose of one editable region in a layout.
type EditableAreaRole string

const (
	RoleTitle            EditableAreaRole = "title"
	RoleParagraphSingle  EditableAreaRole = "paragraph_single"
	RoleParagraphMulti   EditableAreaRole = "paragraph_multi"
	RoleBulletShort      EditableAreaRole = "bullet_short"
	RoleBulletLong       EditableAreaRole = "bullet_long"
	RoleNumbered         EditableAreaRole = "numbered"
	RoleShapeLabel       EditableAreaRole = "shape_label"
	RoleShapeContent     EditableAreaRole = "shape_content"
)

// EditableArea is one text or shape element in a template layout whose
// content may be replaced by the Generate Slides stage.
type EditableArea struct {
	ElementID string           `json:"element_id"`
	Role      EditableAreaRole `json:"role"`
}

// ImageSlot is an image placeholder in a template layout.
type ImageSlot struct {
	ElementID string `json:"element_id"`
}

// GroupRelation records that a set of elements in a layout form one
// composite region (e.g. a label+value pair) that should be edited together.
type GroupRelation struct {
	Name       string   `json:"name"`
	ElementIDs []string `json:"element_ids"`
}

// LayoutDescriptor is one template layout's feature set, as produced by the
// Analyze Template stage.
type LayoutDescriptor struct {
	LayoutName       string               `json:"layout_name"`
	Purpose          string               `json:"purpose,omitempty"`
	StructureType    ContentStructureType `json:"structure_type"`
	EditableAreas    []EditableArea       `json:"editable_areas"`
	ImageSlots       []ImageSlot          `json:"image_slots,omitempty"`
	GroupRelations   []GroupRelation      `json:"group_relations,omitempty"`
	TemplateSlideIdx int                  `json:"template_slide_index"`
}

// LayoutFeatures is the Analyze Template stage's artifact: the full set of
// layout descriptors plus the template's theme, cached under the template
// file stem.
type LayoutFeatures struct {
	Theme    string             `json:"theme,omitempty"`
	Layouts  []LayoutDescriptor `json:"layouts"`
}
