package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/deckpipe/deckpipe/internal/models"
	"github.com/deckpipe/deckpipe/internal/mutate"
)

// runGenerateSlides implements stage 4: Generate slides. For each plan
// entry in order it clones a matching template slide, stamps its slide_id
// into notes, maps section content onto the clone's editable elements, and
// applies the resulting operation batch. It returns the per-slide record of
// applied operations and the slide count the template had before any
// cloning began — Finalize uses that count to identify the original
// template slides to delete.
func (e *Engine) runGenerateSlides(ctx context.Context, client mutate.Client, plan *models.ContentPlan, layout *models.LayoutFeatures, outline *models.ContentOutline) ([]models.GeneratedSlide, int, *models.JobError) {
	originalCount, err := client.SlideCount(ctx)
	if err != nil {
		return nil, 0, models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("reading slide count before generation: %v", err))
	}

	sectionsByTitle := flattenSections(outline.Sections)

	generated := make([]models.GeneratedSlide, 0, len(plan.Slides))
	for _, entry := range plan.Slides {
		descriptor := matchLayout(layout, entry.LayoutRef)
		if descriptor == nil {
			return nil, 0, models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("no template layout available for slide %s", entry.SlideID))
		}

		newIndex, err := client.CloneSlide(ctx, descriptor.TemplateSlideIdx)
		if err != nil {
			return nil, 0, models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("cloning template slide for %s: %v", entry.SlideID, err))
		}

		notes, err := client.GetNotes(ctx, newIndex)
		if err != nil {
			return nil, 0, models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("reading notes for slide %s: %v", entry.SlideID, err))
		}
		if err := client.SetNotes(ctx, newIndex, mutate.SetSlideID(notes, entry.SlideID)); err != nil {
			return nil, 0, models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("stamping slide_id for %s: %v", entry.SlideID, err))
		}

		elements, err := client.ListElements(ctx, newIndex)
		if err != nil {
			return nil, 0, models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("listing elements for slide %s: %v", entry.SlideID, err))
		}

		section := sectionsByTitle[entry.SectionTitle]
		ops := mapContentToElements(descriptor, elements, entry, section)

		applied, err := mutate.ApplyBatch(ctx, client, newIndex, ops)
		if err != nil {
			return nil, 0, models.NewJobError(models.ErrorKindStageFailed, fmt.Sprintf("applying operations to slide %s: %v", entry.SlideID, err))
		}

		generated = append(generated, models.GeneratedSlide{SlideID: entry.SlideID, Operations: ops[:applied]})
	}

	return generated, originalCount, nil
}

// flattenSections indexes every section (including nested subsections) by
// title for content lookup during generation.
func flattenSections(sections []models.Section) map[string]models.Section {
	out := make(map[string]models.Section)
	var walk func([]models.Section)
	walk = func(secs []models.Section) {
		for _, s := range secs {
			out[s.Title] = s
			if len(s.Subsections) > 0 {
				walk(s.Subsections)
			}
		}
	}
	walk(sections)
	return out
}

// matchLayout finds the layout descriptor named layoutRef, falling back to
// the first content layout (i.e. not free-form) if no exact match exists.
func matchLayout(layout *models.LayoutFeatures, layoutRef string) *models.LayoutDescriptor {
	for i := range layout.Layouts {
		if layout.Layouts[i].LayoutName == layoutRef {
			return &layout.Layouts[i]
		}
	}
	for i := range layout.Layouts {
		if layout.Layouts[i].StructureType != models.StructureFreeForm {
			return &layout.Layouts[i]
		}
	}
	if len(layout.Layouts) > 0 {
		return &layout.Layouts[0]
	}
	return nil
}

// mapContentToElements computes the content-to-element mapping for one
// slide: titles map to title regions, list items to bullet/numbered
// regions, long text to paragraph-multi regions, short labels to
// shape-label regions.
func mapContentToElements(descriptor *models.LayoutDescriptor, elements []mutate.ElementInfo, entry models.SlideDescriptor, section models.Section) []mutate.Operation {
	roleByElement := make(map[string]models.EditableAreaRole, len(descriptor.EditableAreas))
	for _, area := range descriptor.EditableAreas {
		roleByElement[area.ElementID] = area.Role
	}

	var ops []mutate.Operation
	listItems := collectListItems(section)
	bodyText := collectParagraphText(section)
	listIdx := 0

	for _, el := range elements {
		role, known := roleByElement[el.ElementID]
		if !known {
			continue
		}
		switch role {
		case models.RoleTitle:
			title := entry.SectionTitle
			if title == "" {
				title = section.Title
			}
			ops = append(ops, mutate.Operation{Verb: mutate.VerbUpdateText, ElementID: el.ElementID, Text: title})
		case models.RoleBulletShort, models.RoleBulletLong, models.RoleNumbered:
			if listIdx < len(listItems) {
				ops = append(ops, mutate.Operation{Verb: mutate.VerbUpdateText, ElementID: el.ElementID, Text: listItems[listIdx]})
				listIdx++
			}
		case models.RoleParagraphMulti, models.RoleParagraphSingle:
			if bodyText != "" {
				ops = append(ops, mutate.Operation{Verb: mutate.VerbUpdateText, ElementID: el.ElementID, Text: bodyText})
			}
		case models.RoleShapeLabel, models.RoleShapeContent:
			if section.Title != "" {
				ops = append(ops, mutate.Operation{Verb: mutate.VerbUpdateText, ElementID: el.ElementID, Text: section.Title})
			}
		}
	}
	return ops
}

func collectListItems(section models.Section) []string {
	var items []string
	for _, b := range section.Blocks {
		if b.Kind == models.BlockOrderedList || b.Kind == models.BlockUnorderedList {
			items = append(items, b.Items...)
		}
	}
	return items
}

func collectParagraphText(section models.Section) string {
	var parts []string
	for _, b := range section.Blocks {
		if b.Kind == models.BlockParagraph && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}
