package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentPlan_SlideByID_Found(t *testing.T) {
	p := &ContentPlan{Slides: []SlideDescriptor{
		{SlideID: "s1", SlideType: "title"},
		{SlideID: "s2", SlideType: "content"},
	}}

	slide, ok := p.SlideByID("s2")
	assert.True(t, ok)
	assert.Equal(t, "content", slide.SlideType)
}

func TestContentPlan_SlideByID_NotFound(t *testing.T) {
	p := &ContentPlan{Slides: []SlideDescriptor{{SlideID: "s1"}}}

	_, ok := p.SlideByID("missing")
	assert.False(t, ok)
}

func TestContentPlan_SlideByID_EmptyPlan(t *testing.T) {
	p := &ContentPlan{}
	_, ok := p.SlideByID("anything")
	assert.False(t, ok)
}

func TestSlideValidationRecord_FieldsRoundTripAsExpected(t *testing.T) {
	r := SlideValidationRecord{
		SlideID:           "s1",
		HasIssues:         true,
		Issues:            []string{"text overflows placeholder"},
		Suggestions:       []string{"shorten bullet 2"},
		QualityScore:      0.62,
		OperationsApplied: 3,
	}
	assert.True(t, r.HasIssues)
	assert.Len(t, r.Issues, 1)
	assert.Equal(t, 3, r.OperationsApplied)
	assert.Empty(t, r.AnalysisError)
}
