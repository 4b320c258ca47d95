package validate

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckpipe/deckpipe/internal/modelpool"
	"github.com/deckpipe/deckpipe/internal/models"
	"github.com/deckpipe/deckpipe/internal/mutate"
)

type fakeMutateClient struct {
	mu       sync.Mutex
	notes    map[int]string
	images   map[int]string
	elements map[int][]mutate.ElementInfo
	applied  map[int][]mutate.Operation

	renderErr error
	saveErr   error
}

func newFakeMutateClient() *fakeMutateClient {
	return &fakeMutateClient{
		notes:    make(map[int]string),
		images:   make(map[int]string),
		elements: make(map[int][]mutate.ElementInfo),
		applied:  make(map[int][]mutate.Operation),
	}
}

func (f *fakeMutateClient) Open(ctx context.Context, path string) error { return nil }
func (f *fakeMutateClient) Save(ctx context.Context, path string) error { return f.saveErr }
func (f *fakeMutateClient) SlideCount(ctx context.Context) (int, error) {
	return len(f.images), nil
}
func (f *fakeMutateClient) CloneSlide(ctx context.Context, templateIndex int) (int, error) {
	return 0, nil
}
func (f *fakeMutateClient) DeleteSlides(ctx context.Context, indices []int) error { return nil }
func (f *fakeMutateClient) ReorderSlides(ctx context.Context, order []int) error  { return nil }
func (f *fakeMutateClient) GetNotes(ctx context.Context, index int) (string, error) {
	return f.notes[index], nil
}
func (f *fakeMutateClient) SetNotes(ctx context.Context, index int, notes string) error {
	f.notes[index] = notes
	return nil
}
func (f *fakeMutateClient) ListElements(ctx context.Context, index int) ([]mutate.ElementInfo, error) {
	return f.elements[index], nil
}
func (f *fakeMutateClient) Apply(ctx context.Context, index int, ops []mutate.Operation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied[index] = append(f.applied[index], ops...)
	return nil
}
func (f *fakeMutateClient) RenderSlides(ctx context.Context, outDir string) (map[int]string, error) {
	if f.renderErr != nil {
		return nil, f.renderErr
	}
	return f.images, nil
}
func (f *fakeMutateClient) Close() error { return nil }

type fakeVisionClient struct {
	mu        sync.Mutex
	responses []string // consumed in order across calls, last one repeats
	calls     int
	err       error
}

func (f *fakeVisionClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("not used")
}
func (f *fakeVisionClient) GenerateEmbedding(ctx context.Context, text string) ([]float64, error) {
	return nil, errors.New("not used")
}
func (f *fakeVisionClient) AnalyzeImage(ctx context.Context, imagePath, prompt string) (string, error) {
	return f.AnalyzeImages(ctx, []string{imagePath}, prompt)
}
func (f *fakeVisionClient) AnalyzeImages(ctx context.Context, imagePaths []string, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	return f.responses[idx], nil
}
func (f *fakeVisionClient) Close() error { return nil }

func visionFunc(c modelpool.Client) VisionClientFunc {
	return func(ctx context.Context) (modelpool.Client, error) { return c, nil }
}

func noIssuesResponse() string {
	b, _ := json.Marshal(modelResponse{HasIssues: false, QualityScore: 0.95})
	return string(b)
}

func issuesResponse(ops []mutate.Operation) string {
	b, _ := json.Marshal(modelResponse{
		HasIssues:    true,
		Issues:       []string{"text overflows"},
		Suggestions:  []string{"shrink font"},
		Operations:   ops,
		QualityScore: 0.4,
	})
	return string(b)
}

func onePlanOneSlide() *models.ContentPlan {
	return &models.ContentPlan{Slides: []models.SlideDescriptor{
		{SlideID: "s1", SlideType: "content", SectionTitle: "Intro"},
	}}
}

func TestRun_NoIssuesConvergesAfterFirstIteration(t *testing.T) {
	client := newFakeMutateClient()
	client.notes[0] = "slide_id: s1"
	client.images[0] = "/tmp/slide0.png"
	client.elements[0] = []mutate.ElementInfo{{ElementID: "e1", Kind: "text"}}

	vc := &fakeVisionClient{responses: []string{noIssuesResponse()}}
	loop := New(client, onePlanOneSlide(), visionFunc(vc), 5, 2)

	records, err := loop.Run(context.Background(), func() bool { return false })
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].HasIssues)
	assert.Equal(t, 1, vc.calls, "should stop after the first clean iteration")
}

func TestRun_AppliesRepairsThenConverges(t *testing.T) {
	client := newFakeMutateClient()
	client.notes[0] = "slide_id: s1"
	client.images[0] = "/tmp/slide0.png"
	client.elements[0] = []mutate.ElementInfo{{ElementID: "e1", Kind: "text"}}

	ops := []mutate.Operation{{Verb: mutate.VerbAdjustFontSize, ElementID: "e1", FontSize: 12}}
	vc := &fakeVisionClient{responses: []string{issuesResponse(ops), noIssuesResponse()}}
	loop := New(client, onePlanOneSlide(), visionFunc(vc), 5, 2)

	records, err := loop.Run(context.Background(), func() bool { return false })
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 0, records[0].OperationsApplied, "the record kept is the second, clean iteration's")
	assert.Equal(t, 2, vc.calls, "first iteration repairs, second confirms no issues")
	assert.Len(t, client.applied[0], 1)
}

func TestRun_StopsImmediatelyWhenAlreadyCancelled(t *testing.T) {
	client := newFakeMutateClient()
	vc := &fakeVisionClient{responses: []string{noIssuesResponse()}}
	loop := New(client, onePlanOneSlide(), visionFunc(vc), 5, 2)

	records, err := loop.Run(context.Background(), func() bool { return true })
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 0, vc.calls)
}

func TestRun_ContextCancelledReturnsError(t *testing.T) {
	client := newFakeMutateClient()
	vc := &fakeVisionClient{responses: []string{noIssuesResponse()}}
	loop := New(client, onePlanOneSlide(), visionFunc(vc), 5, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := loop.Run(ctx, func() bool { return false })
	assert.Error(t, err)
}

func TestRun_RenderFailureAbortsIterationAndRetries(t *testing.T) {
	client := newFakeMutateClient()
	client.notes[0] = "slide_id: s1"
	client.images[0] = "/tmp/slide0.png"
	client.elements[0] = []mutate.ElementInfo{{ElementID: "e1"}}
	client.renderErr = errors.New("render backend unavailable")

	vc := &fakeVisionClient{responses: []string{noIssuesResponse()}}
	loop := New(client, onePlanOneSlide(), visionFunc(vc), 2, 1)

	records, err := loop.Run(context.Background(), func() bool { return false })
	require.NoError(t, err)
	assert.Empty(t, records, "render never succeeds, so no candidate is ever diagnosed")
	assert.Equal(t, 0, vc.calls)
}

func TestRun_AnalysisErrorIsRecordedNotFatal(t *testing.T) {
	client := newFakeMutateClient()
	client.notes[0] = "slide_id: s1"
	client.images[0] = "/tmp/slide0.png"
	client.elements[0] = []mutate.ElementInfo{{ElementID: "e1"}}

	vc := &fakeVisionClient{err: errors.New("vision backend timed out")}
	loop := New(client, onePlanOneSlide(), visionFunc(vc), 1, 1)

	records, err := loop.Run(context.Background(), func() bool { return false })
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Contains(t, records[0].AnalysisError, "vision backend timed out")
}

func TestNew_DefaultsNonPositiveIterationsAndWorkersToOne(t *testing.T) {
	client := newFakeMutateClient()
	loop := New(client, onePlanOneSlide(), visionFunc(&fakeVisionClient{}), 0, -1)
	assert.Equal(t, 1, loop.maxIterations)
	assert.Equal(t, 1, loop.maxWorkers)
}

func TestMatchCandidates_SkipsPositionsMissingSlideIDOrPlanEntry(t *testing.T) {
	client := newFakeMutateClient()
	loop := New(client, onePlanOneSlide(), visionFunc(&fakeVisionClient{}), 1, 1)

	candidates := loop.matchCandidates(
		map[int]string{0: "/tmp/a.png", 1: "/tmp/b.png", 2: "/tmp/c.png"},
		map[int]string{0: "s1", 1: "unknown-slide"},
	)

	require.Len(t, candidates, 1)
	assert.Equal(t, 0, candidates[0].position)
	assert.Equal(t, "s1", candidates[0].slideID)
}
