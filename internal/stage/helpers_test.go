package stage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/deckpipe/deckpipe/internal/artifact"
	"github.com/deckpipe/deckpipe/internal/config"
	"github.com/deckpipe/deckpipe/internal/modelpool"
	"github.com/deckpipe/deckpipe/internal/models"
	"github.com/deckpipe/deckpipe/internal/mutate"
	"github.com/deckpipe/deckpipe/internal/statuschan"
)

// scriptedModelServer answers /v1/generate and /v1/analyze with a
// caller-supplied body, recording every request body it receives.
type scriptedModelServer struct {
	mu        sync.Mutex
	responses []string
	calls     []string
}

func newScriptedModelServer(t *testing.T, responses ...string) *httptest.Server {
	t.Helper()
	s := &scriptedModelServer{responses: responses}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		s.mu.Lock()
		idx := len(s.calls)
		s.calls = append(s.calls, string(body))
		resp := s.responses[0]
		if idx < len(s.responses) {
			resp = s.responses[idx]
		}
		s.mu.Unlock()

		w.Write([]byte(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

type fakeActiveConfigStore struct {
	apiBase string
}

func (f fakeActiveConfigStore) GetActiveModelConfig(ctx context.Context, kind config.ModelKind) (*config.ActiveModelConfig, bool, error) {
	return &config.ActiveModelConfig{Kind: kind, APIBase: f.apiBase}, true, nil
}

func newTestPool(t *testing.T, apiBase string) *modelpool.Pool {
	t.Helper()
	registry := config.NewActiveConfigRegistry(fakeActiveConfigStore{apiBase: apiBase})
	return modelpool.NewPool(registry, map[config.ModelKind]config.ModelKindConfig{
		config.KindText:         {RequestIntervalMS: 1, RetryBudget: 1},
		config.KindDeepThinking: {RequestIntervalMS: 1, RetryBudget: 1},
		config.KindVision:       {RequestIntervalMS: 1, RetryBudget: 1},
	})
}

func newTestCache(t *testing.T) *artifact.Cache {
	t.Helper()
	c, err := artifact.New(t.TempDir())
	require.NoError(t, err)
	return c
}

func newTestStatusChannel(t *testing.T) *statuschan.Channel {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return statuschan.New(rdb)
}

// fakeEngineMutateClient is a mutate.Client double tracking slide lifecycle
// well enough to exercise generate and finalize: slides are identified by
// index 0..n-1, CloneSlide appends a new slide copying the template's
// element set, and notes/elements are addressable per-index maps.
type fakeEngineMutateClient struct {
	mu       sync.Mutex
	notes    []string
	elements [][]mutate.ElementInfo
	deleted  []int
	reorder  []int
	applied  map[int][]mutate.Operation
	savedTo  string
	saveErr  error
}

func newFakeEngineMutateClient(templateElements ...[]mutate.ElementInfo) *fakeEngineMutateClient {
	return &fakeEngineMutateClient{
		notes:    make([]string, len(templateElements)),
		elements: templateElements,
		applied:  make(map[int][]mutate.Operation),
	}
}

func (f *fakeEngineMutateClient) Open(ctx context.Context, path string) error { return nil }
func (f *fakeEngineMutateClient) Close() error                               { return nil }

func (f *fakeEngineMutateClient) SlideCount(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.elements), nil
}

func (f *fakeEngineMutateClient) CloneSlide(ctx context.Context, templateIndex int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := append([]mutate.ElementInfo(nil), f.elements[templateIndex]...)
	f.elements = append(f.elements, clone)
	f.notes = append(f.notes, "")
	return len(f.elements) - 1, nil
}

func (f *fakeEngineMutateClient) DeleteSlides(ctx context.Context, indices []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = indices
	del := make(map[int]bool, len(indices))
	for _, i := range indices {
		del[i] = true
	}
	var newElements [][]mutate.ElementInfo
	var newNotes []string
	for i := range f.elements {
		if del[i] {
			continue
		}
		newElements = append(newElements, f.elements[i])
		newNotes = append(newNotes, f.notes[i])
	}
	f.elements = newElements
	f.notes = newNotes
	return nil
}

func (f *fakeEngineMutateClient) ReorderSlides(ctx context.Context, order []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reorder = order
	newElements := make([][]mutate.ElementInfo, len(order))
	newNotes := make([]string, len(order))
	for newPos, oldPos := range order {
		newElements[newPos] = f.elements[oldPos]
		newNotes[newPos] = f.notes[oldPos]
	}
	f.elements = newElements
	f.notes = newNotes
	return nil
}

func (f *fakeEngineMutateClient) GetNotes(ctx context.Context, index int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.notes[index], nil
}

func (f *fakeEngineMutateClient) SetNotes(ctx context.Context, index int, notes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes[index] = notes
	return nil
}

func (f *fakeEngineMutateClient) ListElements(ctx context.Context, index int) ([]mutate.ElementInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.elements[index], nil
}

func (f *fakeEngineMutateClient) Apply(ctx context.Context, index int, ops []mutate.Operation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied[index] = append(f.applied[index], ops...)
	return nil
}

func (f *fakeEngineMutateClient) RenderSlides(ctx context.Context, outDir string) (map[int]string, error) {
	return nil, nil
}

func (f *fakeEngineMutateClient) Save(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.savedTo = path
	return f.saveErr
}

func neverCancelled() bool { return false }

// fakeStageJobUpdater is a queue.JobUpdater double recording every patch the
// Engine applies to the Job Store at its checkpoints.
type fakeStageJobUpdater struct {
	mu      sync.Mutex
	patches []models.Patch
}

func (f *fakeStageJobUpdater) Update(ctx context.Context, id string, fromStatus models.JobStatus, patch models.Patch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, patch)
	return nil
}

func (f *fakeStageJobUpdater) lastProgress() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.patches) == 0 {
		return 0
	}
	last := f.patches[len(f.patches)-1]
	if last.Progress == nil {
		return 0
	}
	return *last.Progress
}
