package api

import (
	"context"
	"errors"
	"sync"

	"github.com/deckpipe/deckpipe/internal/config"
	"github.com/deckpipe/deckpipe/internal/models"
	"github.com/deckpipe/deckpipe/internal/queue"
	"github.com/deckpipe/deckpipe/internal/store"
)

type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[string]*models.Job

	createErr error
	getErr    error
	listErr   error
	updateErr error

	lastListFilter models.ListFilter
	lastUpdateID   string
	lastUpdateFrom models.JobStatus
	lastPatch      models.Patch
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]*models.Job)}
}

func (f *fakeJobStore) Create(ctx context.Context, job *models.Job) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeJobStore) Get(ctx context.Context, id string) (*models.Job, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return job, nil
}

func (f *fakeJobStore) List(ctx context.Context, filter models.ListFilter) ([]*models.Job, error) {
	f.lastListFilter = filter
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Job, 0, len(f.jobs))
	for _, j := range f.jobs {
		out = append(out, j)
	}
	return out, nil
}

func (f *fakeJobStore) Update(ctx context.Context, id string, fromStatus models.JobStatus, patch models.Patch) error {
	f.lastUpdateID, f.lastUpdateFrom, f.lastPatch = id, fromStatus, patch
	if f.updateErr != nil {
		return f.updateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if patch.Status != nil {
		job.Status = *patch.Status
	}
	return nil
}

type fakeScheduler struct {
	cancelResult bool
	lastCancelID string
	health       []queue.PoolHealth
}

func (f *fakeScheduler) Cancel(jobID string) bool {
	f.lastCancelID = jobID
	return f.cancelResult
}

func (f *fakeScheduler) Health() []queue.PoolHealth {
	return f.health
}

type fakeDBPinger struct {
	err error
}

func (f *fakeDBPinger) Health(ctx context.Context) error {
	return f.err
}

type fakeStatusReader struct {
	snapshots map[string]*models.StatusSnapshot
	err       error
}

func (f *fakeStatusReader) Get(ctx context.Context, jobID string) (*models.StatusSnapshot, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	snap, ok := f.snapshots[jobID]
	return snap, ok, nil
}

func newTestServer(jobStore *fakeJobStore, scheduler Scheduler, db DatabasePinger) *Server {
	return NewServer(config.ServerConfig{}, jobStore, scheduler, db, nil, nil)
}

func newTestServerWithStatus(jobStore *fakeJobStore, scheduler Scheduler, db DatabasePinger, status StatusReader) *Server {
	return NewServer(config.ServerConfig{}, jobStore, scheduler, db, status, nil)
}

var errBoom = errors.New("boom")
