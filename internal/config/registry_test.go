package config

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConfigStore struct {
	mu       sync.Mutex
	configs  map[ModelKind]*ActiveModelConfig
	getCalls map[ModelKind]int
}

func newFakeConfigStore() *fakeConfigStore {
	return &fakeConfigStore{configs: make(map[ModelKind]*ActiveModelConfig), getCalls: make(map[ModelKind]int)}
}

func (f *fakeConfigStore) GetActiveModelConfig(ctx context.Context, kind ModelKind) (*ActiveModelConfig, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls[kind]++
	cfg, ok := f.configs[kind]
	return cfg, ok, nil
}

func (f *fakeConfigStore) calls(kind ModelKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls[kind]
}

type erroringStore struct{}

func (erroringStore) GetActiveModelConfig(ctx context.Context, kind ModelKind) (*ActiveModelConfig, bool, error) {
	return nil, false, errors.New("connection refused")
}

type fakeInvalidator struct {
	mu    sync.Mutex
	kinds []ModelKind
}

func (f *fakeInvalidator) Invalidate(kind ModelKind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kind)
}

func (f *fakeInvalidator) invalidated() []ModelKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ModelKind(nil), f.kinds...)
}

func TestGet_UnknownKindReturnsError(t *testing.T) {
	r := NewActiveConfigRegistry(newFakeConfigStore())
	_, err := r.Get(context.Background(), KindText)
	assert.ErrorContains(t, err, "no active config")
}

func TestGet_PropagatesStoreError(t *testing.T) {
	r := NewActiveConfigRegistry(erroringStore{})
	_, err := r.Get(context.Background(), KindText)
	assert.ErrorContains(t, err, "connection refused")
}

func TestGet_CachesAfterFirstLookup(t *testing.T) {
	store := newFakeConfigStore()
	store.configs[KindVision] = &ActiveModelConfig{Kind: KindVision, ModelName: "vision-1"}
	r := NewActiveConfigRegistry(store)

	cfg1, err := r.Get(context.Background(), KindVision)
	require.NoError(t, err)
	cfg2, err := r.Get(context.Background(), KindVision)
	require.NoError(t, err)

	assert.Same(t, cfg1, cfg2)
	assert.Equal(t, 1, store.calls(KindVision))
}

func TestInvalidate_ForcesReloadOnNextGet(t *testing.T) {
	store := newFakeConfigStore()
	store.configs[KindText] = &ActiveModelConfig{Kind: KindText, ModelName: "v1"}
	r := NewActiveConfigRegistry(store)

	_, err := r.Get(context.Background(), KindText)
	require.NoError(t, err)

	store.configs[KindText] = &ActiveModelConfig{Kind: KindText, ModelName: "v2"}
	r.Invalidate(KindText)

	cfg, err := r.Get(context.Background(), KindText)
	require.NoError(t, err)
	assert.Equal(t, "v2", cfg.ModelName)
	assert.Equal(t, 2, store.calls(KindText))
}

func TestInvalidate_NotifiesRegisteredInvalidators(t *testing.T) {
	store := newFakeConfigStore()
	r := NewActiveConfigRegistry(store)

	inv1, inv2 := &fakeInvalidator{}, &fakeInvalidator{}
	r.RegisterInvalidator(inv1)
	r.RegisterInvalidator(inv2)

	r.Invalidate(KindDeepThinking)

	assert.Equal(t, []ModelKind{KindDeepThinking}, inv1.invalidated())
	assert.Equal(t, []ModelKind{KindDeepThinking}, inv2.invalidated())
}
