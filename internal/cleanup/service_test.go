package cleanup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckpipe/deckpipe/internal/config"
)

type fakeJobStore struct {
	mu               sync.Mutex
	orphansRecovered int64
	purged           int64
	orphanCalls      int
	purgeCalls       int
	orphanErr        error
	purgeErr         error
	lastThreshold    time.Duration
	lastCutoff       time.Time
}

func (f *fakeJobStore) RecoverOrphans(ctx context.Context, threshold time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orphanCalls++
	f.lastThreshold = threshold
	if f.orphanErr != nil {
		return 0, f.orphanErr
	}
	return f.orphansRecovered, nil
}

func (f *fakeJobStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purgeCalls++
	f.lastCutoff = cutoff
	if f.purgeErr != nil {
		return 0, f.purgeErr
	}
	return f.purged, nil
}

func (f *fakeJobStore) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orphanCalls, f.purgeCalls
}

func testRetentionConfig() config.RetentionConfig {
	return config.RetentionConfig{
		Interval:        20 * time.Millisecond,
		OrphanThreshold: time.Hour,
		JobRetention:    30 * 24 * time.Hour,
	}
}

func TestStart_RunsImmediatelyBeforeFirstTick(t *testing.T) {
	store := &fakeJobStore{}
	svc := NewService(testRetentionConfig(), store, nil)

	svc.Start(context.Background())
	defer svc.Stop()

	require.Eventually(t, func() bool {
		orphanCalls, purgeCalls := store.calls()
		return orphanCalls >= 1 && purgeCalls >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestStart_IsIdempotent(t *testing.T) {
	store := &fakeJobStore{}
	svc := NewService(testRetentionConfig(), store, nil)

	svc.Start(context.Background())
	svc.Start(context.Background())
	done := svc.done

	svc.Stop()

	select {
	case <-done:
	default:
		t.Fatal("second Start call should not have replaced the running loop's done channel")
	}
}

func TestStop_WaitsForLoopExit(t *testing.T) {
	store := &fakeJobStore{}
	svc := NewService(testRetentionConfig(), store, nil)

	svc.Start(context.Background())
	svc.Stop()

	select {
	case <-svc.done:
	default:
		t.Fatal("done channel should be closed after Stop")
	}
}

func TestStop_WithoutStart_IsNoop(t *testing.T) {
	svc := NewService(testRetentionConfig(), &fakeJobStore{}, nil)
	assert.NotPanics(t, svc.Stop)
}

func TestPurgeOldJobs_UsesCutoffDerivedFromJobRetention(t *testing.T) {
	store := &fakeJobStore{}
	cfg := testRetentionConfig()
	svc := NewService(cfg, store, nil)

	before := time.Now().Add(-cfg.JobRetention)
	svc.purgeOldJobs(context.Background())
	after := time.Now().Add(-cfg.JobRetention)

	store.mu.Lock()
	cutoff := store.lastCutoff
	store.mu.Unlock()

	assert.False(t, cutoff.Before(before.Add(-time.Second)))
	assert.False(t, cutoff.After(after.Add(time.Second)))
}

func TestRecoverOrphans_PassesConfiguredThreshold(t *testing.T) {
	store := &fakeJobStore{}
	cfg := testRetentionConfig()
	svc := NewService(cfg, store, nil)

	svc.recoverOrphans(context.Background())

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, cfg.OrphanThreshold, store.lastThreshold)
}

func TestRunAll_ContinuesPastStoreErrors(t *testing.T) {
	store := &fakeJobStore{orphanErr: errors.New("db unavailable")}
	svc := NewService(testRetentionConfig(), store, nil)

	assert.NotPanics(t, func() { svc.runAll(context.Background()) })

	orphanCalls, purgeCalls := store.calls()
	assert.Equal(t, 1, orphanCalls)
	assert.Equal(t, 1, purgeCalls)
}

func TestInvalidateArtifactStage_NoopWhenCacheNil(t *testing.T) {
	svc := NewService(testRetentionConfig(), &fakeJobStore{}, nil)
	assert.NoError(t, svc.InvalidateArtifactStage("parse"))
}
