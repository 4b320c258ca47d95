// Package cleanup provides the background retention loop: recovering jobs
// orphaned by a crashed worker process and purging old terminal job
// records, plus on-demand artifact cache invalidation.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/deckpipe/deckpipe/internal/artifact"
	"github.com/deckpipe/deckpipe/internal/config"
)

// JobStore is the subset of the Job Store the cleanup loop runs against.
type JobStore interface {
	RecoverOrphans(ctx context.Context, threshold time.Duration) (int64, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service periodically enforces retention policy: jobs stuck in processing
// past the orphan threshold are marked failed, and terminal jobs older than
// the retention window are deleted. All operations are idempotent and safe
// to run from multiple processes concurrently.
type Service struct {
	cfg   config.RetentionConfig
	store JobStore
	cache *artifact.Cache

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService constructs a Service. cache may be nil if artifact-cache
// invalidation is not wired (InvalidateStage is then a no-op caller
// concern, not this service's).
func NewService(cfg config.RetentionConfig, store JobStore, cache *artifact.Cache) *Service {
	return &Service{cfg: cfg, store: store, cache: cache}
}

// Start launches the background retention loop. Safe to call once; a
// second call is a no-op.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx)
	slog.Info("cleanup service started", "interval", s.cfg.Interval, "orphan_threshold", s.cfg.OrphanThreshold, "job_retention", s.cfg.JobRetention)
}

// Stop signals the loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.recoverOrphans(ctx)
	s.purgeOldJobs(ctx)
}

func (s *Service) recoverOrphans(ctx context.Context) {
	n, err := s.store.RecoverOrphans(ctx, s.cfg.OrphanThreshold)
	if err != nil {
		slog.Error("retention: orphan recovery failed", "error", err)
		return
	}
	if n > 0 {
		slog.Warn("retention: recovered orphaned jobs", "count", n)
	}
}

func (s *Service) purgeOldJobs(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.JobRetention)
	n, err := s.store.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("retention: job purge failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("retention: purged old jobs", "count", n)
	}
}

// InvalidateArtifactStage bulk-invalidates one stage's cache entries — an
// operator action (e.g. after a prompt change invalidates a cached stage's
// meaning), not part of the periodic loop.
func (s *Service) InvalidateArtifactStage(stage string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.InvalidateStage(stage)
}
