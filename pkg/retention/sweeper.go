// Package retention runs the background sweeps that keep the job store
// bounded and recover jobs stranded by a lost orchestrator task: periodic
// purge of old completed/failed jobs, and periodic rescue of jobs stuck
// in processing with no pending orchestrator check.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/evoengine/evoengine/pkg/config"
	"github.com/evoengine/evoengine/pkg/store"
	"github.com/evoengine/evoengine/pkg/taskqueue"
)

// Sweeper periodically enforces job retention and recovers orphaned jobs.
// Both operations are idempotent and safe to run from multiple replicas.
type Sweeper struct {
	retention *config.RetentionConfig
	queueCfg  *config.QueueConfig
	store     *store.Store
	queue     *taskqueue.Queue

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Sweeper bound to the given stores and configuration.
func New(retention *config.RetentionConfig, queueCfg *config.QueueConfig, s *store.Store, q *taskqueue.Queue) *Sweeper {
	return &Sweeper{retention: retention, queueCfg: queueCfg, store: s, queue: q}
}

// Start launches the background sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("retention sweeper started",
		"job_retention_days", s.retention.JobRetentionDays,
		"cleanup_interval", s.retention.CleanupInterval,
		"orphan_detection_interval", s.queueCfg.OrphanDetectionInterval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("retention sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	s.purgeOldJobs(ctx)
	s.recoverOrphans(ctx)

	purgeTicker := time.NewTicker(s.retention.CleanupInterval)
	defer purgeTicker.Stop()
	orphanTicker := time.NewTicker(s.queueCfg.OrphanDetectionInterval)
	defer orphanTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-purgeTicker.C:
			s.purgeOldJobs(ctx)
		case <-orphanTicker.C:
			s.recoverOrphans(ctx)
		}
	}
}

func (s *Sweeper) purgeOldJobs(ctx context.Context) {
	cutoff := time.Now().Add(-time.Duration(s.retention.JobRetentionDays) * 24 * time.Hour)
	count, err := s.store.PurgeCompletedJobsOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("retention: purge old jobs failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("retention: purged old jobs", "count", count)
	}
}

// recoverOrphans re-enqueues an orchestrator check for every job stuck in
// processing with no activity since the phase timeout: a crash between a
// store write and the matching queue.createOrchestratorTask call can
// otherwise strand a job forever, since nothing else is watching it.
func (s *Sweeper) recoverOrphans(ctx context.Context) {
	cutoff := time.Now().Add(-s.queueCfg.PhaseTimeout)
	ids, err := s.store.ListStaleProcessingJobIDs(ctx, cutoff)
	if err != nil {
		slog.Error("retention: orphan scan failed", "error", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	slog.Warn("retention: recovering orphaned jobs", "count", len(ids))
	recovered := 0
	for _, id := range ids {
		job, err := s.store.GetJobStatus(ctx, id)
		if err != nil {
			slog.Error("retention: load orphaned job failed", "job_id", id, "error", err)
			continue
		}
		payload := taskqueue.OrchestratorPayload{JobID: id, CheckAttempt: job.CheckAttempt}
		if err := s.queue.CreateOrchestratorTask(ctx, payload, time.Now()); err != nil {
			slog.Error("retention: re-enqueue orphaned job failed", "job_id", id, "error", err)
			continue
		}
		recovered++
	}
	slog.Info("retention: orphan recovery complete", "recovered", recovered)
}
