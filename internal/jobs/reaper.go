// -----------------------------------------------------------------------
// Reaper - Scheduled sweep for stuck and expired job records
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/describo/internal/common"
	"github.com/ternarybob/describo/internal/interfaces"
	"github.com/ternarybob/describo/internal/models"
)

// artifactCleaner releases the per-job local artifact when its record goes
// away.
type artifactCleaner interface {
	RemoveDocs(jobID string)
}

// Reaper runs on a cron schedule and performs three sweeps:
//
//  1. Pending jobs older than the grace window never made it to a worker
//     (the enqueue after create failed) and are failed with enqueue-timeout.
//  2. Processing jobs whose record outlived both the hard deadline and the
//     reservation window have no live worker and no queued item left; they
//     are failed with worker-crash.
//  3. Terminal jobs past the retention window are purged from the store,
//     along with their local artifacts.
type Reaper struct {
	store   interfaces.JobStore
	cleaner artifactCleaner
	config  *common.Config
	logger  arbor.ILogger
	cron    *cron.Cron
}

func NewReaper(store interfaces.JobStore, cleaner artifactCleaner, config *common.Config, logger arbor.ILogger) *Reaper {
	return &Reaper{
		store:   store,
		cleaner: cleaner,
		config:  config,
		logger:  logger,
		cron:    cron.New(),
	}
}

// Start registers the sweep on the configured schedule. No-op when the
// reaper is disabled.
func (r *Reaper) Start() error {
	if !r.config.Reaper.Enabled {
		r.logger.Info().Msg("Reaper disabled")
		return nil
	}

	if _, err := r.cron.AddFunc(r.config.Reaper.Schedule, r.Sweep); err != nil {
		return err
	}

	r.cron.Start()
	r.logger.Info().
		Str("schedule", r.config.Reaper.Schedule).
		Str("pending_max_age", r.config.Reaper.PendingMaxAge).
		Str("retention", r.config.Reaper.Retention).
		Msg("Reaper started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *Reaper) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info().Msg("Reaper stopped")
}

// Sweep performs one pass of all sweeps. Exported so operators can trigger
// it outside the schedule.
func (r *Reaper) Sweep() {
	ctx := context.Background()
	r.failStalePending(ctx)
	r.failAbandonedProcessing(ctx)
	r.purgeExpired(ctx)
}

func (r *Reaper) failStalePending(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-r.config.PendingMaxAge())

	stale, err := r.store.ListByStatusOlderThan(ctx, models.JobStatusPending, cutoff)
	if err != nil {
		r.logger.Error().Err(err).Msg("Reaper failed to list stale pending jobs")
		return
	}

	for _, job := range stale {
		message := models.NewStageError(models.ErrEnqueueTimeout, "").Message()
		if err := r.store.UpdateStatus(ctx, job.ID, models.JobStatusFailed, interfaces.StatusFields{Error: &message}); err != nil {
			r.logger.Error().Err(err).Str("job_id", job.ID).Msg("Reaper failed to fail stale job")
			continue
		}
		r.logger.Warn().
			Str("job_id", job.ID).
			Str("source", job.SourceURL).
			Str("created_at", job.CreatedAt.Format(time.RFC3339)).
			Msg("Failed pending job that never reached a worker")
	}
}

// failAbandonedProcessing fails processing jobs nothing can finish anymore.
// A live run ends at the hard deadline and an unresolved reservation is
// reclaimed within the visibility window, so a processing record older than
// both has lost its queue item for good (the broker drops an item whose
// delivery budget is spent).
func (r *Reaper) failAbandonedProcessing(ctx context.Context) {
	window := r.config.HardDeadline() + r.config.VisibilityTimeout()
	cutoff := time.Now().UTC().Add(-window)

	stale, err := r.store.ListByStatusOlderThan(ctx, models.JobStatusProcessing, cutoff)
	if err != nil {
		r.logger.Error().Err(err).Msg("Reaper failed to list abandoned processing jobs")
		return
	}

	for _, job := range stale {
		message := models.NewStageError(models.ErrWorkerCrash, "").Message()
		if err := r.store.UpdateStatus(ctx, job.ID, models.JobStatusFailed, interfaces.StatusFields{Error: &message}); err != nil {
			r.logger.Error().Err(err).Str("job_id", job.ID).Msg("Reaper failed to fail abandoned job")
			continue
		}
		r.logger.Warn().
			Str("job_id", job.ID).
			Str("source", job.SourceURL).
			Str("updated_at", job.UpdatedAt.Format(time.RFC3339)).
			Msg("Failed processing job abandoned by its worker")
	}
}

func (r *Reaper) purgeExpired(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-r.config.Retention())

	removed, err := r.store.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		r.logger.Error().Err(err).Msg("Reaper failed to purge expired jobs")
		return
	}
	for _, id := range removed {
		r.cleaner.RemoveDocs(id)
	}
	if len(removed) > 0 {
		r.logger.Info().
			Int("removed", len(removed)).
			Str("cutoff", cutoff.Format(time.RFC3339)).
			Msg("Purged terminal jobs past retention")
	}
}
