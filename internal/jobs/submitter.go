// -----------------------------------------------------------------------
// Submitter - Accepts job requests, de-duplicates, persists, enqueues
// -----------------------------------------------------------------------

package jobs

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/describo/internal/common"
	"github.com/ternarybob/describo/internal/interfaces"
	"github.com/ternarybob/describo/internal/models"
)

// SubmitRequest carries everything a caller can supply when requesting
// documentation for a repository.
type SubmitRequest struct {
	SourceURL      string
	CallerID       string
	Credential     string
	Variant        models.Variant
	HasWriteAccess bool
}

// Submitter creates job records and hands work to the broker. De-duplication
// happens in the store: at most one non-failed job exists per normalized
// source URL, and resubmitting returns the existing record.
type Submitter struct {
	store  interfaces.JobStore
	broker interfaces.TaskBroker
	config *common.Config
	logger arbor.ILogger
}

func NewSubmitter(store interfaces.JobStore, broker interfaces.TaskBroker, config *common.Config, logger arbor.ILogger) *Submitter {
	return &Submitter{
		store:  store,
		broker: broker,
		config: config,
		logger: logger,
	}
}

// Submit normalizes the source URL, creates the job record if no active job
// exists for it, and enqueues a work item. The returned bool is true when a
// new job was created, false when an existing one was returned.
//
// Enqueue failure after the record commits does not fail the request: the
// job stays pending and the reaper eventually fails it with enqueue-timeout.
func (s *Submitter) Submit(ctx context.Context, req SubmitRequest) (*models.Job, bool, error) {
	normalized, err := common.NormalizeRepoURL(req.SourceURL)
	if err != nil {
		return nil, false, models.WrapStageError(models.ErrInvalidSource, req.SourceURL, err)
	}

	variant := req.Variant
	if variant == "" {
		variant = models.VariantDocs
	}
	if !models.ValidVariant(variant) {
		return nil, false, models.NewStageError(models.ErrInvalidSource, "unknown variant "+string(req.Variant))
	}

	job := models.NewJob(normalized, req.CallerID, variant)
	job.HasWriteAccess = req.HasWriteAccess

	stored, created, err := s.store.CreateJob(ctx, job)
	if err != nil {
		return nil, false, err
	}
	if !created {
		s.logger.Info().
			Str("job_id", stored.ID).
			Str("source", normalized).
			Str("status", string(stored.Status)).
			Msg("Returning existing job for source")
		return stored, false, nil
	}

	item := &models.WorkItem{
		JobID:      stored.ID,
		Credential: req.Credential,
		Variant:    variant,
	}

	enqueueCtx, cancel := context.WithTimeout(ctx, s.config.EnqueueTimeout())
	defer cancel()

	if err := s.broker.Enqueue(enqueueCtx, item); err != nil {
		// The record stays pending; the reaper fails it after the grace
		// window. No synchronous retry here.
		s.logger.Warn().
			Err(err).
			Str("job_id", stored.ID).
			Msg("Failed to enqueue work item, job left pending for reaper")
		return stored, true, nil
	}

	s.logger.Info().
		Str("job_id", stored.ID).
		Str("source", normalized).
		Str("variant", string(variant)).
		Msg("Job created and enqueued")

	return stored, true, nil
}
