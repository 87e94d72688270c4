// -----------------------------------------------------------------------
// Worker Runtime - Fixed pool of slots draining the broker
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/describo/internal/common"
	"github.com/ternarybob/describo/internal/interfaces"
	"github.com/ternarybob/describo/internal/models"
	"github.com/ternarybob/describo/internal/pipeline"
)

// pipelineRunner is the seam between the runtime and the stage sequence.
type pipelineRunner interface {
	Run(ctx context.Context, state *pipeline.RunState, checkpoint pipeline.Checkpoint) error
}

// Runtime drains the broker with a fixed pool of worker slots. Each slot
// claims one job at a time, runs the pipeline under the job deadlines, and
// writes the terminal status back. The runtime is the only component that
// records completed or failed.
type Runtime struct {
	store    interfaces.JobStore
	broker   interfaces.TaskBroker
	pipeline pipelineRunner
	config   *common.Config
	logger   arbor.ILogger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewRuntime(store interfaces.JobStore, broker interfaces.TaskBroker, pl *pipeline.Pipeline, config *common.Config, logger arbor.ILogger) *Runtime {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runtime{
		store:    store,
		broker:   broker,
		pipeline: pl,
		config:   config,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the worker slots.
func (r *Runtime) Start() {
	count := r.config.Workers.Count
	r.logger.Info().
		Int("workers", count).
		Msg("Starting worker runtime")

	for i := 0; i < count; i++ {
		r.wg.Add(1)
		go r.slot(i)
	}
}

// Stop cancels all slots and waits for in-flight jobs to settle. A job past
// its reservation window is redelivered to another worker, so shutdown never
// strands work.
func (r *Runtime) Stop() {
	r.logger.Info().Msg("Stopping worker runtime...")
	r.cancel()
	r.wg.Wait()
	r.logger.Info().Msg("Worker runtime stopped")
}

func (r *Runtime) slot(id int) {
	defer r.wg.Done()

	r.logger.Debug().Int("slot", id).Msg("Worker slot started")

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug().Int("slot", id).Msg("Worker slot stopping")
			return
		default:
			r.processNext(id)
		}
	}
}

// processNext reserves one work item and drives it to resolution. Every
// reservation ends in exactly one Ack or Nack.
func (r *Runtime) processNext(slot int) {
	reserveCtx, cancel := context.WithTimeout(r.ctx, r.config.PollInterval())
	res, err := r.broker.Reserve(reserveCtx)
	cancel()
	if err != nil {
		if !errors.Is(err, models.ErrNoWork) && !errors.Is(err, context.Canceled) {
			r.logger.Warn().Err(err).Int("slot", slot).Msg("Broker reserve failed")
		}
		return
	}

	jobID := res.Item.JobID
	log := r.logger.WithCorrelationId(jobID)

	job, err := r.store.GetJob(r.ctx, jobID)
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			// Job was deleted while queued; drop the item
			r.ack(res, log)
			return
		}
		log.Error().Err(err).Msg("Failed to load job for reserved item")
		r.nack(res, true, log)
		return
	}

	if job.IsTerminal() {
		r.ack(res, log)
		return
	}

	if job.Status == models.JobStatusProcessing {
		r.recoverCrashed(res, job, log)
		return
	}

	// Claim the job. A lost race means another worker owns it.
	if err := r.store.UpdateStatus(r.ctx, jobID, models.JobStatusProcessing, interfaces.StatusFields{}); err != nil {
		log.Warn().Err(err).Msg("Failed to claim job, dropping reservation")
		r.ack(res, log)
		return
	}

	log.Info().
		Int("slot", slot).
		Int("delivery", res.Deliveries).
		Str("variant", string(res.Item.Variant)).
		Msg("Processing job")

	r.run(res, job, log)
}

// recoverCrashed handles a redelivered item whose job is still marked
// processing: the previous owner died mid-flight. Within the delivery budget
// the job goes back to pending and the item returns to the queue; past the
// budget it fails permanently.
func (r *Runtime) recoverCrashed(res *interfaces.Reservation, job *models.Job, log arbor.ILogger) {
	if res.Deliveries >= r.config.Broker.MaxDeliveries {
		log.Warn().
			Int("deliveries", res.Deliveries).
			Msg("Delivery budget exhausted for crashed job, failing")
		r.fail(job.ID, models.NewStageError(models.ErrWorkerCrash, "").Message(), log)
		r.ack(res, log)
		return
	}

	log.Warn().
		Int("deliveries", res.Deliveries).
		Msg("Recovering job from crashed worker")

	if err := r.store.ResetToPending(r.ctx, job.ID); err != nil {
		log.Error().Err(err).Msg("Failed to reset crashed job to pending")
		r.ack(res, log)
		return
	}
	r.nack(res, true, log)
}

// run executes the pipeline for a claimed job and records the outcome.
func (r *Runtime) run(res *interfaces.Reservation, job *models.Job, log arbor.ILogger) {
	start := time.Now()
	soft := r.config.SoftDeadline()

	runCtx, cancel := context.WithTimeout(r.ctx, r.config.HardDeadline())
	defer cancel()

	state := &pipeline.RunState{
		JobID:          job.ID,
		SourceURL:      job.SourceURL,
		Credential:     res.Item.Credential,
		Variant:        res.Item.Variant,
		HasWriteAccess: job.HasWriteAccess,
	}

	checkpoint := func(ctx context.Context) error {
		if _, err := r.store.GetJob(ctx, job.ID); errors.Is(err, models.ErrJobNotFound) {
			return models.ErrJobNotFound
		}
		if time.Since(start) > soft {
			return models.NewStageError(models.ErrTimedOut,
				fmt.Sprintf("soft deadline %s reached at stage %s", soft, state.Stage))
		}
		return nil
	}

	err := r.pipeline.Run(runCtx, state, checkpoint)

	switch {
	case err == nil:
		fields := interfaces.StatusFields{}
		if state.ArtifactURL != "" {
			fields.ArtifactURL = &state.ArtifactURL
		}
		if state.PullRequestURL != "" {
			fields.PullRequestURL = &state.PullRequestURL
		}
		if updateErr := r.store.UpdateStatus(r.ctx, job.ID, models.JobStatusCompleted, fields); updateErr != nil {
			log.Error().Err(updateErr).Msg("Failed to mark job completed")
		} else {
			log.Info().
				Dur("elapsed", time.Since(start)).
				Str("artifact_url", state.ArtifactURL).
				Msg("Job completed")
		}
		r.ack(res, log)

	case errors.Is(err, models.ErrJobNotFound):
		// Job deleted mid-run; discard silently
		log.Info().Msg("Job deleted during run, discarding")
		r.ack(res, log)

	case r.ctx.Err() != nil:
		// Shutdown interrupted the run. The item goes back to the queue and
		// the processing record is recovered on redelivery.
		log.Info().Msg("Run interrupted by shutdown, requeueing")
		r.nack(res, true, log)

	case runCtx.Err() != nil:
		// Hard deadline fired; the item must not be retried
		r.fail(job.ID, models.NewStageError(models.ErrDeadlineExceeded, "").Message(), log)
		r.nack(res, false, log)

	default:
		r.resolveError(res, job, err, log)
	}
}

// resolveError maps a pipeline error to the job's terminal state or a retry.
func (r *Runtime) resolveError(res *interfaces.Reservation, job *models.Job, err error, log arbor.ILogger) {
	var stageErr *models.StageError
	if !errors.As(err, &stageErr) {
		log.Error().Err(err).Msg("Pipeline returned untyped error")
		r.fail(job.ID, fmt.Sprintf("internal: %s", err.Error()), log)
		r.ack(res, log)
		return
	}

	if stageErr.Retryable() && res.Deliveries < r.config.Broker.MaxDeliveries {
		log.Warn().
			Err(err).
			Int("deliveries", res.Deliveries).
			Msg("Transient failure, returning job to queue")
		if resetErr := r.store.ResetToPending(r.ctx, job.ID); resetErr != nil {
			log.Error().Err(resetErr).Msg("Failed to reset job for retry")
			r.fail(job.ID, stageErr.Message(), log)
			r.ack(res, log)
			return
		}
		r.nack(res, true, log)
		return
	}

	log.Warn().Err(err).Str("error_kind", string(stageErr.Kind)).Msg("Job failed")
	r.fail(job.ID, stageErr.Message(), log)
	r.ack(res, log)
}

func (r *Runtime) fail(jobID, message string, log arbor.ILogger) {
	if err := r.store.UpdateStatus(r.ctx, jobID, models.JobStatusFailed, interfaces.StatusFields{Error: &message}); err != nil {
		log.Error().Err(err).Str("job_error", message).Msg("Failed to mark job failed")
	}
}

func (r *Runtime) ack(res *interfaces.Reservation, log arbor.ILogger) {
	if err := r.broker.Ack(context.Background(), res); err != nil {
		log.Error().Err(err).Msg("Failed to ack reservation")
	}
}

func (r *Runtime) nack(res *interfaces.Reservation, retryable bool, log arbor.ILogger) {
	if err := r.broker.Nack(context.Background(), res, retryable); err != nil {
		log.Error().Err(err).Msg("Failed to nack reservation")
	}
}
