package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/describo/internal/common"
	"github.com/ternarybob/describo/internal/interfaces"
	"github.com/ternarybob/describo/internal/models"
	"github.com/ternarybob/describo/internal/pipeline"
)

// runFunc adapts a closure to the runtime's pipeline seam.
type runFunc func(ctx context.Context, state *pipeline.RunState, checkpoint pipeline.Checkpoint) error

func (f runFunc) Run(ctx context.Context, state *pipeline.RunState, checkpoint pipeline.Checkpoint) error {
	return f(ctx, state, checkpoint)
}

func newTestRuntime(store *memStore, broker *memBroker, pl *fakePipeline, config *common.Config) *Runtime {
	if config == nil {
		config = common.NewDefaultConfig()
	}
	runtime := NewRuntime(store, broker, nil, config, arbor.NewLogger())
	runtime.pipeline = pl
	return runtime
}

func seedJob(store *memStore, status models.JobStatus) *models.Job {
	job := models.NewJob("https://github.com/acme/widget", "", models.VariantDocs)
	job.Status = status
	store.put(job)
	return job
}

func reservationFor(job *models.Job, deliveries int) *interfaces.Reservation {
	return &interfaces.Reservation{
		Item:       &models.WorkItem{JobID: job.ID, Variant: job.Variant},
		Deliveries: deliveries,
	}
}

func TestProcessNextCompletesJob(t *testing.T) {
	store := newMemStore()
	job := seedJob(store, models.JobStatusPending)
	broker := &memBroker{reservations: []*interfaces.Reservation{reservationFor(job, 1)}}
	pl := &fakePipeline{artifactURL: "https://bucket.s3.us-east-1.amazonaws.com/docs/" + job.ID}

	runtime := newTestRuntime(store, broker, pl, nil)
	runtime.processNext(0)

	assert.Equal(t, models.JobStatusCompleted, store.status(job.ID))
	stored, _ := store.GetJob(context.Background(), job.ID)
	require.NotNil(t, stored.ArtifactURL)
	assert.Equal(t, pl.artifactURL, *stored.ArtifactURL)
	assert.Len(t, broker.acked, 1)
	assert.Empty(t, broker.nacked)

	// The run state was built from the job record
	require.NotNil(t, pl.lastState)
	assert.Equal(t, job.SourceURL, pl.lastState.SourceURL)
}

func TestProcessNextRecordsPullRequestURL(t *testing.T) {
	store := newMemStore()
	job := seedJob(store, models.JobStatusPending)
	broker := &memBroker{reservations: []*interfaces.Reservation{reservationFor(job, 1)}}
	pl := &fakePipeline{
		artifactURL: "https://bucket.s3.us-east-1.amazonaws.com/docs/" + job.ID,
		prURL:       "https://github.com/acme/widget/pull/7",
	}

	runtime := newTestRuntime(store, broker, pl, nil)
	runtime.processNext(0)

	stored, _ := store.GetJob(context.Background(), job.ID)
	require.NotNil(t, stored.PullRequestURL)
	assert.Equal(t, pl.prURL, *stored.PullRequestURL)
}

func TestProcessNextDropsDeletedJob(t *testing.T) {
	store := newMemStore()
	broker := &memBroker{reservations: []*interfaces.Reservation{{
		Item:       &models.WorkItem{JobID: "gone", Variant: models.VariantDocs},
		Deliveries: 1,
	}}}
	pl := &fakePipeline{}

	runtime := newTestRuntime(store, broker, pl, nil)
	runtime.processNext(0)

	assert.Len(t, broker.acked, 1)
	assert.Nil(t, pl.lastState)
}

func TestProcessNextDropsTerminalJob(t *testing.T) {
	store := newMemStore()
	job := seedJob(store, models.JobStatusCompleted)
	broker := &memBroker{reservations: []*interfaces.Reservation{reservationFor(job, 2)}}
	pl := &fakePipeline{}

	runtime := newTestRuntime(store, broker, pl, nil)
	runtime.processNext(0)

	assert.Len(t, broker.acked, 1)
	assert.Nil(t, pl.lastState)
	assert.Equal(t, models.JobStatusCompleted, store.status(job.ID))
}

func TestProcessNextRecoversCrashedJob(t *testing.T) {
	store := newMemStore()
	job := seedJob(store, models.JobStatusProcessing)
	broker := &memBroker{reservations: []*interfaces.Reservation{reservationFor(job, 2)}}
	pl := &fakePipeline{}

	runtime := newTestRuntime(store, broker, pl, nil)
	runtime.processNext(0)

	// Within the delivery budget the job returns to the queue
	assert.Equal(t, models.JobStatusPending, store.status(job.ID))
	assert.Contains(t, store.resets, job.ID)
	require.Len(t, broker.nacked, 1)
	assert.True(t, broker.nacked[0].retryable)
	assert.Nil(t, pl.lastState)
}

func TestProcessNextFailsCrashedJobPastBudget(t *testing.T) {
	store := newMemStore()
	job := seedJob(store, models.JobStatusProcessing)
	broker := &memBroker{reservations: []*interfaces.Reservation{reservationFor(job, 3)}}
	pl := &fakePipeline{}

	runtime := newTestRuntime(store, broker, pl, nil)
	runtime.processNext(0)

	assert.Equal(t, models.JobStatusFailed, store.status(job.ID))
	assert.Equal(t, "worker-crash", store.errorText(job.ID))
	assert.Len(t, broker.acked, 1)
}

func TestProcessNextFailsJobOnTerminalError(t *testing.T) {
	store := newMemStore()
	job := seedJob(store, models.JobStatusPending)
	broker := &memBroker{reservations: []*interfaces.Reservation{reservationFor(job, 1)}}
	pl := &fakePipeline{result: models.NewStageError(models.ErrRepoNotFound, "")}

	runtime := newTestRuntime(store, broker, pl, nil)
	runtime.processNext(0)

	assert.Equal(t, models.JobStatusFailed, store.status(job.ID))
	assert.Equal(t, "repo-not-found", store.errorText(job.ID))
	assert.Len(t, broker.acked, 1)
}

func TestProcessNextRetriesTransientError(t *testing.T) {
	store := newMemStore()
	job := seedJob(store, models.JobStatusPending)
	broker := &memBroker{reservations: []*interfaces.Reservation{reservationFor(job, 1)}}
	pl := &fakePipeline{result: models.NewStageError(models.ErrNetwork, "connection reset")}

	runtime := newTestRuntime(store, broker, pl, nil)
	runtime.processNext(0)

	assert.Equal(t, models.JobStatusPending, store.status(job.ID))
	require.Len(t, broker.nacked, 1)
	assert.True(t, broker.nacked[0].retryable)
}

func TestProcessNextFailsTransientErrorPastBudget(t *testing.T) {
	store := newMemStore()
	job := seedJob(store, models.JobStatusPending)
	broker := &memBroker{reservations: []*interfaces.Reservation{reservationFor(job, 3)}}
	pl := &fakePipeline{result: models.NewStageError(models.ErrModelUnavailable, "upstream 503")}

	runtime := newTestRuntime(store, broker, pl, nil)
	runtime.processNext(0)

	assert.Equal(t, models.JobStatusFailed, store.status(job.ID))
	assert.Equal(t, "model-unavailable: upstream 503", store.errorText(job.ID))
	assert.Len(t, broker.acked, 1)
}

func TestProcessNextSoftDeadlineFailsTimedOut(t *testing.T) {
	store := newMemStore()
	job := seedJob(store, models.JobStatusPending)
	broker := &memBroker{reservations: []*interfaces.Reservation{reservationFor(job, 1)}}
	// One checkpoint with a zero soft deadline trips the timer immediately
	pl := &fakePipeline{checkpoints: 1}

	config := common.NewDefaultConfig()
	config.Job.SoftDeadline = "0s"

	runtime := newTestRuntime(store, broker, pl, config)
	runtime.processNext(0)

	assert.Equal(t, models.JobStatusFailed, store.status(job.ID))
	assert.Contains(t, store.errorText(job.ID), "timed-out")
	assert.Len(t, broker.acked, 1)
}

func TestProcessNextDiscardsRunWhenJobDeletedMidFlight(t *testing.T) {
	store := newMemStore()
	job := seedJob(store, models.JobStatusPending)
	broker := &memBroker{reservations: []*interfaces.Reservation{reservationFor(job, 1)}}
	pl := &fakePipeline{checkpoints: 1}

	runtime := newTestRuntime(store, broker, pl, nil)

	// The record disappears mid-run; the next checkpoint observes it
	runtime.pipeline = runFunc(func(ctx context.Context, state *pipeline.RunState, checkpoint pipeline.Checkpoint) error {
		_ = store.DeleteJob(ctx, job.ID)
		return checkpoint(ctx)
	})
	runtime.processNext(0)

	// No terminal status was written; the reservation was acked
	_, err := store.GetJob(context.Background(), job.ID)
	assert.ErrorIs(t, err, models.ErrJobNotFound)
	assert.Len(t, broker.acked, 1)
}
