package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/describo/internal/common"
	"github.com/ternarybob/describo/internal/models"
)

// memCleaner records artifact removals.
type memCleaner struct {
	removed []string
}

func (c *memCleaner) RemoveDocs(jobID string) {
	c.removed = append(c.removed, jobID)
}

func backdate(store *memStore, job *models.Job, age time.Duration) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.jobs[job.ID].UpdatedAt = time.Now().UTC().Add(-age)
}

func TestSweepFailsStalePendingJobs(t *testing.T) {
	store := newMemStore()
	config := common.NewDefaultConfig()
	reaper := NewReaper(store, &memCleaner{}, config, arbor.NewLogger())

	stale := seedJob(store, models.JobStatusPending)
	backdate(store, stale, time.Hour)

	fresh := models.NewJob("https://github.com/acme/other", "", models.VariantDocs)
	store.put(fresh)

	reaper.Sweep()

	assert.Equal(t, models.JobStatusFailed, store.status(stale.ID))
	assert.Equal(t, "enqueue-timeout", store.errorText(stale.ID))
	assert.Equal(t, models.JobStatusPending, store.status(fresh.ID))
}

func TestSweepLeavesRecentProcessingJobsAlone(t *testing.T) {
	store := newMemStore()
	config := common.NewDefaultConfig()
	reaper := NewReaper(store, &memCleaner{}, config, arbor.NewLogger())

	// Inside the hard deadline + visibility window: a worker or a queued
	// redelivery can still finish this job
	job := seedJob(store, models.JobStatusProcessing)
	backdate(store, job, config.HardDeadline()+config.VisibilityTimeout()-30*time.Minute)

	reaper.Sweep()

	assert.Equal(t, models.JobStatusProcessing, store.status(job.ID))
}

func TestSweepFailsAbandonedProcessingJobs(t *testing.T) {
	store := newMemStore()
	config := common.NewDefaultConfig()
	reaper := NewReaper(store, &memCleaner{}, config, arbor.NewLogger())

	// Past both windows: no worker run and no queued item can remain. This
	// is the shutdown-with-spent-budget case, where the broker drops the
	// item without any terminal status written.
	job := seedJob(store, models.JobStatusProcessing)
	backdate(store, job, config.HardDeadline()+config.VisibilityTimeout()+time.Hour)

	reaper.Sweep()

	assert.Equal(t, models.JobStatusFailed, store.status(job.ID))
	assert.Equal(t, "worker-crash", store.errorText(job.ID))
}

func TestSweepPurgesTerminalJobsPastRetention(t *testing.T) {
	store := newMemStore()
	config := common.NewDefaultConfig()
	cleaner := &memCleaner{}
	reaper := NewReaper(store, cleaner, config, arbor.NewLogger())

	old := seedJob(store, models.JobStatusCompleted)
	backdate(store, old, config.Retention()+time.Hour)

	recent := models.NewJob("https://github.com/acme/other", "", models.VariantDocs)
	recent.Status = models.JobStatusFailed
	store.put(recent)

	reaper.Sweep()

	_, err := store.GetJob(context.Background(), old.ID)
	assert.ErrorIs(t, err, models.ErrJobNotFound)
	assert.Equal(t, []string{old.ID}, cleaner.removed)

	_, err = store.GetJob(context.Background(), recent.ID)
	assert.NoError(t, err)
}

func TestReaperDisabledDoesNotSchedule(t *testing.T) {
	config := common.NewDefaultConfig()
	config.Reaper.Enabled = false

	reaper := NewReaper(newMemStore(), &memCleaner{}, config, arbor.NewLogger())
	assert.NoError(t, reaper.Start())
	reaper.Stop()
}
