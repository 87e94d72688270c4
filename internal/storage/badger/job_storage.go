package badger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/describo/internal/interfaces"
	"github.com/ternarybob/describo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// JobStorage implements the JobStore interface for Badger.
// A single mutex serializes all writes: concurrent submissions for the
// same repository must observe each other, and badgerhold has no
// cross-record uniqueness constraint to lean on.
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStore {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

// CreateJob inserts the job unless a non-failed job for the same source URL
// already exists. On a duplicate the existing job is returned with
// created=false and nothing is written.
func (s *JobStorage) CreateJob(ctx context.Context, job *models.Job) (*models.Job, bool, error) {
	if job.ID == "" {
		return nil, false, fmt.Errorf("job ID is required")
	}
	if job.SourceURL == "" {
		return nil, false, fmt.Errorf("job source URL is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var existing []models.Job
	query := badgerhold.Where("SourceURL").Eq(job.SourceURL).
		And("Status").Ne(models.JobStatusFailed).
		SortBy("CreatedAt").Reverse()
	if err := s.db.Store().Find(&existing, query); err != nil {
		return nil, false, fmt.Errorf("failed to check for existing job: %w", err)
	}
	if len(existing) > 0 {
		return &existing[0], false, nil
	}

	if err := s.db.Store().Insert(job.ID, job); err != nil {
		return nil, false, fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Debug().
		Str("job_id", job.ID).
		Str("source", job.SourceURL).
		Str("variant", string(job.Variant)).
		Msg("Job record created")

	return job, true, nil
}

func (s *JobStorage) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(id, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, models.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// ListJobs returns jobs newest-first with skip/limit pagination.
func (s *JobStorage) ListJobs(ctx context.Context, skip, limit int) ([]*models.Job, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse()
	if skip > 0 {
		query = query.Skip(skip)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// UpdateStatus transitions the job and writes the accompanying fields.
// Transitions outside the forward lifecycle are rejected; a failed status
// requires an error message.
func (s *JobStorage) UpdateStatus(ctx context.Context, id string, status models.JobStatus, fields interfaces.StatusFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}

	if !models.CanTransition(job.Status, status) {
		return fmt.Errorf("invalid status transition %s -> %s for job %s", job.Status, status, id)
	}
	if status == models.JobStatusFailed && fields.Error == nil {
		return fmt.Errorf("failed status requires an error message for job %s", id)
	}

	job.Status = status
	job.UpdatedAt = time.Now().UTC()
	if fields.Error != nil {
		job.Error = fields.Error
	}
	if fields.ArtifactURL != nil {
		job.ArtifactURL = fields.ArtifactURL
	}
	if fields.PullRequestURL != nil {
		job.PullRequestURL = fields.PullRequestURL
	}

	if err := s.db.Store().Update(id, job); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	s.logger.Debug().
		Str("job_id", id).
		Str("status", string(status)).
		Msg("Job status updated")

	return nil
}

func (s *JobStorage) DeleteJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Store().Delete(id, &models.Job{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return models.ErrJobNotFound
		}
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// ResetToPending returns a processing job to pending so the broker can
// redeliver it. Only crash recovery calls this; any other status is an error.
func (s *JobStorage) ResetToPending(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}

	if job.Status != models.JobStatusProcessing {
		return fmt.Errorf("cannot reset job %s to pending from status %s", id, job.Status)
	}

	job.Status = models.JobStatusPending
	job.UpdatedAt = time.Now().UTC()

	if err := s.db.Store().Update(id, job); err != nil {
		return fmt.Errorf("failed to reset job: %w", err)
	}

	s.logger.Warn().
		Str("job_id", id).
		Msg("Job reset to pending after lost worker")

	return nil
}

// ListByStatusOlderThan returns jobs in the given status last touched before
// the cutoff.
func (s *JobStorage) ListByStatusOlderThan(ctx context.Context, status models.JobStatus, cutoff time.Time) ([]*models.Job, error) {
	var jobs []models.Job
	query := badgerhold.Where("Status").Eq(status).And("UpdatedAt").Lt(cutoff)
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs by status: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// DeleteTerminalBefore purges completed and failed jobs last touched before
// the cutoff and returns the ids it removed.
func (s *JobStorage) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []models.Job
	query := badgerhold.Where("Status").In(models.JobStatusCompleted, models.JobStatusFailed).
		And("UpdatedAt").Lt(cutoff)
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to find expired jobs: %w", err)
	}

	var deleted []string
	for i := range jobs {
		if err := s.db.Store().Delete(jobs[i].ID, &models.Job{}); err != nil {
			s.logger.Warn().Err(err).Str("job_id", jobs[i].ID).Msg("Failed to purge expired job")
			continue
		}
		deleted = append(deleted, jobs[i].ID)
	}

	return deleted, nil
}

func (s *JobStorage) Close() error {
	return nil
}
