package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ternarybob/describo/internal/interfaces"
	"github.com/ternarybob/describo/internal/models"
	"github.com/ternarybob/describo/internal/pipeline"
)

var errIllegalTransition = errors.New("illegal status transition")

// memStore is an in-memory JobStore for exercising the submitter, runtime,
// and reaper without a database.
type memStore struct {
	mu     sync.Mutex
	jobs   map[string]*models.Job
	resets []string

	enforceDup bool
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[string]*models.Job), enforceDup: true}
}

func (s *memStore) put(job *models.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *memStore) CreateJob(ctx context.Context, job *models.Job) (*models.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enforceDup {
		for _, existing := range s.jobs {
			if existing.SourceURL == job.SourceURL && existing.IsActive() {
				return existing, false, nil
			}
		}
	}
	s.jobs[job.ID] = job
	return job, true, nil
}

func (s *memStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, models.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *memStore) ListJobs(ctx context.Context, skip, limit int) ([]*models.Job, error) {
	return nil, nil
}

func (s *memStore) UpdateStatus(ctx context.Context, id string, status models.JobStatus, fields interfaces.StatusFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.ErrJobNotFound
	}
	if !models.CanTransition(job.Status, status) {
		return errIllegalTransition
	}
	job.Status = status
	if fields.Error != nil {
		job.Error = fields.Error
	}
	if fields.ArtifactURL != nil {
		job.ArtifactURL = fields.ArtifactURL
	}
	if fields.PullRequestURL != nil {
		job.PullRequestURL = fields.PullRequestURL
	}
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memStore) DeleteJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return models.ErrJobNotFound
	}
	delete(s.jobs, id)
	return nil
}

func (s *memStore) ResetToPending(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.ErrJobNotFound
	}
	job.Status = models.JobStatusPending
	s.resets = append(s.resets, id)
	return nil
}

func (s *memStore) ListByStatusOlderThan(ctx context.Context, status models.JobStatus, cutoff time.Time) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Job
	for _, job := range s.jobs {
		if job.Status == status && job.UpdatedAt.Before(cutoff) {
			copied := *job
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *memStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for id, job := range s.jobs {
		if job.IsTerminal() && job.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed = append(removed, id)
		}
	}
	return removed, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) status(id string) models.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id].Status
}

func (s *memStore) errorText(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobs[id].Error == nil {
		return ""
	}
	return *s.jobs[id].Error
}

// memBroker hands out pre-loaded reservations and records resolutions.
type memBroker struct {
	mu           sync.Mutex
	reservations []*interfaces.Reservation
	enqueued     []*models.WorkItem
	enqueueErr   error
	acked        []*interfaces.Reservation
	nacked       []struct {
		res       *interfaces.Reservation
		retryable bool
	}
}

func (b *memBroker) Enqueue(ctx context.Context, item *models.WorkItem) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.enqueueErr != nil {
		return b.enqueueErr
	}
	b.enqueued = append(b.enqueued, item)
	return nil
}

func (b *memBroker) Reserve(ctx context.Context) (*interfaces.Reservation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.reservations) == 0 {
		return nil, models.ErrNoWork
	}
	res := b.reservations[0]
	b.reservations = b.reservations[1:]
	return res, nil
}

func (b *memBroker) Ack(ctx context.Context, res *interfaces.Reservation) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acked = append(b.acked, res)
	return nil
}

func (b *memBroker) Nack(ctx context.Context, res *interfaces.Reservation, retryable bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nacked = append(b.nacked, struct {
		res       *interfaces.Reservation
		retryable bool
	}{res, retryable})
	return nil
}

func (b *memBroker) Ping(ctx context.Context) error { return nil }
func (b *memBroker) Close() error                   { return nil }

// fakePipeline lets runtime tests control the run outcome. When checkpoints
// is set, the checkpoint fires that many times before the result is
// returned, and a checkpoint error wins.
type fakePipeline struct {
	result      error
	checkpoints int
	lastState   *pipeline.RunState
	artifactURL string
	prURL       string
}

func (f *fakePipeline) Run(ctx context.Context, state *pipeline.RunState, checkpoint pipeline.Checkpoint) error {
	f.lastState = state
	for i := 0; i < f.checkpoints; i++ {
		if err := checkpoint(ctx); err != nil {
			return err
		}
	}
	if f.result != nil {
		return f.result
	}
	state.ArtifactURL = f.artifactURL
	state.PullRequestURL = f.prURL
	return nil
}
