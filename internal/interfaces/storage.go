// -----------------------------------------------------------------------
// Storage - Interfaces for durable job persistence
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/describo/internal/models"
)

// StatusFields carries the optional fields written alongside a status
// transition. A nil pointer leaves the stored value untouched.
type StatusFields struct {
	Error          *string
	ArtifactURL    *string
	PullRequestURL *string
}

// JobStore persists job records. All writes are atomic per job; concurrent
// submissions for the same repository are serialized so exactly one record
// wins.
type JobStore interface {
	// CreateJob stores the job unless an active job for the same normalized
	// source URL already exists, in which case the existing job is returned
	// with created=false.
	CreateJob(ctx context.Context, job *models.Job) (*models.Job, bool, error)

	GetJob(ctx context.Context, id string) (*models.Job, error)

	// ListJobs returns jobs newest-first, skipping skip records and returning
	// at most limit.
	ListJobs(ctx context.Context, skip, limit int) ([]*models.Job, error)

	// UpdateStatus transitions the job, enforcing the forward-only lifecycle.
	// Terminal transitions must carry their required fields: failed needs
	// Error, completed needs ArtifactURL.
	UpdateStatus(ctx context.Context, id string, status models.JobStatus, fields StatusFields) error

	DeleteJob(ctx context.Context, id string) error

	// ResetToPending returns a processing job to pending. Used only by crash
	// recovery when a redelivered item finds its job mid-flight with no owner.
	ResetToPending(ctx context.Context, id string) error

	// ListByStatusOlderThan returns jobs in the given status whose updated_at
	// is before the cutoff. Used by the reaper.
	ListByStatusOlderThan(ctx context.Context, status models.JobStatus, cutoff time.Time) ([]*models.Job, error)

	// DeleteTerminalBefore purges completed and failed jobs whose updated_at
	// is before the cutoff, returning the ids removed so callers can release
	// per-job resources.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) ([]string, error)

	Close() error
}

// StorageManager provides access to the storage subsystem
type StorageManager interface {
	JobStore() JobStore

	// StartMaintenance launches background housekeeping (garbage collection)
	// that stops when the context is cancelled.
	StartMaintenance(ctx context.Context)

	Close() error
}
