// -----------------------------------------------------------------------
// Job - Durable record of a single documentation request
// -----------------------------------------------------------------------

package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrJobNotFound is returned by stores when no job exists for the given ID.
var ErrJobNotFound = errors.New("job not found")

// JobStatus is the lifecycle state of a documentation job.
// Transitions only move forward: pending -> processing -> {completed, failed}.
// completed and failed are terminal; there is no revival. The one exception is
// crash recovery (see ResetToPending on the store), which returns a job whose
// worker was lost to pending so the broker can redeliver it.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Variant selects which pipeline a job runs.
type Variant string

const (
	// VariantDocs generates repository documentation only.
	VariantDocs Variant = "docs"
	// VariantDocsComments additionally produces per-file inline comments,
	// published as a pull request or a JSON bundle.
	VariantDocsComments Variant = "docs+comments"
)

// ValidVariant reports whether v is a recognized pipeline variant.
func ValidVariant(v Variant) bool {
	return v == VariantDocs || v == VariantDocsComments
}

// Job is the durable record of a documentation request.
// SourceURL is stored in normalized form (see common.NormalizeRepoURL) and is
// unique across all non-failed jobs. Created by the submitter; mutated only by
// the worker runtime and the reaper, one actor at a time.
type Job struct {
	ID             string    `json:"id"`
	SourceURL      string    `json:"source"`
	Status         JobStatus `json:"status"`
	Error          *string   `json:"error"`
	ArtifactURL    *string   `json:"artifact_url"`
	PullRequestURL *string   `json:"pull_request_url"`
	HasWriteAccess bool      `json:"has_write_access"`
	CallerID       string    `json:"caller_id,omitempty"`
	Variant        Variant   `json:"variant,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewJob creates a pending job for a normalized source locator.
func NewJob(sourceURL, callerID string, variant Variant) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.New().String(),
		SourceURL: sourceURL,
		Status:    JobStatusPending,
		CallerID:  callerID,
		Variant:   variant,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsTerminal returns true once the job has reached a final status.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// IsActive reports whether the job counts against the per-locator uniqueness
// rule: pending, processing and completed jobs block resubmission; failed jobs
// do not.
func (j *Job) IsActive() bool {
	return j.Status != JobStatusFailed
}

// CanTransition reports whether a status change is in the allowed forward set.
// pending -> failed is reserved for the reaper (enqueue-timeout).
func CanTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusPending:
		return to == JobStatusProcessing || to == JobStatusFailed
	case JobStatusProcessing:
		return to == JobStatusCompleted || to == JobStatusFailed
	default:
		return false
	}
}
