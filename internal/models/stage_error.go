// -----------------------------------------------------------------------
// Stage Error - Typed error taxonomy for pipeline stages and the runtime
// -----------------------------------------------------------------------

package models

import "fmt"

// ErrorKind classifies every failure the orchestration engine can record on a
// job. The text form stored on the Job is one line: the kind, plus minimal
// detail where the detail carries information the kind does not.
type ErrorKind string

const (
	// Submitter
	ErrInvalidSource ErrorKind = "invalid-source"

	// Fetch
	ErrRepoNotFound ErrorKind = "repo-not-found"
	ErrAuthDenied   ErrorKind = "auth-denied"
	ErrNetwork      ErrorKind = "network"
	ErrFetchTimeout ErrorKind = "fetch-timeout"

	// Scan / Cleanup
	ErrIO ErrorKind = "io-error"

	// Analyze
	ErrNoAnalyzableFiles ErrorKind = "no-analyzable-files"

	// Generate
	ErrModelUnavailable ErrorKind = "model-unavailable"
	ErrModelRateLimited ErrorKind = "model-rate-limited"
	ErrModelRejected    ErrorKind = "model-rejected"
	ErrEmptyOutput      ErrorKind = "empty-output"

	// Publish
	ErrPublishFailed ErrorKind = "publish-failed"

	// Runtime
	ErrTimedOut         ErrorKind = "timed-out"
	ErrDeadlineExceeded ErrorKind = "deadline-exceeded"
	ErrWorkerCrash      ErrorKind = "worker-crash"
	ErrEnqueueTimeout   ErrorKind = "enqueue-timeout"
)

// Retryable reports whether the broker should redeliver the work item for
// another attempt. Retry budgets (once for network errors, R_model for model
// errors) are enforced by the caller against the delivery count.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrNetwork, ErrFetchTimeout, ErrModelUnavailable, ErrModelRateLimited:
		return true
	default:
		return false
	}
}

// StageError is the typed result surfaced by stage tools to the pipeline and
// by the pipeline to the worker runtime. Err holds the underlying cause for
// logs; Detail is the short human-readable fragment stored on the job.
type StageError struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

// NewStageError creates a stage error without an underlying cause.
func NewStageError(kind ErrorKind, detail string) *StageError {
	return &StageError{Kind: kind, Detail: detail}
}

// WrapStageError creates a stage error wrapping an underlying cause.
func WrapStageError(kind ErrorKind, detail string, err error) *StageError {
	return &StageError{Kind: kind, Detail: detail, Err: err}
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message(), e.Err)
	}
	return e.Message()
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *StageError) Unwrap() error {
	return e.Err
}

// Message returns the one-line form stored on the Job: the kind alone, or
// "kind: detail" when detail is present. Verbose diagnostics stay in logs.
func (e *StageError) Message() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Retryable reports whether the broker may redeliver after this error.
func (e *StageError) Retryable() bool {
	return e.Kind.Retryable()
}
