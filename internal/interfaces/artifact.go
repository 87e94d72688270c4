// -----------------------------------------------------------------------
// Artifact - Gateway to external artifact storage
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"errors"
)

// ErrStoreNotConfigured is returned by gateway operations when no artifact
// store credentials were provided. Callers treat this as graceful
// degradation, not failure.
var ErrStoreNotConfigured = errors.New("artifact store not configured")

// ArtifactGateway uploads finished artifacts to an S3-compatible store.
// An unconfigured gateway reports Configured() == false and every operation
// returns ErrStoreNotConfigured.
type ArtifactGateway interface {
	Configured() bool

	// Put uploads body under key and returns the public URL of the object.
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)

	// Get downloads the object under key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object under key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error
}
