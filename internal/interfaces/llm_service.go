// -----------------------------------------------------------------------
// LLM Service - Text generation for documentation and code comments
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
)

// Completion is the result of a single model call.
type Completion struct {
	// Text is the generated output with surrounding whitespace trimmed.
	Text string

	// InputTokens and OutputTokens report usage as counted by the provider.
	InputTokens  int
	OutputTokens int
}

// LLMService defines the interface for language model operations.
// Implementations classify provider failures into the stage error taxonomy
// (model-unavailable, model-rate-limited, model-rejected) so callers can
// decide whether a retry is worthwhile.
type LLMService interface {
	// Complete sends a single-turn prompt and returns the model's response.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - prompt: Full prompt text including any embedded source material
	//
	// Returns:
	//   - *Completion: Generated text plus token usage
	//   - error: *models.StageError classifying the failure
	Complete(ctx context.Context, prompt string) (*Completion, error)

	// HealthCheck verifies the service is configured and reachable.
	HealthCheck(ctx context.Context) error

	// Close releases resources held by the service.
	Close() error
}
