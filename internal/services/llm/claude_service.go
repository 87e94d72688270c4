package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/describo/internal/common"
	"github.com/ternarybob/describo/internal/interfaces"
	"github.com/ternarybob/describo/internal/models"
)

// ClaudeService implements the LLMService interface using the Anthropic
// Claude API. Every call is rate limited and bounded by the configured
// timeout; provider failures are classified into the stage error taxonomy.
type ClaudeService struct {
	config    *common.ModelConfig
	logger    arbor.ILogger
	client    anthropic.Client
	limiter   *rate.Limiter
	timeout   time.Duration
	maxTokens int
}

// NewClaudeService creates a new Claude LLM service instance.
//
// Parameters:
//   - modelConfig: Model configuration with API key, model name and limits
//   - logger: Structured logger for service operations
//
// Returns:
//   - *ClaudeService: Initialized service ready for use
//   - error: nil on success, error with details on failure
func NewClaudeService(modelConfig *common.ModelConfig, logger arbor.ILogger) (*ClaudeService, error) {
	if modelConfig.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (set via ANTHROPIC_API_KEY, DESCRIBO_MODEL_API_KEY, or model.api_key in config)")
	}

	// Set default model name if not specified
	if modelConfig.Model == "" {
		modelConfig.Model = "claude-sonnet-4-20250514"
	}

	timeout, err := time.ParseDuration(modelConfig.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout duration '%s': %w", modelConfig.Timeout, err)
	}

	rateLimit, err := time.ParseDuration(modelConfig.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit duration '%s': %w", modelConfig.RateLimit, err)
	}

	maxTokens := modelConfig.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8000
	}

	client := anthropic.NewClient(
		option.WithAPIKey(modelConfig.APIKey),
	)

	service := &ClaudeService{
		config:    modelConfig,
		logger:    logger,
		client:    client,
		limiter:   rate.NewLimiter(rate.Every(rateLimit), 1),
		timeout:   timeout,
		maxTokens: maxTokens,
	}

	logger.Debug().
		Str("model", modelConfig.Model).
		Dur("timeout", timeout).
		Float32("temperature", modelConfig.Temperature).
		Int("max_tokens", maxTokens).
		Msg("Claude LLM service initialized successfully")

	return service, nil
}

// Complete sends a single-turn prompt and returns the generated text with
// token usage. Failures come back as *models.StageError so callers can
// decide whether a retry is worthwhile.
func (s *ClaudeService) Complete(ctx context.Context, prompt string) (*interfaces.Completion, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, models.NewStageError(models.ErrModelRejected, "prompt is empty")
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, models.WrapStageError(models.ErrModelUnavailable, "rate limiter interrupted", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	startTime := time.Now()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.config.Model),
		MaxTokens: int64(s.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if s.config.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(s.config.Temperature))
	}

	resp, err := s.client.Messages.New(timeoutCtx, params)
	if err != nil {
		classified := classifyAPIError(err)
		s.logger.Warn().
			Err(err).
			Str("kind", string(classified.Kind)).
			Dur("duration", time.Since(startTime)).
			Msg("Claude completion failed")
		return nil, classified
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	output := strings.TrimSpace(text.String())
	if output == "" {
		return nil, models.NewStageError(models.ErrEmptyOutput, "model returned no text")
	}

	completion := &interfaces.Completion{
		Text:         output,
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}

	s.logger.Debug().
		Int("prompt_length", len(prompt)).
		Int("input_tokens", completion.InputTokens).
		Int("output_tokens", completion.OutputTokens).
		Dur("duration", time.Since(startTime)).
		Msg("Claude completion succeeded")

	return completion, nil
}

// classifyAPIError maps provider failures onto the stage error taxonomy.
func classifyAPIError(err error) *models.StageError {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == 429:
			return models.WrapStageError(models.ErrModelRateLimited, "", err)
		case apierr.StatusCode >= 500:
			return models.WrapStageError(models.ErrModelUnavailable, "", err)
		default:
			return models.WrapStageError(models.ErrModelRejected, fmt.Sprintf("status %d", apierr.StatusCode), err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return models.WrapStageError(models.ErrModelUnavailable, "request timed out", err)
	}

	// Transport-level failures are worth retrying
	return models.WrapStageError(models.ErrModelUnavailable, "", err)
}

// HealthCheck verifies the service holds an API key and a client.
// No completion is issued here; a paid call per health poll adds up.
func (s *ClaudeService) HealthCheck(ctx context.Context) error {
	if s.config.APIKey == "" {
		return fmt.Errorf("Claude service has no API key")
	}
	return nil
}

// Close releases resources held by the service.
func (s *ClaudeService) Close() error {
	s.logger.Debug().Msg("Closing Claude LLM service")
	return nil
}
