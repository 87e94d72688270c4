package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/describo/internal/common"
	"github.com/ternarybob/describo/internal/models"
)

func TestNewClaudeServiceRequiresAPIKey(t *testing.T) {
	config := &common.ModelConfig{
		Timeout:   "5m",
		RateLimit: "1s",
	}
	_, err := NewClaudeService(config, arbor.NewLogger())
	assert.Error(t, err)
}

func TestNewClaudeServiceDefaults(t *testing.T) {
	config := &common.ModelConfig{
		APIKey:    "sk-test",
		Timeout:   "5m",
		RateLimit: "1s",
	}
	service, err := NewClaudeService(config, arbor.NewLogger())
	require.NoError(t, err)

	assert.Equal(t, "claude-sonnet-4-20250514", config.Model)
	assert.Equal(t, 8000, service.maxTokens)
	assert.NoError(t, service.HealthCheck(context.Background()))
}

func TestClassifyAPIErrorTimeouts(t *testing.T) {
	classified := classifyAPIError(context.DeadlineExceeded)
	assert.Equal(t, models.ErrModelUnavailable, classified.Kind)
	assert.True(t, classified.Retryable())
}

func TestClassifyAPIErrorTransport(t *testing.T) {
	classified := classifyAPIError(errors.New("connection refused"))
	assert.Equal(t, models.ErrModelUnavailable, classified.Kind)
	assert.True(t, classified.Retryable())
}
