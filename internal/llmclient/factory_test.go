package llmclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/pagepilot/internal/config"
)

func TestNewClient_OpenAI(t *testing.T) {
	cfg := validLLMConfig()

	client, err := NewClient(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.IsType(t, (*OpenAIClient)(nil), client)
}

func TestNewClient_Gemini(t *testing.T) {
	cfg := validLLMConfig()
	cfg.Provider = config.ProviderGemini

	client, err := NewClient(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.IsType(t, (*GeminiClient)(nil), client)
}

func TestNewClient_UnknownProvider(t *testing.T) {
	cfg := validLLMConfig()
	cfg.Provider = "watson-mainframe"

	client, err := NewClient(cfg, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "unsupported LLM provider")
}
