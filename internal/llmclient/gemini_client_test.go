package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/pagepilot/internal/config"
)

func setupGeminiClient(t *testing.T, handler http.HandlerFunc) *GeminiClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := validLLMConfig()
	cfg.Provider = config.ProviderGemini
	cfg.Model = "gemini-2.0-flash"
	cfg.Endpoint = server.URL

	client, err := NewGeminiClient(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	return client
}

func TestNewGeminiClient_DefaultEndpoint(t *testing.T) {
	cfg := validLLMConfig()
	cfg.Model = "gemini-2.0-flash"
	cfg.Endpoint = ""

	client, err := NewGeminiClient(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t,
		"https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent",
		client.endpoint)
}

func TestNewGeminiClient_MissingAPIKey(t *testing.T) {
	cfg := validLLMConfig()
	cfg.APIKey = ""

	client, err := NewGeminiClient(cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
	assert.Nil(t, client)
}

func TestGeminiBuildRequestPayload(t *testing.T) {
	client := setupGeminiClient(t, nil)

	payload := client.buildRequestPayload(testRequest())

	require.Len(t, payload.Contents, 1)
	assert.Equal(t, "user", payload.Contents[0].Role)
	assert.Equal(t, "User query.", payload.Contents[0].Parts[0].Text)
	require.NotNil(t, payload.SystemInstruction)
	assert.Equal(t, "System prompt instructions.", payload.SystemInstruction.Parts[0].Text)
	assert.Equal(t, "application/json", payload.GenerationConfig.ResponseMimeType)
	assert.Equal(t, 1024, payload.GenerationConfig.MaxOutputTokens)
}

func TestGeminiGenerate_Success(t *testing.T) {
	var gotKey string
	client := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		resp := map[string]any{
			"candidates": []map[string]any{
				{
					"content":      map[string]any{"parts": []map[string]string{{"text": "hello"}}, "role": "model"},
					"finishReason": "STOP",
				},
			},
			"usageMetadata": map[string]int{"promptTokenCount": 7, "candidatesTokenCount": 3, "totalTokenCount": 10},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	resp, err := client.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, 10, resp.Usage.TotalTokens)
	assert.Equal(t, "test-key", gotKey)
}

func TestGeminiGenerate_NoCandidates(t *testing.T) {
	client := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	})

	_, err := client.Generate(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no candidates")
}

func TestGeminiGenerate_EmptyParts(t *testing.T) {
	client := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`))
	})

	_, err := client.Generate(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETY")
}
