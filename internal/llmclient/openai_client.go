// internal/llmclient/openai_client.go
package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/config"
)

// OpenAIClient implements schemas.LLMClient against the OpenAI
// chat-completions API, or any endpoint speaking the same dialect.
type OpenAIClient struct {
	apiKey     string
	endpoint   string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
	config     config.LLMConfig
}

var _ schemas.LLMClient = (*OpenAIClient)(nil)

// -- OpenAI API Request/Response Structures (Internal to this file) --

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIRequestPayload struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    float64               `json:"temperature"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponsePayload struct {
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewOpenAIClient initializes the client. The endpoint may be a base URL
// (with or without a trailing /v1); the chat-completions path is appended.
func NewOpenAIClient(cfg config.LLMConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	base := cfg.Endpoint
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	base = strings.TrimRight(base, "/")
	endpoint := base
	if !strings.HasSuffix(endpoint, "/chat/completions") {
		endpoint += "/chat/completions"
	}

	return &OpenAIClient{
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		model:    cfg.Model,
		config:   cfg,
		httpClient: &http.Client{
			Timeout: cfg.APITimeout,
		},
		logger: logger.Named("llm_client.openai"),
	}, nil
}

// Generate sends the prompts to the chat-completions endpoint and returns
// the generated content with retries.
func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (schemas.GenerationResponse, error) {
	payload := c.buildRequestPayload(req)

	body, err := json.Marshal(payload)
	if err != nil {
		return schemas.GenerationResponse{}, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	respBody, duration, err := postJSON(ctx, c.httpClient, c.logger, c.endpoint, headers, body)
	if err != nil {
		return schemas.GenerationResponse{}, err
	}

	var responsePayload openAIResponsePayload
	if err := json.Unmarshal(respBody, &responsePayload); err != nil {
		return schemas.GenerationResponse{}, fmt.Errorf("failed to decode response payload: %w", err)
	}

	if responsePayload.Error != nil {
		return schemas.GenerationResponse{}, fmt.Errorf("openai API error: %s (%s)", responsePayload.Error.Message, responsePayload.Error.Type)
	}
	if len(responsePayload.Choices) == 0 {
		return schemas.GenerationResponse{}, fmt.Errorf("openai API returned no choices")
	}

	choice := responsePayload.Choices[0]
	c.logger.Info("LLM generation complete (OpenAI)",
		zap.Duration("duration", duration),
		zap.String("finish_reason", choice.FinishReason),
		zap.Int("prompt_tokens", responsePayload.Usage.PromptTokens),
		zap.Int("completion_tokens", responsePayload.Usage.CompletionTokens),
		zap.Int("total_tokens", responsePayload.Usage.TotalTokens),
	)

	return schemas.GenerationResponse{
		Content: choice.Message.Content,
		Usage: schemas.Usage{
			PromptTokens:     responsePayload.Usage.PromptTokens,
			CompletionTokens: responsePayload.Usage.CompletionTokens,
			TotalTokens:      responsePayload.Usage.TotalTokens,
		},
	}, nil
}

func (c *OpenAIClient) buildRequestPayload(req schemas.GenerationRequest) openAIRequestPayload {
	payload := openAIRequestPayload{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		Temperature: float64(req.Options.Temperature),
		MaxTokens:   c.config.MaxTokens,
	}
	if req.Options.ForceJSONFormat {
		payload.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}
	return payload
}
