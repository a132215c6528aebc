// api/schemas/llm.go
package schemas

import "context"

// GenerationRequest carries one prompt pair to an LLM provider.
type GenerationRequest struct {
	SystemPrompt string
	UserPrompt   string
	Options      GenerationOptions
}

// GenerationOptions tunes a single generation call.
type GenerationOptions struct {
	// ForceJSONFormat asks the provider for a JSON-only response
	// (response_format on OpenAI, response_mime_type on Gemini).
	ForceJSONFormat bool
	Temperature     float32
}

// Usage reports the token accounting of one generation call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerationResponse is the provider-neutral result of a generation call.
type GenerationResponse struct {
	Content string
	Usage   Usage
}

// LLMClient is the narrow contract the agent holds on a language model.
// Implementations own their retry policy; the caller only supplies the
// context used to abort an in-flight call.
type LLMClient interface {
	Generate(ctx context.Context, req GenerationRequest) (GenerationResponse, error)
}
