package ports

import "context"

// UsageData is raw token accounting from a provider response.
type UsageData struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Model            string `json:"model"`
	Provider         string `json:"provider"`
}

// ChatRequest is one system+user completion call.
type ChatRequest struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// ChatResponse is the provider's reply plus usage accounting.
type ChatResponse struct {
	Content string
	Usage   *UsageData
}

// LLMClient abstracts an OpenAI-compatible chat completion provider.
type LLMClient interface {
	ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}
