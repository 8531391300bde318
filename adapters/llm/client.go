// Package llm provides the OpenAI-compatible chat completion client used by
// the extraction and reasoning calls, plus a mock for tests.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"phenodx/domain/core"
	"phenodx/ports"
)

// Config for the OpenAI-compatible endpoint.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

// Client implements ports.LLMClient against any /chat/completions endpoint.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient validates the config and builds a client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing API key")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("missing model")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}, nil
}

// ChatCompletion sends one system+user exchange. Reasoning-tuned models
// sometimes return an empty content field and put the real answer in the
// reasoning channel, so that channel is checked before declaring the
// response empty.
func (c *Client) ChatCompletion(ctx context.Context, req ports.ChatRequest) (*ports.ChatResponse, error) {
	type msg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	type reqBody struct {
		Model       string  `json:"model"`
		Messages    []msg   `json:"messages"`
		Temperature float64 `json:"temperature,omitempty"`
		MaxTokens   int     `json:"max_tokens,omitempty"`
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.cfg.Temperature
	}

	body := reqBody{
		Model: c.cfg.Model,
		Messages: []msg{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrGenerationFailed, err)
	}
	defer resp.Body.Close()

	respRaw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: http %d: %s", core.ErrGenerationFailed, resp.StatusCode, string(respRaw))
	}

	type choice struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
	}
	type respBody struct {
		Choices []choice `json:"choices"`
		Usage   *struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	var decoded respBody
	if err := json.Unmarshal(respRaw, &decoded); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("%w: response missing choices", core.ErrGenerationFailed)
	}

	content := decoded.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		content = decoded.Choices[0].Message.ReasoningContent
	}
	if strings.TrimSpace(content) == "" {
		return nil, core.ErrGenerationEmpty
	}

	out := &ports.ChatResponse{Content: content}
	if decoded.Usage != nil {
		out.Usage = &ports.UsageData{
			PromptTokens:     decoded.Usage.PromptTokens,
			CompletionTokens: decoded.Usage.CompletionTokens,
			TotalTokens:      decoded.Usage.TotalTokens,
			Model:            c.cfg.Model,
			Provider:         "openai",
		}
	}
	return out, nil
}

// MockClient is a canned-response client for tests.
type MockClient struct {
	Response string
	Err      error
	Requests []ports.ChatRequest
}

// ChatCompletion records the request and returns the canned response.
func (m *MockClient) ChatCompletion(_ context.Context, req ports.ChatRequest) (*ports.ChatResponse, error) {
	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return nil, m.Err
	}
	return &ports.ChatResponse{Content: m.Response}, nil
}

var (
	_ ports.LLMClient = (*Client)(nil)
	_ ports.LLMClient = (*MockClient)(nil)
)
