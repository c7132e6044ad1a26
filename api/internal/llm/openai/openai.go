package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"step-tutor/api/internal/llm"
)

const DefaultBaseURL = "https://api.openai.com"

type Engine struct {
	APIKey  string
	Model   string
	BaseURL string
	httpc   *http.Client
}

// New builds a chat-completions engine. The client has no Timeout: the call
// is bounded only by the caller's context.
func New(key, model string) *Engine {
	return &Engine{
		APIKey:  strings.TrimSpace(key),
		Model:   strings.TrimSpace(model),
		BaseURL: DefaultBaseURL,
		httpc:   &http.Client{},
	}
}

// WithBaseURL points the engine at another OpenAI-compatible host.
func (e *Engine) WithBaseURL(u string) *Engine {
	if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
		e.BaseURL = u
	}
	return e
}

// WithHTTPClient overrides the internal HTTP client (e.g., for tracing).
func (e *Engine) WithHTTPClient(c *http.Client) *Engine {
	if c != nil {
		e.httpc = c
	}
	return e
}

func (e *Engine) Name() string     { return "gpt" }
func (e *Engine) GetModel() string { return e.Model }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (e *Engine) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResult, error) {
	if e.APIKey == "" {
		return llm.CompletionResult{}, fmt.Errorf("openai: %w", llm.ErrMissingAPIKey)
	}

	payload, err := json.Marshal(chatRequest{
		Model:       e.Model,
		Messages:    in.Messages,
		MaxTokens:   in.MaxTokens,
		Temperature: in.Temperature,
	})
	if err != nil {
		return llm.CompletionResult{}, fmt.Errorf("openai: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return llm.CompletionResult{}, fmt.Errorf("openai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.APIKey)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return llm.CompletionResult{}, fmt.Errorf("openai: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		x, _ := io.ReadAll(resp.Body)
		return llm.CompletionResult{}, &llm.UpstreamError{
			Provider:   e.Name(),
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(x)),
		}
	}

	var raw chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return llm.CompletionResult{}, fmt.Errorf("openai: decode response: %w", err)
	}
	if len(raw.Choices) == 0 {
		return llm.CompletionResult{}, nil
	}
	return llm.CompletionResult{Content: strings.TrimSpace(raw.Choices[0].Message.Content)}, nil
}
