package llm

import (
	"context"
	"errors"
	"fmt"
)

type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is one non-streaming chat turn.
type CompletionRequest struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// CompletionResult holds the trimmed answer text; empty when the upstream
// response had no content.
type CompletionResult struct {
	Content string `json:"content"`
}

type Engine interface {
	Name() string
	GetModel() string
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// ErrMissingAPIKey is returned at call time when the engine has no credential.
var ErrMissingAPIKey = errors.New("llm: api key is not configured")

// UpstreamError is a non-success answer from the provider. Body is the raw
// diagnostic text and must stay server-side.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s upstream status %d", e.Provider, e.StatusCode)
}

// Engines holds the configured providers.
type Engines struct {
	OpenAI Engine
	Gemini Engine
}

func (e *Engines) GetEngine(name string) (Engine, error) {
	switch name {
	case "gpt", "openai":
		if e.OpenAI != nil {
			return e.OpenAI, nil
		}
	case "gemini":
		if e.Gemini != nil {
			return e.Gemini, nil
		}
	default:
		return nil, fmt.Errorf("unknown llm provider %q; use 'openai' or 'gemini'", name)
	}
	return nil, fmt.Errorf("llm provider %q is not configured", name)
}
