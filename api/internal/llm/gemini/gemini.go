package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"step-tutor/api/internal/llm"
)

type Engine struct {
	APIKey string
	Model  string

	opts []option.ClientOption
}

func New(apiKey, model string, opts ...option.ClientOption) *Engine {
	return &Engine{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
		opts:   opts,
	}
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }

// Complete sends system messages as the system instruction and user messages
// as content parts. One attempt only.
func (e *Engine) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResult, error) {
	if e.APIKey == "" {
		return llm.CompletionResult{}, fmt.Errorf("gemini: %w", llm.ErrMissingAPIKey)
	}

	opts := append([]option.ClientOption{option.WithAPIKey(e.APIKey)}, e.opts...)
	cl, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return llm.CompletionResult{}, fmt.Errorf("gemini: new client: %w", err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	if m == nil {
		return llm.CompletionResult{}, errors.New("gemini: model is nil")
	}
	m.SetTemperature(float32(in.Temperature))
	if in.MaxTokens > 0 {
		m.SetMaxOutputTokens(int32(in.MaxTokens))
	}

	system, parts := splitMessages(in.Messages)
	if len(system) > 0 {
		m.SystemInstruction = &genai.Content{Parts: system}
	}

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return llm.CompletionResult{}, classify(e.Name(), err)
	}
	return llm.CompletionResult{Content: strings.TrimSpace(firstText(resp))}, nil
}

func splitMessages(msgs []llm.Message) (system, user []genai.Part) {
	for _, msg := range msgs {
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, genai.Text(msg.Content))
		default:
			user = append(user, genai.Text(msg.Content))
		}
	}
	return system, user
}

// classify turns an HTTP-level rejection into *llm.UpstreamError; anything
// else (transport, decoding) stays an internal error.
func classify(provider string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		body := strings.TrimSpace(gerr.Body)
		if body == "" {
			body = gerr.Message
		}
		return &llm.UpstreamError{Provider: provider, StatusCode: gerr.Code, Body: body}
	}
	return fmt.Errorf("gemini: %w", err)
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	c := resp.Candidates[0]
	if c == nil || c.Content == nil {
		return ""
	}
	for _, p := range c.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			return string(t)
		}
	}
	return ""
}
