package tutor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/apex/log"

	"step-tutor/api/internal/identity"
	"step-tutor/api/internal/llm"
	"step-tutor/api/internal/prompt"
	"step-tutor/api/internal/store"
)

const (
	SystemPersona = "You are a clear, patient physics tutor for university students."
	MaxTokens     = 600
	Temperature   = 0.4
)

// User-facing messages. Clients match on them verbatim.
const (
	MsgPlanRequired   = "Mastery plan required."
	MsgMissingFields  = "Missing subject, topic, or stepNumber."
	MsgUpstreamFailed = "OpenAI request failed."
	MsgInternal       = "Internal server error."
)

var (
	ErrPlanRequired  = errors.New("tutor: mastery plan required")
	ErrMissingFields = errors.New("tutor: missing subject, topic, or stepNumber")
)

// Message maps a RunStep error to its user-facing text.
func Message(err error) string {
	var ue *llm.UpstreamError
	switch {
	case errors.Is(err, ErrPlanRequired):
		return MsgPlanRequired
	case errors.Is(err, ErrMissingFields):
		return MsgMissingFields
	case errors.As(err, &ue):
		return MsgUpstreamFailed
	default:
		return MsgInternal
	}
}

// StepRequest is the run-step body. StepNumber is a JSON number; zero
// counts as missing.
type StepRequest struct {
	Subject    string  `json:"subject"`
	Topic      string  `json:"topic"`
	StepNumber float64 `json:"stepNumber"`

	// StepMistyped marks a truthy stepNumber that is not a JSON number. It
	// passes validation but never matches a lesson.
	StepMistyped bool `json:"-"`
}

func (r StepRequest) Valid() bool {
	return r.Subject != "" && r.Topic != "" && (r.StepNumber != 0 || r.StepMistyped)
}

// DecodeStepRequest reads a run-step body loosely: a field is missing only
// when absent or falsy (null, false, 0, ""). Present values of another JSON
// type are kept as their raw text, so they validate but fall back to the
// generic prompt.
func DecodeStepRequest(body map[string]json.RawMessage) StepRequest {
	in := StepRequest{
		Subject: looseString(body["subject"]),
		Topic:   looseString(body["topic"]),
	}
	if raw, ok := body["stepNumber"]; ok {
		var n float64
		if err := json.Unmarshal(raw, &n); err == nil {
			in.StepNumber = n
		} else {
			in.StepMistyped = truthy(raw)
		}
	}
	return in
}

func looseString(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if !truthy(raw) {
		return ""
	}
	return string(bytes.TrimSpace(raw))
}

func truthy(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}

// Journal records finished attempts. Implemented by *store.StepRepo.
type Journal interface {
	Record(ctx context.Context, run store.StepRun) error
}

type Service struct {
	engine  llm.Engine
	prompts *prompt.Table
	journal Journal
}

func NewService(engine llm.Engine, prompts *prompt.Table) *Service {
	if prompts == nil {
		prompts = prompt.Default()
	}
	return &Service{engine: engine, prompts: prompts}
}

// WithJournal enables the step-run journal. A nil journal disables it.
func (s *Service) WithJournal(j Journal) *Service {
	s.journal = j
	return s
}

func (s *Service) Engine() llm.Engine { return s.engine }

// BuildPrompt returns the user prompt for in.
func (s *Service) BuildPrompt(in StepRequest) string {
	if in.StepMistyped {
		return s.prompts.Fallback()
	}
	return s.prompts.Build(in.Subject, in.Topic, in.StepNumber)
}

// RunStep applies the plan gate, validates in, then makes exactly one engine
// call. Errors are ErrPlanRequired, ErrMissingFields, *llm.UpstreamError or
// an internal error.
func (s *Service) RunStep(ctx context.Context, user *identity.UserIdentity, in StepRequest) (llm.CompletionResult, error) {
	if !user.HasPlan(identity.PlanMastery) {
		return llm.CompletionResult{}, ErrPlanRequired
	}
	if !in.Valid() {
		return llm.CompletionResult{}, ErrMissingFields
	}

	req := llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: SystemPersona},
			{Role: llm.RoleUser, Content: s.BuildPrompt(in)},
		},
		MaxTokens:   MaxTokens,
		Temperature: Temperature,
	}

	start := time.Now()
	out, err := s.engine.Complete(ctx, req)
	s.record(ctx, in, out, err, time.Since(start))
	return out, err
}

func (s *Service) record(ctx context.Context, in StepRequest, out llm.CompletionResult, err error, took time.Duration) {
	if s.journal == nil {
		return
	}
	outcome := store.OutcomeSuccess
	var ue *llm.UpstreamError
	switch {
	case errors.As(err, &ue):
		outcome = store.OutcomeUpstreamError
	case err != nil:
		outcome = store.OutcomeInternalError
	}

	run := store.StepRun{
		Subject:    in.Subject,
		Topic:      in.Topic,
		StepNumber: in.StepNumber,
		Engine:     s.engine.Name(),
		Model:      s.engine.GetModel(),
		Outcome:    outcome,
		ContentLen: len(out.Content),
		Latency:    took,
	}
	// The journal must not fail the step, even if the caller went away.
	if jerr := s.journal.Record(context.WithoutCancel(ctx), run); jerr != nil {
		log.WithError(jerr).WithField("outcome", outcome).Warn("step.journal.failed")
	}
}
