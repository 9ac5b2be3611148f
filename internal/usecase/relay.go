package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"english-tutor/internal/domain"
)

const (
	defaultChatTemperature        = 0.7
	defaultTranslationTemperature = 0.3
	defaultExplanationTemperature = 0.7
	defaultVoice                  = "verse"
)

type LLMClient interface {
	Chat(ctx context.Context, in domain.CompletionRequest) (string, error)
	CreateRealtimeSession(ctx context.Context, voice string) (json.RawMessage, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// Settings holds the fixed prompts and sampling parameters of the relay.
// Empty strings and nil pointers fall back to the package defaults. A
// ChatPrompt pointing at an empty string sends /chat without a system prompt.
type Settings struct {
	Voice                  string
	ChatPrompt             *string
	TranslationPrompt      string
	ExplanationPrompt      string
	ChatTemperature        *float64
	TranslationTemperature *float64
	ExplanationTemperature *float64
}

// resolved is Settings with every default applied.
type resolved struct {
	voice                  string
	chatPrompt             string
	translationPrompt      string
	explanationPrompt      string
	chatTemperature        float64
	translationTemperature float64
	explanationTemperature float64
}

func (s Settings) resolve() resolved {
	r := resolved{
		voice:                  strings.TrimSpace(s.Voice),
		chatPrompt:             DefaultChatPrompt,
		translationPrompt:      s.TranslationPrompt,
		explanationPrompt:      s.ExplanationPrompt,
		chatTemperature:        orDefault(s.ChatTemperature, defaultChatTemperature),
		translationTemperature: orDefault(s.TranslationTemperature, defaultTranslationTemperature),
		explanationTemperature: orDefault(s.ExplanationTemperature, defaultExplanationTemperature),
	}
	if r.voice == "" {
		r.voice = defaultVoice
	}
	if s.ChatPrompt != nil {
		r.chatPrompt = strings.TrimSpace(*s.ChatPrompt)
	}
	if strings.TrimSpace(r.translationPrompt) == "" {
		r.translationPrompt = DefaultTranslationPrompt
	}
	if strings.TrimSpace(r.explanationPrompt) == "" {
		r.explanationPrompt = DefaultExplanationPrompt
	}
	return r
}

func orDefault(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

// RelayService forwards tutor requests to the upstream provider. It holds no
// per-request state and never retries.
type RelayService struct {
	llm      LLMClient
	settings resolved
}

// ChatInput is either a single utterance or a full message list.
type ChatInput struct {
	UserMessage string
	Messages    []domain.ChatMessage
	ParseJSON   bool
}

type ExplainInput struct {
	UserText string
	AIText   string
}

func NewRelayService(llm LLMClient, settings Settings) (*RelayService, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	return &RelayService{llm: llm, settings: settings.resolve()}, nil
}

// Token issues a realtime session descriptor carrying an ephemeral secret.
func (s *RelayService) Token(ctx context.Context) (json.RawMessage, error) {
	raw, err := s.llm.CreateRealtimeSession(ctx, s.settings.voice)
	if err != nil {
		e := upstreamError("realtime_session", err)
		e.Detail = diagnostic(err)
		return nil, e
	}
	return raw, nil
}

// Chat returns the first choice's content for the given conversation.
func (s *RelayService) Chat(ctx context.Context, in ChatInput) (string, error) {
	if len(in.Messages) == 0 && strings.TrimSpace(in.UserMessage) == "" {
		return "", newError(ErrorInvalidInput, "empty_message", nil)
	}
	for _, m := range in.Messages {
		if strings.TrimSpace(m.Role) == "" {
			return "", newError(ErrorInvalidInput, "message_missing_role", nil)
		}
	}
	out, err := s.llm.Chat(ctx, domain.CompletionRequest{
		Messages:    buildChatMessages(s.settings.chatPrompt, in),
		Temperature: s.settings.chatTemperature,
		JSONObject:  in.ParseJSON,
	})
	if err != nil {
		return "", upstreamError("chat", err)
	}
	return out, nil
}

// Translate returns the translated text only.
func (s *RelayService) Translate(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", newError(ErrorInvalidInput, "empty_text", nil)
	}
	out, err := s.llm.Chat(ctx, domain.CompletionRequest{
		Messages:    buildTranslationMessages(s.settings.translationPrompt, text),
		Temperature: s.settings.translationTemperature,
	})
	if err != nil {
		return "", upstreamError("translation", err)
	}
	return strings.TrimSpace(out), nil
}

// Explain returns the raw JSON object produced by the model. Decoding it is
// the caller's job.
func (s *RelayService) Explain(ctx context.Context, in ExplainInput) (string, error) {
	if strings.TrimSpace(in.AIText) == "" {
		return "", newError(ErrorInvalidInput, "empty_ai_text", nil)
	}
	out, err := s.llm.Chat(ctx, domain.CompletionRequest{
		Messages:    buildExplanationMessages(s.settings.explanationPrompt, in.UserText, in.AIText),
		Temperature: s.settings.explanationTemperature,
		JSONObject:  true,
	})
	if err != nil {
		return "", upstreamError("explanation", err)
	}
	return out, nil
}

func upstreamError(op string, err error) *Error {
	if status, ok := upstreamStatusCode(err); ok && status == 429 {
		return newError(ErrorRateLimited, op+"_rate_limited", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newError(ErrorUpstream, op+"_cancelled", err)
	}
	return newError(ErrorUpstream, op+"_error", err)
}

func diagnostic(err error) string {
	if status, ok := upstreamStatusCode(err); ok {
		return fmt.Sprintf("upstream returned status %d", status)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "upstream request timed out"
	}
	return "upstream request failed"
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
