package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"english-tutor/internal/conversation"
	"english-tutor/internal/domain"
)

var (
	ErrBusy              = errors.New("tutor: a reply is already being generated")
	ErrEmptyInput        = errors.New("tutor: input must not be empty")
	ErrSpeechUnsupported = errors.New("tutor: speech is not supported on this platform")
)

// Relay is what the session client needs from the relay routes.
type Relay interface {
	Chat(ctx context.Context, userMessage string) (string, error)
	Translate(ctx context.Context, text string) (string, error)
	Explain(ctx context.Context, userText, aiText string) (domain.Explanation, error)
}

// Tutor is the turn-based mode: one chat call per submitted utterance.
type Tutor struct {
	relay     Relay
	store     *conversation.Store
	followUps *FollowUps
	notifier  domain.Notifier
	log       *slog.Logger

	loading atomic.Bool
}

// Loading reports whether a chat call is in flight.
func (t *Tutor) Loading() bool {
	return t.loading.Load()
}

// Submit appends the learner's text, asks the relay for a reply and appends
// it. Explanation and translation of the reply continue in the background.
// A failure is reported to the learner and leaves already appended messages
// in place.
func (t *Tutor) Submit(ctx context.Context, text string) (domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Message{}, ErrEmptyInput
	}
	if !t.loading.CompareAndSwap(false, true) {
		return domain.Message{}, ErrBusy
	}
	defer t.loading.Store(false)

	t.store.Append(conversation.NewID(conversation.PrefixUser), text, true)

	reply, err := t.relay.Chat(ctx, text)
	if err != nil {
		t.log.Error("chat failed", "err", err)
		t.notifier.Notify(domain.NoticeError, "Failed to get a reply. Please try again.")
		return domain.Message{}, fmt.Errorf("tutor: chat: %w", err)
	}

	msg, _ := t.store.Append(conversation.NewID(conversation.PrefixAI), reply, false)
	t.followUps.AITurn(msg, text)
	return msg, nil
}
