package tutor

import (
	"context"
	"log/slog"

	"english-tutor/internal/conversation"
	"english-tutor/internal/domain"
)

// FollowUps generates the explanation and, when enabled, the translation of
// every AI message. Both run concurrently and in the background.
type FollowUps struct {
	relay       Relay
	store       *conversation.Store
	tracker     *conversation.Tracker
	notifier    domain.Notifier
	translation bool
	log         *slog.Logger
}

// AITurn starts the follow-ups for msg, explaining it against userText.
func (f *FollowUps) AITurn(msg domain.Message, userText string) {
	f.tracker.Go("explanation:"+msg.ID, func(ctx context.Context) {
		exp, err := f.relay.Explain(ctx, userText, msg.Text)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			f.log.Error("explanation failed", "message_id", msg.ID, "err", err)
			f.notifier.Notify(domain.NoticeError, "Failed to generate explanation")
			return
		}
		f.store.AddExplanation(exp)
	})

	if !f.translation {
		return
	}
	f.tracker.Go("translation:"+msg.ID, func(ctx context.Context) {
		text, err := f.relay.Translate(ctx, msg.Text)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			f.log.Error("translation failed", "message_id", msg.ID, "err", err)
			f.notifier.Notify(domain.NoticeError, "Failed to translate message")
			return
		}
		f.store.AttachTranslation(msg.ID, text)
	})
}

// RealtimeTurn is the realtime.AITurnFunc. The learner's latest words are
// used when known, otherwise the source label.
func (f *FollowUps) RealtimeTurn(msg domain.Message, source string) {
	userText, ok := f.store.LastUserText()
	if !ok {
		userText = source
	}
	f.AITurn(msg, userText)
}
