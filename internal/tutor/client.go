package tutor

import (
	"context"
	"errors"
	"log/slog"

	"english-tutor/internal/conversation"
	"english-tutor/internal/domain"
	"english-tutor/internal/realtime"
)

type Deps struct {
	Relay       Relay
	Recognizer  SpeechRecognizer
	Synthesizer SpeechSynthesizer
	Notifier    domain.Notifier
	Logger      *slog.Logger
	// Realtime carries the platform capabilities of realtime mode. Store,
	// Notifier, OnAITurn and Logger are filled in by NewClient. Nil disables
	// realtime mode.
	Realtime *realtime.Deps
}

type Config struct {
	TranslationEnabled bool
	EventLogLimit      int
	Realtime           realtime.Config
}

// Client is the session client: conversation state plus the turn-based and
// realtime modes over it.
type Client struct {
	store    *conversation.Store
	tracker  *conversation.Tracker
	tutor    *Tutor
	composer *Composer
	session  *realtime.Session
	notifier domain.Notifier
}

func NewClient(deps Deps, cfg Config, opts ...conversation.Option) (*Client, error) {
	if deps.Relay == nil {
		return nil, errors.New("tutor: relay must not be nil")
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = silentNotifier{}
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	store := conversation.NewStore(append([]conversation.Option{conversation.WithEventLimit(cfg.EventLogLimit)}, opts...)...)
	tracker := conversation.NewTracker(context.Background())
	followUps := &FollowUps{
		relay:       deps.Relay,
		store:       store,
		tracker:     tracker,
		notifier:    notifier,
		translation: cfg.TranslationEnabled,
		log:         log,
	}
	c := &Client{
		store:   store,
		tracker: tracker,
		tutor: &Tutor{
			relay:     deps.Relay,
			store:     store,
			followUps: followUps,
			notifier:  notifier,
			log:       log,
		},
		composer: &Composer{
			recognizer:  deps.Recognizer,
			synthesizer: deps.Synthesizer,
			notifier:    notifier,
			log:         log,
		},
		notifier: notifier,
	}

	if deps.Realtime != nil {
		rd := *deps.Realtime
		rd.Store = store
		rd.Notifier = notifier
		rd.OnAITurn = followUps.RealtimeTurn
		rd.Logger = log
		session, err := realtime.NewSession(rd, cfg.Realtime)
		if err != nil {
			tracker.Close()
			return nil, err
		}
		c.session = session
	}
	return c, nil
}

// Submit sends text through the realtime session when one is active and
// through the turn-based tutor otherwise.
func (c *Client) Submit(ctx context.Context, text string) error {
	if c.session != nil && c.session.State() == realtime.Active {
		err := c.session.SendText(text)
		if errors.Is(err, realtime.ErrEmptyText) {
			return ErrEmptyInput
		}
		return err
	}
	_, err := c.tutor.Submit(ctx, text)
	return err
}

// SubmitInput submits and clears the composer's input line.
func (c *Client) SubmitInput(ctx context.Context) error {
	return c.Submit(ctx, c.composer.TakeInput())
}

func (c *Client) RealtimeAvailable() bool {
	return c.session != nil
}

func (c *Client) StartRealtime(ctx context.Context) error {
	if c.session == nil {
		c.notifier.Notify(domain.NoticeError, "Realtime mode is not configured.")
		return errors.New("tutor: realtime mode is not configured")
	}
	return c.session.Start(ctx)
}

func (c *Client) StopRealtime() {
	if c.session != nil {
		c.session.Stop()
	}
}

func (c *Client) RealtimeState() realtime.State {
	if c.session == nil {
		return realtime.Idle
	}
	return c.session.State()
}

func (c *Client) Loading() bool { return c.tutor.Loading() }

func (c *Client) Composer() *Composer { return c.composer }

func (c *Client) Messages() []domain.Message { return c.store.Messages() }

func (c *Client) Explanations() []domain.Explanation { return c.store.Explanations() }

func (c *Client) Events() []domain.RealtimeEvent { return c.store.Events() }

// SpeakMessage reads an AI message aloud.
func (c *Client) SpeakMessage(ctx context.Context, id string) error {
	msg, ok := c.store.Message(id)
	if !ok {
		return errors.New("tutor: unknown message")
	}
	return c.composer.Speak(ctx, msg.Text)
}

// WaitFollowUps blocks until background explanations and translations end.
func (c *Client) WaitFollowUps() {
	c.tracker.Wait()
}

// Close ends realtime mode and cancels outstanding follow-ups.
func (c *Client) Close() {
	c.StopRealtime()
	c.tracker.Close()
}

type silentNotifier struct{}

func (silentNotifier) Notify(domain.NoticeLevel, string) {}
