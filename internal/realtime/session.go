package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"english-tutor/internal/conversation"
	"english-tutor/internal/domain"
)

var (
	ErrSessionBusy   = errors.New("realtime: a session is already activating or active")
	ErrNotActive     = errors.New("realtime: session is not active")
	ErrDuplicateSend = errors.New("realtime: a response is still pending")
	ErrStopped       = errors.New("realtime: session stopped during activation")
	ErrEmptyText     = errors.New("realtime: text must not be empty")
)

// Labels passed to AITurnFunc describing where an AI turn came from. They
// stand in for the learner's words when no user message exists yet.
const (
	VoiceConversation = "realtime voice conversation"
	TextConversation  = "realtime text conversation"
)

// AITurnFunc is called after an AI message was appended, outside any session
// lock. source is VoiceConversation or TextConversation.
type AITurnFunc func(msg domain.Message, source string)

type Deps struct {
	Tokens   TokenSource
	Peers    PeerConnector
	Media    MediaCapture
	Sink     AudioSink
	SDP      SDPExchanger
	Store    *conversation.Store
	Notifier domain.Notifier
	OnAITurn AITurnFunc
	Logger   *slog.Logger
}

type Config struct {
	Session SessionConfig
	// SendGuard rejects text sends while a response is pending.
	SendGuard bool
}

// Session drives one realtime voice conversation at a time through
// Idle -> Activating -> Active -> Idle. All transitions hold mu; platform
// resources are released outside it.
type Session struct {
	deps Deps
	cfg  Config
	log  *slog.Logger

	mu      sync.Mutex
	state   State
	current *link
	pending bool

	sendMu sync.Mutex
}

func NewSession(deps Deps, cfg Config) (*Session, error) {
	switch {
	case deps.Tokens == nil:
		return nil, errors.New("realtime: token source must not be nil")
	case deps.Peers == nil:
		return nil, errors.New("realtime: peer connector must not be nil")
	case deps.Media == nil:
		return nil, errors.New("realtime: media capture must not be nil")
	case deps.SDP == nil:
		return nil, errors.New("realtime: SDP exchanger must not be nil")
	case deps.Store == nil:
		return nil, errors.New("realtime: store must not be nil")
	}
	if deps.Sink == nil {
		deps.Sink = discardSink{}
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.Session.Voice == "" {
		cfg.Session = DefaultSessionConfig("")
	}
	return &Session{deps: deps, cfg: cfg, log: log}, nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start activates a session. It returns once the answer SDP is applied; the
// session becomes Active when the data channel opens. Any failure tears down
// everything created so far, restores Idle and notifies the learner.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return ErrSessionBusy
	}
	l := &link{}
	s.state = Activating
	s.current = l
	s.pending = false
	s.mu.Unlock()
	s.log.Info("realtime session activating")

	if err := s.activate(ctx, l); err != nil {
		s.abort(l, err)
		return err
	}
	return nil
}

func (s *Session) activate(ctx context.Context, l *link) error {
	token, err := s.deps.Tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("realtime: fetch token: %w", err)
	}
	key := strings.TrimSpace(token.ClientSecret.Value)
	if key == "" {
		return errors.New("realtime: token has no client secret")
	}

	pc, err := s.deps.Peers.NewPeerConnection()
	if err != nil {
		return fmt.Errorf("realtime: create peer connection: %w", err)
	}
	if !l.setPeer(pc) {
		return ErrStopped
	}
	pc.OnTrack(func(track RemoteTrack) {
		if !s.isCurrent(l) {
			return
		}
		s.log.Info("realtime remote track", "track_id", track.ID(), "kind", track.Kind())
		s.deps.Sink.Attach(track)
	})

	track, err := s.deps.Media.Capture(ctx)
	if err != nil {
		return fmt.Errorf("realtime: capture microphone: %w", err)
	}
	if !l.addTrack(track) {
		return ErrStopped
	}
	if err := pc.AddTrack(track); err != nil {
		return fmt.Errorf("realtime: add local track: %w", err)
	}

	dc, err := pc.CreateDataChannel(DataChannelLabel)
	if err != nil {
		return fmt.Errorf("realtime: create data channel: %w", err)
	}
	if !l.setChannel(dc) {
		return ErrStopped
	}
	dc.OnOpen(func() { s.handleOpen(l) })
	dc.OnClose(func() { s.handleClose(l) })
	dc.OnMessage(func(data []byte) { s.handleMessage(l, data) })

	offer, err := pc.CreateOffer(ctx)
	if err != nil {
		return fmt.Errorf("realtime: create offer: %w", err)
	}
	answer, err := s.deps.SDP.Exchange(ctx, offer, key)
	if err != nil {
		return fmt.Errorf("realtime: exchange SDP: %w", err)
	}
	if err := pc.SetAnswer(answer); err != nil {
		return fmt.Errorf("realtime: apply answer: %w", err)
	}
	if !s.isCurrent(l) {
		return ErrStopped
	}
	return nil
}

func (s *Session) abort(l *link, cause error) {
	if !s.release(l) {
		// Stop already reset the state and told the learner.
		_ = l.teardown()
		return
	}
	s.shutdown(l)
	s.log.Error("realtime session activation failed", "err", cause)
	s.deps.Notifier.Notify(domain.NoticeError, "Failed to start realtime session: "+cause.Error())
}

// Stop tears the session down. Calling it while Idle does nothing.
func (s *Session) Stop() {
	s.mu.Lock()
	l := s.current
	if s.state == Idle || l == nil {
		s.mu.Unlock()
		return
	}
	s.state = Idle
	s.current = nil
	s.pending = false
	s.mu.Unlock()

	s.shutdown(l)
	s.log.Info("realtime session stopped")
	s.deps.Notifier.Notify(domain.NoticeInfo, "Realtime session ended")
}

// release detaches l from the session and resets to Idle if l is current.
func (s *Session) release(l *link) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != l {
		return false
	}
	s.state = Idle
	s.current = nil
	s.pending = false
	return true
}

func (s *Session) shutdown(l *link) {
	if err := l.teardown(); err != nil {
		s.log.Warn("realtime teardown", "err", err)
	}
	s.deps.Sink.Detach()
}

func (s *Session) isCurrent(l *link) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current == l
}

func (s *Session) handleOpen(l *link) {
	update, err := sessionUpdateEvent(s.cfg.Session)
	if err != nil {
		s.failOpen(l, fmt.Errorf("realtime: build session.update: %w", err))
		return
	}
	update = withEventID(update)

	s.mu.Lock()
	if s.current != l || s.state != Activating {
		s.mu.Unlock()
		return
	}
	// session.update goes out before Active so no other event can precede it.
	if err := s.writeLocked(l, update); err != nil {
		s.mu.Unlock()
		s.failOpen(l, err)
		return
	}
	s.deps.Store.ClearEvents()
	s.state = Active
	s.mu.Unlock()

	s.deps.Store.LogEvent(update)
	s.log.Info("realtime session active")
	s.deps.Notifier.Notify(domain.NoticeSuccess, "Realtime session started")
}

func (s *Session) failOpen(l *link, err error) {
	if !s.release(l) {
		return
	}
	s.shutdown(l)
	s.log.Error("realtime session configuration failed", "err", err)
	s.deps.Notifier.Notify(domain.NoticeError, "Failed to configure realtime session: "+err.Error())
}

func (s *Session) handleClose(l *link) {
	if !s.release(l) {
		return
	}
	s.shutdown(l)
	s.log.Info("realtime data channel closed")
	s.deps.Notifier.Notify(domain.NoticeInfo, "Realtime session ended")
}

// handleMessage dispatches inbound events only while Active. Anything that
// arrives during Activating is dropped; the log is cleared on open anyway.
func (s *Session) handleMessage(l *link, data []byte) {
	s.mu.Lock()
	current, state := s.current == l, s.state
	s.mu.Unlock()
	if !current {
		return
	}
	if state != Active {
		s.log.Debug("realtime event before session is active", "state", state.String())
		return
	}
	var ev domain.RealtimeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.log.Warn("realtime event is not a JSON object", "err", err)
		return
	}
	ev = s.deps.Store.LogEvent(ev)

	switch ev.Type {
	case EventResponseAudioTranscript:
		if text, ok := transcript(ev); ok {
			s.appendAI(conversation.NewID(conversation.PrefixAI), text, VoiceConversation)
		}
	case EventInputTranscriptionDone:
		if text, ok := transcript(ev); ok {
			s.deps.Store.Append(conversation.NewID(conversation.PrefixUser), text, true)
		}
	case EventResponseDone:
		s.clearPending()
		for _, text := range responseTexts(ev) {
			s.appendAI(conversation.NewID(conversation.PrefixAIText), text, TextConversation)
		}
	case EventError:
		s.clearPending()
		s.log.Warn("realtime service reported an error", "event_id", ev.EventID)
	default:
		s.log.Debug("realtime event", "event_type", ev.Type)
	}
}

func (s *Session) appendAI(id, text, source string) {
	msg, added := s.deps.Store.Append(id, text, false)
	if !added || s.deps.OnAITurn == nil {
		return
	}
	s.deps.OnAITurn(msg, source)
}

func (s *Session) clearPending() {
	s.mu.Lock()
	s.pending = false
	s.mu.Unlock()
}

// SendText appends text as a user message right away, then asks the service
// to respond. No acknowledgment is awaited.
func (s *Session) SendText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}
	events, err := userTextEvents(text)
	if err != nil {
		return fmt.Errorf("realtime: build events: %w", err)
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	if s.state != Active {
		s.mu.Unlock()
		return ErrNotActive
	}
	if s.cfg.SendGuard && s.pending {
		s.mu.Unlock()
		return ErrDuplicateSend
	}
	s.pending = true
	l := s.current
	s.mu.Unlock()

	s.deps.Store.Append(conversation.NewID(conversation.PrefixUserText), text, true)
	for _, ev := range events {
		if err := s.send(l, withEventID(ev)); err != nil {
			s.clearPending()
			return err
		}
	}
	return nil
}

func (s *Session) send(l *link, ev domain.RealtimeEvent) error {
	s.mu.Lock()
	if s.current != l || s.state != Active {
		s.mu.Unlock()
		return ErrNotActive
	}
	err := s.writeLocked(l, ev)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.deps.Store.LogEvent(ev)
	return nil
}

func (s *Session) writeLocked(l *link, ev domain.RealtimeEvent) error {
	dc := l.channel()
	if dc == nil {
		return ErrNotActive
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("realtime: encode %s: %w", ev.Type, err)
	}
	if err := dc.SendText(string(raw)); err != nil {
		return fmt.Errorf("realtime: send %s: %w", ev.Type, err)
	}
	return nil
}

type discardSink struct{}

func (discardSink) Attach(RemoteTrack) {}
func (discardSink) Detach()            {}

type nopNotifier struct{}

func (nopNotifier) Notify(domain.NoticeLevel, string) {}
