package conversation

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"english-tutor/internal/domain"
)

// ID prefixes keep the origin of a message visible in logs.
const (
	PrefixAI       = "ai"
	PrefixUser     = "user"
	PrefixAIText   = "ai-text"
	PrefixUserText = "user-text"
)

// NewID returns a unique message id such as "ai-3f2a...".
func NewID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// Listener is told about every mutation. It runs outside the store lock.
type Listener interface {
	MessageAppended(msg domain.Message)
	TranslationAttached(msg domain.Message)
	ExplanationAdded(exp domain.Explanation)
}

// Store owns the conversation state of one client: the ordered message list,
// the newest-first explanation panel and the realtime debug log.
type Store struct {
	mu           sync.RWMutex
	messages     []domain.Message
	index        map[string]int
	explanations []domain.Explanation
	events       []domain.RealtimeEvent
	eventLimit   int
	listeners    []Listener
	now          func() time.Time
}

type Option func(*Store)

// WithEventLimit caps the realtime debug log. Zero keeps every event.
func WithEventLimit(n int) Option {
	return func(s *Store) {
		if n >= 0 {
			s.eventLimit = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithListener(l Listener) Option {
	return func(s *Store) {
		if l != nil {
			s.listeners = append(s.listeners, l)
		}
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		index:      make(map[string]int),
		eventLimit: 200,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append adds a message at the end of the list. A message whose id is
// already present is ignored and false is returned.
func (s *Store) Append(id, text string, isUser bool) (domain.Message, bool) {
	s.mu.Lock()
	if i, ok := s.index[id]; ok {
		existing := s.messages[i]
		s.mu.Unlock()
		return existing, false
	}
	msg := domain.Message{
		ID:        id,
		Text:      text,
		IsUser:    isUser,
		Timestamp: s.now().UnixMilli(),
	}
	s.index[id] = len(s.messages)
	s.messages = append(s.messages, msg)
	listeners := s.listeners
	s.mu.Unlock()

	for _, l := range listeners {
		l.MessageAppended(msg)
	}
	return msg, true
}

// AttachTranslation sets the translation of the message with the given id.
// Re-attaching overwrites; an unknown id reports false.
func (s *Store) AttachTranslation(id, translation string) bool {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.messages[i].Translation = translation
	msg := s.messages[i]
	listeners := s.listeners
	s.mu.Unlock()

	for _, l := range listeners {
		l.TranslationAttached(msg)
	}
	return true
}

func (s *Store) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Store) Message(id string) (domain.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return domain.Message{}, false
	}
	return s.messages[i], true
}

// LastUserText returns the text of the most recent user message.
func (s *Store) LastUserText() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].IsUser {
			return s.messages[i].Text, true
		}
	}
	return "", false
}

// AddExplanation puts exp at the top of the panel, assigning an id when it
// has none.
func (s *Store) AddExplanation(exp domain.Explanation) domain.Explanation {
	if strings.TrimSpace(exp.ID) == "" {
		exp.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.explanations = append([]domain.Explanation{exp}, s.explanations...)
	listeners := s.listeners
	s.mu.Unlock()

	for _, l := range listeners {
		l.ExplanationAdded(exp)
	}
	return exp
}

// Explanations are returned newest first.
func (s *Store) Explanations() []domain.Explanation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Explanation, len(s.explanations))
	copy(out, s.explanations)
	return out
}

// LogEvent prepends ev to the debug log, stamping it with the local time when
// it carries no timestamp field of any type.
func (s *Store) LogEvent(ev domain.RealtimeEvent) domain.RealtimeEvent {
	if _, ok := ev.Fields["timestamp"]; !ok && ev.Timestamp == "" {
		ev.Timestamp = s.now().Format("15:04:05")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append([]domain.RealtimeEvent{ev}, s.events...)
	if s.eventLimit > 0 && len(s.events) > s.eventLimit {
		s.events = s.events[:s.eventLimit]
	}
	return ev
}

// Events are returned newest first.
func (s *Store) Events() []domain.RealtimeEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.RealtimeEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *Store) ClearEvents() {
	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
}
