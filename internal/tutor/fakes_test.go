package tutor

import (
	"context"
	"errors"
	"sync"

	"english-tutor/internal/domain"
	"english-tutor/internal/realtime"
)

type explainCall struct {
	userText string
	aiText   string
}

type fakeRelay struct {
	mu sync.Mutex

	chat      func(ctx context.Context, msg string) (string, error)
	translate func(ctx context.Context, text string) (string, error)
	explain   func(ctx context.Context, userText, aiText string) (domain.Explanation, error)

	chats      []string
	translated []string
	explained  []explainCall
}

func (r *fakeRelay) Chat(ctx context.Context, msg string) (string, error) {
	r.mu.Lock()
	r.chats = append(r.chats, msg)
	fn := r.chat
	r.mu.Unlock()
	if fn == nil {
		return "Hi there!", nil
	}
	return fn(ctx, msg)
}

func (r *fakeRelay) Translate(ctx context.Context, text string) (string, error) {
	r.mu.Lock()
	r.translated = append(r.translated, text)
	fn := r.translate
	r.mu.Unlock()
	if fn == nil {
		return "こんにちは!", nil
	}
	return fn(ctx, text)
}

func (r *fakeRelay) Explain(ctx context.Context, userText, aiText string) (domain.Explanation, error) {
	r.mu.Lock()
	r.explained = append(r.explained, explainCall{userText: userText, aiText: aiText})
	fn := r.explain
	r.mu.Unlock()
	if fn == nil {
		return domain.Explanation{English: aiText, Japanese: "説明"}, nil
	}
	return fn(ctx, userText, aiText)
}

func (r *fakeRelay) Explained() []explainCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]explainCall(nil), r.explained...)
}

func (r *fakeRelay) Translated() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.translated...)
}

type notice struct {
	level   domain.NoticeLevel
	message string
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *fakeNotifier) Notify(level domain.NoticeLevel, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{level: level, message: message})
}

func (n *fakeNotifier) Errors() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, nt := range n.notices {
		if nt.level == domain.NoticeError {
			out = append(out, nt.message)
		}
	}
	return out
}

type fakeRecognizer struct {
	text  string
	err   error
	block bool
	lang  string
}

func (r *fakeRecognizer) Recognize(ctx context.Context, lang string) (string, error) {
	r.lang = lang
	if r.block {
		<-ctx.Done()
		return "", errors.New("recognition aborted")
	}
	return r.text, r.err
}

type fakeSynthesizer struct {
	text string
	lang string
	rate float64
}

func (s *fakeSynthesizer) Speak(_ context.Context, text, lang string, rate float64) error {
	s.text, s.lang, s.rate = text, lang, rate
	return nil
}

// Minimal platform for realtime mode.

type fakeTrack struct{}

func (fakeTrack) ID() string   { return "mic" }
func (fakeTrack) Kind() string { return "audio" }
func (fakeTrack) Stop() error  { return nil }

type fakeChannel struct {
	mu      sync.Mutex
	onOpen  func()
	onClose func()
	onMsg   func([]byte)
	sent    []string
}

func (c *fakeChannel) OnOpen(fn func())          { c.onOpen = fn }
func (c *fakeChannel) OnClose(fn func())         { c.onClose = fn }
func (c *fakeChannel) OnMessage(fn func([]byte)) { c.onMsg = fn }
func (c *fakeChannel) Close() error              { return nil }

func (c *fakeChannel) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return nil
}

func (c *fakeChannel) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

type fakePeer struct {
	channel *fakeChannel
}

func (p *fakePeer) OnTrack(func(realtime.RemoteTrack)) {}
func (p *fakePeer) AddTrack(realtime.LocalTrack) error { return nil }
func (p *fakePeer) SetAnswer(string) error             { return nil }
func (p *fakePeer) Close() error                       { return nil }

func (p *fakePeer) CreateDataChannel(string) (realtime.DataChannel, error) {
	p.channel = &fakeChannel{}
	return p.channel, nil
}

func (p *fakePeer) CreateOffer(context.Context) (string, error) {
	return "v=0\r\n", nil
}

type fakePlatform struct {
	peer *fakePeer
}

func (f *fakePlatform) NewPeerConnection() (realtime.PeerConnection, error) {
	f.peer = &fakePeer{}
	return f.peer, nil
}

func (f *fakePlatform) Capture(context.Context) (realtime.LocalTrack, error) {
	return fakeTrack{}, nil
}

func (f *fakePlatform) Token(context.Context) (domain.RealtimeSession, error) {
	return domain.RealtimeSession{ClientSecret: domain.ClientSecret{Value: "ek_test"}}, nil
}

func (f *fakePlatform) Exchange(context.Context, string, string) (string, error) {
	return "v=0\r\nanswer\r\n", nil
}

func (f *fakePlatform) deps() *realtime.Deps {
	return &realtime.Deps{Tokens: f, Peers: f, Media: f, SDP: f}
}
