package realtime

import (
	"context"
	"errors"
	"sync"

	"english-tutor/internal/domain"
)

type fakeTrack struct {
	id      string
	stopped int
}

func (t *fakeTrack) ID() string   { return t.id }
func (t *fakeTrack) Kind() string { return "audio" }
func (t *fakeTrack) Stop() error {
	t.stopped++
	return nil
}

type fakeChannel struct {
	mu      sync.Mutex
	label   string
	onOpen  func()
	onClose func()
	onMsg   func([]byte)
	sent    []string
	closed  int
	sendErr error
}

func (c *fakeChannel) OnOpen(fn func())          { c.onOpen = fn }
func (c *fakeChannel) OnClose(fn func())         { c.onClose = fn }
func (c *fakeChannel) OnMessage(fn func([]byte)) { c.onMsg = fn }

func (c *fakeChannel) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	if c.closed > 0 {
		return errors.New("data channel closed")
	}
	c.sent = append(c.sent, text)
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeChannel) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func (c *fakeChannel) open()              { c.onOpen() }
func (c *fakeChannel) remoteClose()       { c.onClose() }
func (c *fakeChannel) deliver(raw string) { c.onMsg([]byte(raw)) }

type fakePeer struct {
	onTrack      func(RemoteTrack)
	tracks       []LocalTrack
	channel      *fakeChannel
	closed       int
	offerErr     error
	channelErr   error
	setAnswerErr error
	answer       string
}

func (p *fakePeer) OnTrack(fn func(RemoteTrack)) { p.onTrack = fn }

func (p *fakePeer) AddTrack(t LocalTrack) error {
	p.tracks = append(p.tracks, t)
	return nil
}

func (p *fakePeer) CreateDataChannel(label string) (DataChannel, error) {
	if p.channelErr != nil {
		return nil, p.channelErr
	}
	p.channel = &fakeChannel{label: label}
	return p.channel, nil
}

func (p *fakePeer) CreateOffer(context.Context) (string, error) {
	if p.offerErr != nil {
		return "", p.offerErr
	}
	return "v=0\r\no=- offer\r\n", nil
}

func (p *fakePeer) SetAnswer(sdp string) error {
	p.answer = sdp
	return p.setAnswerErr
}

func (p *fakePeer) Close() error {
	p.closed++
	return nil
}

type fakeConnector struct {
	peers []*fakePeer
	err   error
	next  func() *fakePeer
}

func (c *fakeConnector) NewPeerConnection() (PeerConnection, error) {
	if c.err != nil {
		return nil, c.err
	}
	p := &fakePeer{}
	if c.next != nil {
		p = c.next()
	}
	c.peers = append(c.peers, p)
	return p, nil
}

func (c *fakeConnector) last() *fakePeer {
	return c.peers[len(c.peers)-1]
}

type fakeMedia struct {
	tracks []*fakeTrack
	err    error
}

func (m *fakeMedia) Capture(context.Context) (LocalTrack, error) {
	if m.err != nil {
		return nil, m.err
	}
	t := &fakeTrack{id: "mic"}
	m.tracks = append(m.tracks, t)
	return t, nil
}

type fakeTokens struct {
	secret string
	err    error
}

func (f *fakeTokens) Token(context.Context) (domain.RealtimeSession, error) {
	if f.err != nil {
		return domain.RealtimeSession{}, f.err
	}
	return domain.RealtimeSession{ClientSecret: domain.ClientSecret{Value: f.secret}}, nil
}

type fakeSDP struct {
	offer  string
	key    string
	err    error
	during func()
}

func (f *fakeSDP) Exchange(_ context.Context, offer, key string) (string, error) {
	f.offer, f.key = offer, key
	if f.during != nil {
		f.during()
	}
	if f.err != nil {
		return "", f.err
	}
	return "v=0\r\no=- answer\r\n", nil
}

type fakeSink struct {
	attached []string
	detached int
}

func (s *fakeSink) Attach(t RemoteTrack) { s.attached = append(s.attached, t.ID()) }
func (s *fakeSink) Detach()              { s.detached++ }

type notice struct {
	level domain.NoticeLevel
	msg   string
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *fakeNotifier) Notify(level domain.NoticeLevel, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{level: level, msg: msg})
}

func (n *fakeNotifier) levels() []domain.NoticeLevel {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.NoticeLevel, 0, len(n.notices))
	for _, x := range n.notices {
		out = append(out, x.level)
	}
	return out
}

type aiTurn struct {
	msg    domain.Message
	source string
}
