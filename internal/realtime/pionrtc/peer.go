// Package pionrtc implements the realtime capability interfaces on top of
// pion/webrtc, for clients that run outside a browser.
package pionrtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"english-tutor/internal/realtime"
)

// Connector creates pion peer connections with a fixed configuration.
type Connector struct {
	Config webrtc.Configuration
	Logger *slog.Logger
}

func (c Connector) NewPeerConnection() (realtime.PeerConnection, error) {
	pc, err := webrtc.NewPeerConnection(c.Config)
	if err != nil {
		return nil, fmt.Errorf("pionrtc: new peer connection: %w", err)
	}
	log := c.Logger
	if log == nil {
		log = slog.Default()
	}
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Debug("peer connection state", "state", state.String())
	})
	return &PeerConnection{pc: pc, log: log}, nil
}

// PeerConnection adapts *webrtc.PeerConnection.
type PeerConnection struct {
	pc  *webrtc.PeerConnection
	log *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

func (p *PeerConnection) OnTrack(fn func(realtime.RemoteTrack)) {
	p.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		fn(&RemoteTrack{track: track})
	})
}

// trackSource is implemented by local tracks created in this package.
type trackSource interface {
	TrackLocal() webrtc.TrackLocal
}

func (p *PeerConnection) AddTrack(t realtime.LocalTrack) error {
	src, ok := t.(trackSource)
	if !ok {
		return fmt.Errorf("pionrtc: unsupported local track %T", t)
	}
	sender, err := p.pc.AddTrack(src.TrackLocal())
	if err != nil {
		return fmt.Errorf("pionrtc: add track: %w", err)
	}
	// RTCP has to be read for interceptors to run.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (p *PeerConnection) CreateDataChannel(label string) (realtime.DataChannel, error) {
	dc, err := p.pc.CreateDataChannel(label, nil)
	if err != nil {
		return nil, fmt.Errorf("pionrtc: create data channel: %w", err)
	}
	return &DataChannel{dc: dc}, nil
}

// CreateOffer waits for ICE gathering so the returned SDP carries every
// candidate; the realtime endpoint does not accept trickled candidates.
func (p *PeerConnection) CreateOffer(ctx context.Context) (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("pionrtc: create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("pionrtc: set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	local := p.pc.LocalDescription()
	if local == nil {
		return "", errors.New("pionrtc: local description missing after gathering")
	}
	return local.SDP, nil
}

func (p *PeerConnection) SetAnswer(sdp string) error {
	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
		return fmt.Errorf("pionrtc: set remote description: %w", err)
	}
	return nil
}

func (p *PeerConnection) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.pc.Close()
	})
	return p.closeErr
}

// DataChannel adapts *webrtc.DataChannel.
type DataChannel struct {
	dc *webrtc.DataChannel
}

func (d *DataChannel) OnOpen(fn func())  { d.dc.OnOpen(fn) }
func (d *DataChannel) OnClose(fn func()) { d.dc.OnClose(fn) }

func (d *DataChannel) OnMessage(fn func([]byte)) {
	d.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		fn(msg.Data)
	})
}

func (d *DataChannel) SendText(text string) error {
	if d.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return fmt.Errorf("pionrtc: data channel is %s", d.dc.ReadyState())
	}
	return d.dc.SendText(text)
}

func (d *DataChannel) Close() error {
	return d.dc.Close()
}

// RemoteTrack adapts *webrtc.TrackRemote.
type RemoteTrack struct {
	track *webrtc.TrackRemote
}

func (r *RemoteTrack) ID() string   { return r.track.ID() }
func (r *RemoteTrack) Kind() string { return r.track.Kind().String() }

// DrainSink reads inbound audio so the peer connection keeps flowing and,
// when Out is set, copies the Opus payloads there.
type DrainSink struct {
	Out    io.Writer
	Logger *slog.Logger

	mu      sync.Mutex
	stopped bool
	gen     int
}

func (s *DrainSink) Attach(t realtime.RemoteTrack) {
	rt, ok := t.(*RemoteTrack)
	if !ok {
		return
	}
	s.mu.Lock()
	s.stopped = false
	gen := s.gen
	s.mu.Unlock()

	go s.drain(rt.track, gen)
}

func (s *DrainSink) drain(track *webrtc.TrackRemote, gen int) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) && s.Logger != nil {
				s.Logger.Debug("remote track ended", "track_id", track.ID(), "err", err)
			}
			return
		}
		s.mu.Lock()
		live := !s.stopped && s.gen == gen
		out := s.Out
		s.mu.Unlock()
		if !live {
			return
		}
		if out != nil {
			_, _ = out.Write(pkt.Payload)
		}
	}
}

// Detach stops forwarding from every attached track. Reading ends when the
// peer connection closes.
func (s *DrainSink) Detach() {
	s.mu.Lock()
	s.stopped = true
	s.gen++
	s.mu.Unlock()
}
