package realtime

import (
	"context"

	"english-tutor/internal/domain"
)

// The interfaces below are the platform capabilities a session needs. They
// are defined here, where they are consumed; internal/realtime/pionrtc
// provides the pion/webrtc implementation.

// PeerConnection is one WebRTC peer connection to the realtime service.
type PeerConnection interface {
	// OnTrack registers the handler for inbound media tracks.
	OnTrack(func(RemoteTrack))
	// AddTrack attaches a local outbound track.
	AddTrack(LocalTrack) error
	CreateDataChannel(label string) (DataChannel, error)
	// CreateOffer creates the local offer, applies it as the local
	// description and returns its SDP.
	CreateOffer(ctx context.Context) (string, error)
	// SetAnswer applies the remote answer SDP.
	SetAnswer(sdp string) error
	Close() error
}

// PeerConnector constructs peer connections.
type PeerConnector interface {
	NewPeerConnection() (PeerConnection, error)
}

// DataChannel carries JSON events in both directions. Handlers must be
// registered before the channel opens.
type DataChannel interface {
	OnOpen(func())
	OnClose(func())
	OnMessage(func([]byte))
	SendText(text string) error
	Close() error
}

// MediaCapture acquires the local microphone.
type MediaCapture interface {
	Capture(ctx context.Context) (LocalTrack, error)
}

// LocalTrack is an outbound media track owned by the session.
type LocalTrack interface {
	ID() string
	Stop() error
}

// RemoteTrack is an inbound media track from the realtime service.
type RemoteTrack interface {
	ID() string
	Kind() string
}

// AudioSink plays remote audio. Attach may be called once per inbound track;
// Detach releases whatever was attached.
type AudioSink interface {
	Attach(track RemoteTrack)
	Detach()
}

// TokenSource issues ephemeral credentials, normally through the relay.
type TokenSource interface {
	Token(ctx context.Context) (domain.RealtimeSession, error)
}

// SDPExchanger trades a local offer for the remote answer.
type SDPExchanger interface {
	Exchange(ctx context.Context, offerSDP, ephemeralKey string) (string, error)
}
