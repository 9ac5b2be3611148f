package pionrtc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"english-tutor/internal/realtime"
)

const frameDuration = 20 * time.Millisecond

// opusSilence is a single Opus frame that decodes to 20ms of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SilentMicrophone stands in for a capture device on hosts without one. The
// track it yields sends Opus silence, which keeps server VAD idle so the
// conversation is driven by text sends.
type SilentMicrophone struct{}

func (SilentMicrophone) Capture(ctx context.Context) (realtime.LocalTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio",
		"tutor-mic-"+uuid.NewString(),
	)
	if err != nil {
		return nil, fmt.Errorf("pionrtc: create local audio track: %w", err)
	}
	t := &SampleTrack{track: track, done: make(chan struct{})}
	go t.pump()
	return t, nil
}

// SampleTrack is a local Opus track fed by a ticker.
type SampleTrack struct {
	track *webrtc.TrackLocalStaticSample

	stopOnce sync.Once
	done     chan struct{}
}

func (t *SampleTrack) ID() string { return t.track.ID() }

func (t *SampleTrack) TrackLocal() webrtc.TrackLocal { return t.track }

func (t *SampleTrack) pump() {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			// Errors before the track is bound are expected.
			_ = t.track.WriteSample(media.Sample{Data: opusSilence, Duration: frameDuration})
		}
	}
}

func (t *SampleTrack) Stop() error {
	t.stopOnce.Do(func() { close(t.done) })
	return nil
}
