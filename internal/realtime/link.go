package realtime

import (
	"errors"
	"fmt"
	"sync"
)

// link owns the platform resources of one activation attempt. Once torn
// down, anything handed to it is released immediately.
type link struct {
	mu     sync.Mutex
	closed bool
	pc     PeerConnection
	dc     DataChannel
	tracks []LocalTrack
}

func (l *link) setPeer(pc PeerConnection) bool {
	l.mu.Lock()
	if !l.closed {
		l.pc = pc
		l.mu.Unlock()
		return true
	}
	l.mu.Unlock()
	_ = pc.Close()
	return false
}

func (l *link) setChannel(dc DataChannel) bool {
	l.mu.Lock()
	if !l.closed {
		l.dc = dc
		l.mu.Unlock()
		return true
	}
	l.mu.Unlock()
	_ = dc.Close()
	return false
}

func (l *link) addTrack(t LocalTrack) bool {
	l.mu.Lock()
	if !l.closed {
		l.tracks = append(l.tracks, t)
		l.mu.Unlock()
		return true
	}
	l.mu.Unlock()
	_ = t.Stop()
	return false
}

func (l *link) channel() DataChannel {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	return l.dc
}

// teardown closes the data channel, stops every local track and closes the
// peer connection, in that order. Only the first call does any work.
func (l *link) teardown() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	pc, dc, tracks := l.pc, l.dc, l.tracks
	l.pc, l.dc, l.tracks = nil, nil, nil
	l.mu.Unlock()

	var errs []error
	if dc != nil {
		if err := dc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close data channel: %w", err))
		}
	}
	for _, t := range tracks {
		if err := t.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop track %s: %w", t.ID(), err))
		}
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close peer connection: %w", err))
		}
	}
	return errors.Join(errs...)
}
