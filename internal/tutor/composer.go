package tutor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"english-tutor/internal/domain"
)

const (
	speechLang = "en-US"
	speechRate = 0.8
)

// SpeechRecognizer runs one non-continuous recognition and returns the final
// transcript only.
type SpeechRecognizer interface {
	Recognize(ctx context.Context, lang string) (string, error)
}

// SpeechSynthesizer speaks text aloud.
type SpeechSynthesizer interface {
	Speak(ctx context.Context, text, lang string, rate float64) error
}

// Composer holds the pending input line and the dictation state.
type Composer struct {
	recognizer  SpeechRecognizer
	synthesizer SpeechSynthesizer
	notifier    domain.Notifier
	log         *slog.Logger

	mu        sync.Mutex
	input     string
	recording bool
	cancel    context.CancelFunc
}

func (c *Composer) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

func (c *Composer) SetInput(text string) {
	c.mu.Lock()
	c.input = text
	c.mu.Unlock()
}

// TakeInput returns the pending input and clears it.
func (c *Composer) TakeInput() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	text := c.input
	c.input = ""
	return text
}

func (c *Composer) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// Dictate runs one recognition and places the result in the input line. It
// never submits.
func (c *Composer) Dictate(ctx context.Context) (string, error) {
	if c.recognizer == nil {
		c.notifier.Notify(domain.NoticeError, "Speech recognition is not supported here.")
		return "", ErrSpeechUnsupported
	}
	c.mu.Lock()
	if c.recording {
		c.mu.Unlock()
		return "", ErrBusy
	}
	ctx, cancel := context.WithCancel(ctx)
	c.recording = true
	c.cancel = cancel
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		c.recording = false
		c.cancel = nil
		c.mu.Unlock()
	}()

	text, err := c.recognizer.Recognize(ctx, speechLang)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.log.Warn("speech recognition failed", "err", err)
		c.notifier.Notify(domain.NoticeError, "Speech recognition failed. Please try again.")
		return "", fmt.Errorf("tutor: recognize: %w", err)
	}
	c.SetInput(text)
	return text, nil
}

// StopDictation ends a running recognition early.
func (c *Composer) StopDictation() {
	c.mu.Lock()
	cancel := c.cancel
	c.recording = false
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Speak reads text aloud at learner-friendly speed.
func (c *Composer) Speak(ctx context.Context, text string) error {
	if c.synthesizer == nil {
		c.notifier.Notify(domain.NoticeError, "Speech playback is not supported here.")
		return ErrSpeechUnsupported
	}
	if err := c.synthesizer.Speak(ctx, text, speechLang, speechRate); err != nil {
		c.log.Warn("speech playback failed", "err", err)
		return fmt.Errorf("tutor: speak: %w", err)
	}
	return nil
}
