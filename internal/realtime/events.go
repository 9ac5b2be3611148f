package realtime

import (
	"strings"

	"github.com/google/uuid"

	"english-tutor/internal/domain"
)

// DataChannelLabel is the label the realtime service expects.
const DataChannelLabel = "oai-events"

// Event type tags.
const (
	EventSessionUpdate           = "session.update"
	EventConversationItemCreate  = "conversation.item.create"
	EventResponseCreate          = "response.create"
	EventResponseDone            = "response.done"
	EventResponseAudioTranscript = "response.audio_transcript.done"
	EventInputTranscriptionDone  = "conversation.item.input_audio_transcription.completed"
	EventError                   = "error"
)

// DefaultInstructions is the spoken tutor persona.
const DefaultInstructions = "You are a helpful English conversation tutor. Speak naturally and help the user practice English. Always respond in English."

// TurnDetection configures server-side voice activity detection.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
}

type InputTranscription struct {
	Model string `json:"model"`
}

// SessionConfig is the body of the session.update event sent when the data
// channel opens.
type SessionConfig struct {
	Modalities              []string           `json:"modalities"`
	Instructions            string             `json:"instructions"`
	Voice                   string             `json:"voice"`
	InputAudioFormat        string             `json:"input_audio_format"`
	OutputAudioFormat       string             `json:"output_audio_format"`
	InputAudioTranscription InputTranscription `json:"input_audio_transcription"`
	TurnDetection           TurnDetection      `json:"turn_detection"`
}

// DefaultSessionConfig returns the tutor configuration for the given voice.
func DefaultSessionConfig(voice string) SessionConfig {
	if strings.TrimSpace(voice) == "" {
		voice = "verse"
	}
	return SessionConfig{
		Modalities:              []string{"text", "audio"},
		Instructions:            DefaultInstructions,
		Voice:                   voice,
		InputAudioFormat:        "pcm16",
		OutputAudioFormat:       "pcm16",
		InputAudioTranscription: InputTranscription{Model: "whisper-1"},
		TurnDetection: TurnDetection{
			Type:              "server_vad",
			Threshold:         0.5,
			PrefixPaddingMS:   300,
			SilenceDurationMS: 500,
		},
	}
}

func sessionUpdateEvent(cfg SessionConfig) (domain.RealtimeEvent, error) {
	return domain.NewRealtimeEvent(EventSessionUpdate, map[string]any{"session": cfg})
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type conversationItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

func userTextEvents(text string) ([]domain.RealtimeEvent, error) {
	create, err := domain.NewRealtimeEvent(EventConversationItemCreate, map[string]any{
		"item": conversationItem{
			Type:    "message",
			Role:    domain.RoleUser,
			Content: []contentPart{{Type: "input_text", Text: text}},
		},
	})
	if err != nil {
		return nil, err
	}
	respond, err := domain.NewRealtimeEvent(EventResponseCreate, nil)
	if err != nil {
		return nil, err
	}
	return []domain.RealtimeEvent{create, respond}, nil
}

func withEventID(ev domain.RealtimeEvent) domain.RealtimeEvent {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	return ev
}

// transcript returns the trimmed-nonempty transcript field of ev.
func transcript(ev domain.RealtimeEvent) (string, bool) {
	var text string
	if ok, err := ev.Field("transcript", &text); !ok || err != nil {
		return "", false
	}
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	return text, true
}

type responseOutput struct {
	Type    string        `json:"type"`
	Content []contentPart `json:"content"`
}

type responseBody struct {
	Output []responseOutput `json:"output"`
}

// responseTexts extracts one text per message output of a response.done
// event, joining the text parts of each output.
func responseTexts(ev domain.RealtimeEvent) []string {
	var body responseBody
	if ok, err := ev.Field("response", &body); !ok || err != nil {
		return nil
	}
	var out []string
	for _, o := range body.Output {
		if o.Type != "message" {
			continue
		}
		var b strings.Builder
		for _, c := range o.Content {
			if c.Type == "text" {
				b.WriteString(c.Text)
			}
		}
		if strings.TrimSpace(b.String()) != "" {
			out = append(out, b.String())
		}
	}
	return out
}
