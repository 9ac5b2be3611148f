package domain

import (
	"encoding/json"
	"fmt"
)

// RealtimeEvent is an opaque envelope exchanged over the realtime data channel.
// Only Type is interpreted by the client; every other field is kept verbatim
// in Fields so the event can be logged and re-encoded unchanged.
type RealtimeEvent struct {
	Type      string
	EventID   string
	Timestamp string
	Fields    map[string]json.RawMessage
}

// NewRealtimeEvent builds an outbound event from a type tag and payload fields.
func NewRealtimeEvent(eventType string, fields map[string]any) (RealtimeEvent, error) {
	ev := RealtimeEvent{Type: eventType, Fields: make(map[string]json.RawMessage, len(fields))}
	for k, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return RealtimeEvent{}, fmt.Errorf("domain: encode realtime field %q: %w", k, err)
		}
		ev.Fields[k] = raw
	}
	return ev, nil
}

// Field decodes the named field into v. A missing field leaves v untouched
// and reports false.
func (e RealtimeEvent) Field(key string, v any) (bool, error) {
	raw, ok := e.Fields[key]
	if !ok || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("domain: decode realtime field %q: %w", key, err)
	}
	return true, nil
}

func (e *RealtimeEvent) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("domain: realtime event is not an object")
	}
	e.Fields = fields
	e.Type = stringField(fields, "type")
	e.EventID = stringField(fields, "event_id")
	e.Timestamp = stringField(fields, "timestamp")
	return nil
}

func (e RealtimeEvent) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(e.Fields)+3)
	for k, v := range e.Fields {
		out[k] = v
	}
	for k, v := range map[string]string{"type": e.Type, "event_id": e.EventID, "timestamp": e.Timestamp} {
		if v == "" {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[k] = raw
	}
	return json.Marshal(out)
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// RealtimeSession is the subset of the provider's session descriptor the
// client needs. The relay passes the full descriptor through unmodified.
type RealtimeSession struct {
	ID           string       `json:"id,omitempty"`
	Model        string       `json:"model,omitempty"`
	Voice        string       `json:"voice,omitempty"`
	ClientSecret ClientSecret `json:"client_secret"`
}

// ClientSecret is the ephemeral credential for direct client-to-provider auth.
type ClientSecret struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}
