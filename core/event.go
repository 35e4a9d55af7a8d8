package core

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a single log line flowing through the decode and
// match pipeline. Fields is populated by the decoder tree; DecoderPath
// records which decoders fired, root first.
type Event struct {
	EventID     string            `json:"event_id"`
	Timestamp   time.Time         `json:"timestamp"`
	RawLog      string            `json:"raw_log"`
	Fields      map[string]string `json:"fields"`
	DecoderPath []string          `json:"decoder_path,omitempty"`
}

// NewEvent creates an Event for a raw log line with a generated UUID
// and the supplied timestamp.
func NewEvent(raw string, ts time.Time) *Event {
	return &Event{
		EventID:   uuid.New().String(),
		Timestamp: ts.UTC(),
		RawLog:    raw,
		Fields:    make(map[string]string),
	}
}

// Decoded reports whether any decoder fired for this event.
func (e *Event) Decoded() bool {
	return len(e.DecoderPath) > 0
}

// Field returns the decoded value for name, or the empty string.
func (e *Event) Field(name string) string {
	return e.Fields[name]
}

// DecodedBy reports whether the named decoder appears in the decoder
// path for this event.
func (e *Event) DecodedBy(name string) bool {
	for _, d := range e.DecoderPath {
		if d == name {
			return true
		}
	}
	return false
}
