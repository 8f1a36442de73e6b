package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/crierhq/crier/internal/event"
)

// Message is a synthesized alert waiting for (or in) dispatch. Immutable after
// construction.
type Message struct {
	ID          string
	Text        string
	DisplayText string
	Priority    int
	Event       event.Event

	// AudioID is the cache key of the WAV artifact. The cache owns the file
	// and may evict it before dispatch; holders must tolerate a miss.
	AudioID string

	CreatedAt time.Time
}

// NewMessage assembles a dispatchable message for ev. Priority comes from the
// event kind.
func NewMessage(ev event.Event, text, displayText, audioID string) Message {
	return Message{
		ID:          uuid.NewString(),
		Text:        text,
		DisplayText: displayText,
		Priority:    ev.Kind.Priority(),
		Event:       ev,
		AudioID:     audioID,
		CreatedAt:   time.Now().UTC(),
	}
}

// Display returns the overlay text, falling back to the spoken text.
func (m Message) Display() string {
	if m.DisplayText != "" {
		return m.DisplayText
	}
	return m.Text
}
