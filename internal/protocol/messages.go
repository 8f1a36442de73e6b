package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	// Server to overlay.
	TypeConnected   MessageType = "connected"
	TypeTTSReady    MessageType = "tts_ready"
	TypeSkip        MessageType = "skip"
	TypeQueueUpdate MessageType = "queue_update"

	// Overlay to server.
	TypePlayComplete MessageType = "play_complete"
	TypeClientError  MessageType = "error"
	TypeClientReady  MessageType = "ready"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// Connected greets a client right after the websocket upgrade.
type Connected struct {
	Type   MessageType `json:"type"`
	Status string      `json:"status"`
}

func NewConnected() Connected {
	return Connected{Type: TypeConnected, Status: "ok"}
}

// TTSReady tells the overlay to fetch and play one audio artifact.
type TTSReady struct {
	Type      MessageType `json:"type"`
	ID        string      `json:"id"`
	AudioID   string      `json:"audio_id"`
	Text      string      `json:"text"`
	EventType string      `json:"event_type"`
	Platform  string      `json:"platform"`
}

// Skip tells the overlay to abandon whatever is currently playing.
type Skip struct {
	Type MessageType `json:"type"`
}

func NewSkip() Skip {
	return Skip{Type: TypeSkip}
}

// QueueEntry is the overlay-facing snapshot of one queued or playing message.
type QueueEntry struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Priority  int       `json:"priority"`
	EventType string    `json:"event_type"`
	Platform  string    `json:"platform"`
	CreatedAt time.Time `json:"created_at"`
}

// RateLimits reports remaining per-platform admissions in the current window.
type RateLimits struct {
	Twitch  int `json:"twitch"`
	YouTube int `json:"youtube"`
}

// QueueUpdate is broadcast whenever queue contents or the playing message
// change. Current is nil when nothing is playing.
type QueueUpdate struct {
	Type       MessageType `json:"type"`
	Size       int         `json:"size"`
	MaxSize    int         `json:"max_size"`
	Current    *QueueEntry `json:"current"`
	RateLimits RateLimits  `json:"rate_limits"`
}

// PlayComplete acknowledges that the overlay finished playing a message.
type PlayComplete struct {
	Type MessageType `json:"type"`
	ID   string      `json:"id"`
}

// ClientError reports a playback failure. The dispatcher treats it as a
// completion so the queue never stalls behind a broken artifact.
type ClientError struct {
	Type  MessageType `json:"type"`
	ID    string      `json:"id"`
	Error string      `json:"error"`
}

// ClientReady signals that the overlay page finished loading and can accept
// audio.
type ClientReady struct {
	Type MessageType `json:"type"`
}

// ParseClientMessage decodes one inbound overlay message.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypePlayComplete:
		var msg PlayComplete
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.ID == "" {
			return nil, errors.New("invalid play_complete")
		}
		return msg, nil
	case TypeClientError:
		var msg ClientError
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeClientReady:
		return ClientReady{Type: TypeClientReady}, nil
	default:
		return nil, ErrUnsupportedType
	}
}
