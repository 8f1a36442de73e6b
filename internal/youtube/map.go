package youtube

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/crierhq/crier/internal/event"
)

// chatPage is one liveChatMessages response.
type chatPage struct {
	NextPageToken         string            `json:"nextPageToken"`
	PollingIntervalMillis int64             `json:"pollingIntervalMillis"`
	Items                 []json.RawMessage `json:"items"`
}

// micros tolerates both the string and numeric encodings the API uses for
// amountMicros.
type micros int64

func (m *micros) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*m = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("youtube: parse amountMicros %q: %w", s, err)
	}
	*m = micros(v)
	return nil
}

func (m micros) major() float64 {
	return float64(m) / 1e6
}

type chatMessage struct {
	Snippet struct {
		Type             string `json:"type"`
		SuperChatDetails struct {
			AmountMicros        micros `json:"amountMicros"`
			AmountDisplayString string `json:"amountDisplayString"`
			UserComment         string `json:"userComment"`
		} `json:"superChatDetails"`
		SuperStickerDetails struct {
			AmountMicros         micros `json:"amountMicros"`
			AmountDisplayString  string `json:"amountDisplayString"`
			SuperStickerMetadata struct {
				StickerID string `json:"stickerId"`
			} `json:"superStickerMetadata"`
		} `json:"superStickerDetails"`
		NewSponsorDetails struct {
			MemberLevelName string `json:"memberLevelName"`
		} `json:"newSponsorDetails"`
		MemberMilestoneChatDetails struct {
			MemberLevelName string `json:"memberLevelName"`
			MemberMonth     int    `json:"memberMonth"`
		} `json:"memberMilestoneChatDetails"`
	} `json:"snippet"`
	AuthorDetails struct {
		DisplayName string `json:"displayName"`
	} `json:"authorDetails"`
}

// MapChatMessage converts one liveChatMessages item into a normalized event.
// The second return is false for ordinary chat and unsupported types.
func MapChatMessage(data json.RawMessage) (event.Event, bool, error) {
	raw := make(map[string]any)
	if err := json.Unmarshal(data, &raw); err != nil {
		return event.Event{}, false, fmt.Errorf("youtube: decode chat item: %w", err)
	}
	var item chatMessage
	if err := json.Unmarshal(data, &item); err != nil {
		return event.Event{}, false, fmt.Errorf("youtube: decode chat item: %w", err)
	}

	username := item.AuthorDetails.DisplayName
	if username == "" {
		username = "Someone"
	}

	switch item.Snippet.Type {
	case "superChatEvent":
		d := item.Snippet.SuperChatDetails
		return event.NewSuperchat(username, d.AmountMicros.major(), currencySymbol(d.AmountDisplayString), d.UserComment, raw), true, nil

	case "superStickerEvent":
		d := item.Snippet.SuperStickerDetails
		return event.NewSupersticker(username, d.AmountMicros.major(), currencySymbol(d.AmountDisplayString), d.SuperStickerMetadata.StickerID, raw), true, nil

	case "newSponsorEvent":
		return event.NewMembership(username, item.Snippet.NewSponsorDetails.MemberLevelName, raw), true, nil

	case "memberMilestoneChatEvent":
		d := item.Snippet.MemberMilestoneChatDetails
		return event.NewMembershipMilestone(username, d.MemberLevelName, d.MemberMonth, raw), true, nil
	}

	return event.Event{}, false, nil
}

// currencySymbol extracts the leading currency marker from a display string
// like "$5.00" or "A$7.00", capped at three runes. Falls back to "$".
func currencySymbol(display string) string {
	out := make([]rune, 0, 3)
	for _, r := range display {
		if unicode.IsDigit(r) || unicode.IsSpace(r) {
			break
		}
		out = append(out, r)
		if len(out) == 3 {
			break
		}
	}
	if len(out) == 0 {
		return "$"
	}
	return string(out)
}
