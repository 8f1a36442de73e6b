package twitch

import (
	"encoding/json"
	"fmt"

	"github.com/crierhq/crier/internal/event"
)

// MapNotification converts one EventSub notification payload into a
// normalized event. The second return is false for subscription types with no
// mapping.
func MapNotification(subType string, data json.RawMessage) (event.Event, bool, error) {
	raw := make(map[string]any)
	if err := json.Unmarshal(data, &raw); err != nil {
		return event.Event{}, false, fmt.Errorf("twitch: decode %s event: %w", subType, err)
	}

	switch subType {
	case "channel.cheer":
		var p struct {
			UserName    string `json:"user_name"`
			Bits        int    `json:"bits"`
			Message     string `json:"message"`
			IsAnonymous bool   `json:"is_anonymous"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return event.Event{}, false, fmt.Errorf("twitch: decode cheer: %w", err)
		}
		name := p.UserName
		if p.IsAnonymous || name == "" {
			name = "Anonymous"
		}
		return event.NewCheer(name, p.Bits, p.Message, p.IsAnonymous, raw), true, nil

	case "channel.subscribe":
		var p struct {
			UserName string `json:"user_name"`
			Tier     string `json:"tier"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return event.Event{}, false, fmt.Errorf("twitch: decode subscribe: %w", err)
		}
		return event.NewSub(p.UserName, mapTier(p.Tier), raw), true, nil

	case "channel.subscription.message":
		var p struct {
			UserName         string `json:"user_name"`
			Tier             string `json:"tier"`
			CumulativeMonths int    `json:"cumulative_months"`
			Message          struct {
				Text string `json:"text"`
			} `json:"message"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return event.Event{}, false, fmt.Errorf("twitch: decode resub: %w", err)
		}
		return event.NewResub(p.UserName, mapTier(p.Tier), p.CumulativeMonths, p.Message.Text, raw), true, nil

	case "channel.subscription.gift":
		var p struct {
			UserName    string `json:"user_name"`
			Tier        string `json:"tier"`
			Total       int    `json:"total"`
			IsAnonymous bool   `json:"is_anonymous"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return event.Event{}, false, fmt.Errorf("twitch: decode gift: %w", err)
		}
		name := p.UserName
		if p.IsAnonymous || name == "" {
			name = "Anonymous"
		}
		// EventSub gift notifications never name the recipient; the single
		// gift template falls back to a generic one.
		return event.NewGift(name, mapTier(p.Tier), p.Total, "", raw), true, nil

	case "channel.channel_points_custom_reward_redemption.add":
		var p struct {
			UserName  string `json:"user_name"`
			UserInput string `json:"user_input"`
			Reward    struct {
				ID    string `json:"id"`
				Title string `json:"title"`
				Cost  int    `json:"cost"`
			} `json:"reward"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return event.Event{}, false, fmt.Errorf("twitch: decode redemption: %w", err)
		}
		return event.NewChannelPoints(p.UserName, p.Reward.ID, p.Reward.Title, p.Reward.Cost, p.UserInput, raw), true, nil
	}

	return event.Event{}, false, nil
}

// mapTier converts EventSub tier codes ("1000", "2000", "3000") to the
// display tiers templates use.
func mapTier(tier string) string {
	switch tier {
	case "2000":
		return "2"
	case "3000":
		return "3"
	default:
		return "1"
	}
}
