package twitch

import (
	"encoding/json"
	"testing"

	"github.com/crierhq/crier/internal/event"
)

func TestMapResubCarriesMonthsAndMessage(t *testing.T) {
	data := json.RawMessage(`{
		"user_name": "Alice",
		"tier": "2000",
		"cumulative_months": 12,
		"message": {"text": "a whole year"}
	}`)
	ev, ok, err := MapNotification("channel.subscription.message", data)
	if err != nil || !ok {
		t.Fatalf("MapNotification() = %v, %v", ok, err)
	}
	if ev.Kind != event.KindTwitchSubResub || ev.Tier != "2" || ev.Months != 12 || ev.Message != "a whole year" {
		t.Fatalf("mapped event = %+v", ev)
	}
}

func TestMapGiftCountSelectsKind(t *testing.T) {
	single := json.RawMessage(`{"user_name":"Alice","tier":"1000","total":1,"is_anonymous":false}`)
	ev, ok, err := MapNotification("channel.subscription.gift", single)
	if err != nil || !ok {
		t.Fatalf("MapNotification() = %v, %v", ok, err)
	}
	if ev.Kind != event.KindTwitchGiftSingle || ev.Recipient != "" {
		t.Fatalf("single gift mapped to %+v", ev)
	}

	multi := json.RawMessage(`{"user_name":"Alice","tier":"1000","total":5,"is_anonymous":false}`)
	ev, ok, err = MapNotification("channel.subscription.gift", multi)
	if err != nil || !ok {
		t.Fatalf("MapNotification() = %v, %v", ok, err)
	}
	if ev.Kind != event.KindTwitchGiftMulti || ev.Count != 5 {
		t.Fatalf("multi gift mapped to %+v", ev)
	}
}

func TestMapChannelPointsRedemption(t *testing.T) {
	data := json.RawMessage(`{
		"user_name": "Alice",
		"user_input": "play my song",
		"reward": {"id": "r-1", "title": "Song Request", "cost": 500}
	}`)
	ev, ok, err := MapNotification("channel.channel_points_custom_reward_redemption.add", data)
	if err != nil || !ok {
		t.Fatalf("MapNotification() = %v, %v", ok, err)
	}
	if ev.Kind != event.KindTwitchChannelPoints {
		t.Fatalf("Kind = %s", ev.Kind)
	}
	if ev.RewardID != "r-1" || ev.RewardName != "Song Request" || ev.Cost != 500 || ev.UserInput != "play my song" {
		t.Fatalf("mapped event = %+v", ev)
	}
}

func TestMapSubscribeDefaultsTier(t *testing.T) {
	data := json.RawMessage(`{"user_name":"Alice"}`)
	ev, ok, err := MapNotification("channel.subscribe", data)
	if err != nil || !ok {
		t.Fatalf("MapNotification() = %v, %v", ok, err)
	}
	if ev.Kind != event.KindTwitchSubNew || ev.Tier != "1" {
		t.Fatalf("mapped event = %+v", ev)
	}
}

func TestMapUnknownTypeNotMapped(t *testing.T) {
	_, ok, err := MapNotification("channel.raid", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("MapNotification() error = %v", err)
	}
	if ok {
		t.Fatal("unknown type reported as mapped")
	}
}

func TestMapTier(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1000", "1"},
		{"2000", "2"},
		{"3000", "3"},
		{"", "1"},
		{"9000", "1"},
	}
	for _, tt := range tests {
		if got := mapTier(tt.in); got != tt.want {
			t.Errorf("mapTier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMapKeepsRawPayload(t *testing.T) {
	data := json.RawMessage(`{"user_name":"Alice","bits":200,"message":"","is_anonymous":false}`)
	ev, ok, err := MapNotification("channel.cheer", data)
	if err != nil || !ok {
		t.Fatalf("MapNotification() = %v, %v", ok, err)
	}
	if ev.Raw["user_name"] != "Alice" {
		t.Fatalf("Raw payload not preserved: %v", ev.Raw)
	}
}
