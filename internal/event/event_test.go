package event

import (
	"testing"
	"time"
)

func TestGiftKindFollowsCount(t *testing.T) {
	cases := []struct {
		name  string
		count int
		want  Kind
	}{
		{"single", 1, KindTwitchGiftSingle},
		{"multi", 2, KindTwitchGiftMulti},
		{"large", 50, KindTwitchGiftMulti},
		{"clamped to single", 0, KindTwitchGiftSingle},
	}
	for _, tc := range cases {
		e := NewGift("Gifter", "1", tc.count, "Lucky", nil)
		if e.Kind != tc.want {
			t.Fatalf("NewGift(count=%d).Kind = %s, want %s (%s)", tc.count, e.Kind, tc.want, tc.name)
		}
	}

	single := NewGift("Gifter", "2", 1, "Lucky", nil)
	if single.Recipient != "Lucky" {
		t.Fatalf("single gift Recipient = %q, want %q", single.Recipient, "Lucky")
	}
	multi := NewGift("Gifter", "2", 5, "Lucky", nil)
	if multi.Count != 5 {
		t.Fatalf("multi gift Count = %d, want 5", multi.Count)
	}
}

func TestResubClampsMonths(t *testing.T) {
	e := NewResub("Sub", "1", 0, "", nil)
	if e.Kind != KindTwitchSubResub {
		t.Fatalf("NewResub().Kind = %s, want %s", e.Kind, KindTwitchSubResub)
	}
	if e.Months != 1 {
		t.Fatalf("NewResub(months=0).Months = %d, want 1", e.Months)
	}
}

func TestMembershipMilestoneKind(t *testing.T) {
	plain := NewMembership("Member", "Gold", nil)
	if plain.Kind != KindYouTubeMembershipNew {
		t.Fatalf("NewMembership().Kind = %s, want %s", plain.Kind, KindYouTubeMembershipNew)
	}
	milestone := NewMembershipMilestone("Member", "Gold", 6, nil)
	if milestone.Kind != KindYouTubeMembershipMilestone {
		t.Fatalf("NewMembershipMilestone().Kind = %s, want %s", milestone.Kind, KindYouTubeMembershipMilestone)
	}
	if milestone.Months != 6 {
		t.Fatalf("milestone Months = %d, want 6", milestone.Months)
	}
}

func TestConstructorsPopulateIdentity(t *testing.T) {
	before := time.Now().UTC()
	e := NewCheer("Alice", 100, "gg", false, map[string]any{"bits": 100})
	after := time.Now().UTC()

	if e.ID == "" {
		t.Fatalf("ID empty, want UUID")
	}
	if e.Platform != PlatformTwitch {
		t.Fatalf("Platform = %s, want %s", e.Platform, PlatformTwitch)
	}
	if e.CreatedAt.Before(before) || e.CreatedAt.After(after) {
		t.Fatalf("CreatedAt = %v, want between %v and %v", e.CreatedAt, before, after)
	}
	if e.Raw["bits"] != 100 {
		t.Fatalf("Raw not preserved: %v", e.Raw)
	}

	other := NewCheer("Alice", 100, "gg", false, nil)
	if other.ID == e.ID {
		t.Fatalf("two events share ID %s", e.ID)
	}
}

func TestKindPlatform(t *testing.T) {
	for _, k := range Kinds() {
		want := PlatformTwitch
		switch k {
		case KindYouTubeSuperchat, KindYouTubeSupersticker, KindYouTubeMembershipNew, KindYouTubeMembershipMilestone:
			want = PlatformYouTube
		}
		if got := k.Platform(); got != want {
			t.Fatalf("%s.Platform() = %s, want %s", k, got, want)
		}
	}
}

func TestKindPriorityOrdersTiers(t *testing.T) {
	if KindTwitchSubNew.Priority() <= KindTwitchBits.Priority() {
		t.Fatalf("subs (%d) should outrank bits (%d)", KindTwitchSubNew.Priority(), KindTwitchBits.Priority())
	}
	if KindTwitchBits.Priority() <= KindTwitchChannelPoints.Priority() {
		t.Fatalf("bits (%d) should outrank channel points (%d)", KindTwitchBits.Priority(), KindTwitchChannelPoints.Priority())
	}
	for _, k := range Kinds() {
		if k.Priority() < 1 {
			t.Fatalf("%s.Priority() = %d, want >= 1", k, k.Priority())
		}
	}
}
