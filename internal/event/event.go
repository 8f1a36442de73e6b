package event

import (
	"time"

	"github.com/google/uuid"
)

// Platform identifies the streaming service an event originated from.
type Platform string

const (
	PlatformTwitch  Platform = "twitch"
	PlatformYouTube Platform = "youtube"
)

// Kind discriminates the event union.
type Kind string

const (
	KindTwitchBits                 Kind = "twitch_bits"
	KindTwitchSubNew               Kind = "twitch_sub_new"
	KindTwitchSubResub             Kind = "twitch_sub_resub"
	KindTwitchGiftSingle           Kind = "twitch_gift_single"
	KindTwitchGiftMulti            Kind = "twitch_gift_multi"
	KindTwitchChannelPoints        Kind = "twitch_channel_points"
	KindYouTubeSuperchat           Kind = "youtube_superchat"
	KindYouTubeSupersticker        Kind = "youtube_supersticker"
	KindYouTubeMembershipNew       Kind = "youtube_membership_new"
	KindYouTubeMembershipMilestone Kind = "youtube_membership_milestone"
)

// Kinds lists every event kind, in the order used for config enumeration.
func Kinds() []Kind {
	return []Kind{
		KindTwitchBits,
		KindTwitchSubNew,
		KindTwitchSubResub,
		KindTwitchGiftSingle,
		KindTwitchGiftMulti,
		KindTwitchChannelPoints,
		KindYouTubeSuperchat,
		KindYouTubeSupersticker,
		KindYouTubeMembershipNew,
		KindYouTubeMembershipMilestone,
	}
}

// Platform reports which service produces this kind of event.
func (k Kind) Platform() Platform {
	switch k {
	case KindYouTubeSuperchat, KindYouTubeSupersticker, KindYouTubeMembershipNew, KindYouTubeMembershipMilestone:
		return PlatformYouTube
	default:
		return PlatformTwitch
	}
}

// Priority returns the queue priority for the kind; higher is dispatched earlier.
func (k Kind) Priority() int {
	switch k {
	case KindTwitchSubNew, KindTwitchSubResub, KindYouTubeMembershipNew, KindYouTubeMembershipMilestone:
		return 3
	case KindTwitchBits, KindTwitchGiftSingle, KindTwitchGiftMulti, KindYouTubeSuperchat, KindYouTubeSupersticker:
		return 2
	case KindTwitchChannelPoints:
		return 1
	default:
		return 0
	}
}

// Event is a normalized monetization event. The Kind tag selects which variant
// fields are meaningful; everything else stays at its zero value. Events are
// built through the New* constructors and never mutated afterwards.
type Event struct {
	ID        string
	Platform  Platform
	Kind      Kind
	Username  string
	CreatedAt time.Time

	// Raw keeps the provider payload for diagnostics only.
	Raw map[string]any

	// twitch_bits
	Bits      int
	Anonymous bool

	// twitch_sub_*, twitch_gift_*
	Tier      string
	Months    int
	Recipient string
	Count     int

	// twitch_channel_points
	RewardID   string
	RewardName string
	Cost       int
	UserInput  string

	// youtube_superchat, youtube_supersticker
	Amount    float64
	Currency  string
	StickerID string

	// youtube_membership_*
	Level string

	// chat message attached to bits, resubs and superchats
	Message string
}

func base(kind Kind, username string, raw map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Platform:  kind.Platform(),
		Kind:      kind,
		Username:  username,
		CreatedAt: time.Now().UTC(),
		Raw:       raw,
	}
}

// NewCheer builds a twitch_bits event.
func NewCheer(username string, bits int, message string, anonymous bool, raw map[string]any) Event {
	e := base(KindTwitchBits, username, raw)
	e.Bits = bits
	e.Message = message
	e.Anonymous = anonymous
	return e
}

// NewSub builds a twitch_sub_new event.
func NewSub(username, tier string, raw map[string]any) Event {
	e := base(KindTwitchSubNew, username, raw)
	e.Tier = tier
	return e
}

// NewResub builds a twitch_sub_resub event. Months below 1 are clamped to 1.
func NewResub(username, tier string, months int, message string, raw map[string]any) Event {
	e := base(KindTwitchSubResub, username, raw)
	e.Tier = tier
	e.Months = clampMin(months, 1)
	e.Message = message
	return e
}

// NewGift builds a gift-sub event. A count of one produces twitch_gift_single
// (recipient kept); anything larger produces twitch_gift_multi.
func NewGift(username, tier string, count int, recipient string, raw map[string]any) Event {
	count = clampMin(count, 1)
	if count == 1 {
		e := base(KindTwitchGiftSingle, username, raw)
		e.Tier = tier
		e.Count = 1
		e.Recipient = recipient
		return e
	}
	e := base(KindTwitchGiftMulti, username, raw)
	e.Tier = tier
	e.Count = count
	return e
}

// NewChannelPoints builds a twitch_channel_points event.
func NewChannelPoints(username, rewardID, rewardName string, cost int, userInput string, raw map[string]any) Event {
	e := base(KindTwitchChannelPoints, username, raw)
	e.RewardID = rewardID
	e.RewardName = rewardName
	e.Cost = cost
	e.UserInput = userInput
	return e
}

// NewSuperchat builds a youtube_superchat event. Amount is in major currency
// units (adapters convert micros).
func NewSuperchat(username string, amount float64, currency, message string, raw map[string]any) Event {
	e := base(KindYouTubeSuperchat, username, raw)
	e.Amount = amount
	e.Currency = currency
	e.Message = message
	return e
}

// NewSupersticker builds a youtube_supersticker event.
func NewSupersticker(username string, amount float64, currency, stickerID string, raw map[string]any) Event {
	e := base(KindYouTubeSupersticker, username, raw)
	e.Amount = amount
	e.Currency = currency
	e.StickerID = stickerID
	return e
}

// NewMembership builds a youtube_membership_new event.
func NewMembership(username, level string, raw map[string]any) Event {
	e := base(KindYouTubeMembershipNew, username, raw)
	e.Level = level
	return e
}

// NewMembershipMilestone builds a youtube_membership_milestone event.
// Months below 1 are clamped to 1.
func NewMembershipMilestone(username, level string, months int, raw map[string]any) Event {
	e := base(KindYouTubeMembershipMilestone, username, raw)
	e.Level = level
	e.Months = clampMin(months, 1)
	return e
}

func clampMin(v, min int) int {
	if v < min {
		return min
	}
	return v
}
