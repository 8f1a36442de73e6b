// Package processor turns normalized platform events into queued alert
// messages: gate, render, mask, sanitize, synthesize, enqueue.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/crierhq/crier/internal/event"
	"github.com/crierhq/crier/internal/observability"
	"github.com/crierhq/crier/internal/queue"
	"github.com/crierhq/crier/internal/tts"
)

// Settings hold the per-kind gates and templates. The zero value rejects
// everything; app wiring fills it from configuration.
type Settings struct {
	Enabled map[event.Kind]bool

	MinBits  int
	MinGifts int
	MinCents int

	// PointsRewardAllow restricts channel-point alerts to listed reward ids.
	// Empty allows every reward.
	PointsRewardAllow []string

	ReadBitsMessage      bool
	ReadResubMessage     bool
	ReadSuperchatMessage bool

	ProfanityFilter bool

	Templates map[string]string
}

// Sink receives finished messages for queueing and dispatch.
type Sink interface {
	Enqueue(msg queue.Message) bool
}

// Processor runs the alert pipeline. Rejections never propagate: a bad event
// is logged and dropped, and the next event proceeds untouched.
type Processor struct {
	settings Settings
	synth    *tts.Synthesizer
	sink     Sink
	metrics  *observability.Metrics
	log      *slog.Logger
}

// New wires a processor. The sink is typically the dispatcher.
func New(settings Settings, synth *tts.Synthesizer, sink Sink, metrics *observability.Metrics, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		settings: settings,
		synth:    synth,
		sink:     sink,
		metrics:  metrics,
		log:      log.With("component", "processor"),
	}
}

// Process runs ev through the pipeline and reports whether it produced a
// queued message.
func (p *Processor) Process(ctx context.Context, ev event.Event) bool {
	p.metrics.EventsReceived.WithLabelValues(string(ev.Platform), string(ev.Kind)).Inc()

	if !p.settings.Enabled[ev.Kind] {
		p.log.Debug("event kind disabled", "kind", ev.Kind)
		p.metrics.EventsRejected.WithLabelValues("disabled").Inc()
		return false
	}
	if !p.meetsThreshold(ev) {
		p.log.Debug("event below threshold", "kind", ev.Kind, "user", ev.Username)
		p.metrics.EventsRejected.WithLabelValues("threshold").Inc()
		return false
	}

	text, err := p.render(ev)
	if err != nil {
		p.log.Error("message formatting failed", "kind", ev.Kind, "event_id", ev.ID, "error", err)
		p.metrics.EventsRejected.WithLabelValues("template").Inc()
		return false
	}
	if p.settings.ProfanityFilter {
		text = maskProfanity(text)
	}
	text = sanitizeSpeech(text)

	audioID, err := p.synth.Synthesize(ctx, text)
	if err != nil {
		p.log.Error("tts generation failed", "kind", ev.Kind, "event_id", ev.ID, "error", err)
		p.metrics.EventsRejected.WithLabelValues("synthesis").Inc()
		return false
	}

	if !p.sink.Enqueue(queue.NewMessage(ev, text, text, audioID)) {
		return false
	}
	p.metrics.EventsQueued.Inc()
	return true
}

func (p *Processor) meetsThreshold(ev event.Event) bool {
	switch ev.Kind {
	case event.KindTwitchBits:
		return ev.Bits >= p.settings.MinBits
	case event.KindTwitchGiftSingle, event.KindTwitchGiftMulti:
		return ev.Count >= p.settings.MinGifts
	case event.KindTwitchChannelPoints:
		if len(p.settings.PointsRewardAllow) == 0 {
			return true
		}
		for _, id := range p.settings.PointsRewardAllow {
			if id == ev.RewardID {
				return true
			}
		}
		return false
	case event.KindYouTubeSuperchat, event.KindYouTubeSupersticker:
		return int(math.Round(ev.Amount*100)) >= p.settings.MinCents
	default:
		return true
	}
}

func (p *Processor) render(ev event.Event) (string, error) {
	key, vars := p.templateFor(ev)
	tpl, ok := p.settings.Templates[key]
	if !ok {
		return "", fmt.Errorf("no template configured for %s", key)
	}
	text, err := renderTemplate(tpl, vars)
	if err != nil {
		return "", fmt.Errorf("template %s: %w", key, err)
	}
	return text, nil
}

func (p *Processor) templateFor(ev event.Event) (string, map[string]string) {
	switch ev.Kind {
	case event.KindTwitchBits:
		vars := map[string]string{
			"username": ev.Username,
			"amount":   strconv.Itoa(ev.Bits),
		}
		if ev.Message != "" && p.settings.ReadBitsMessage {
			vars["message"] = ev.Message
			return "twitch_bits", vars
		}
		return "twitch_bits_no_message", vars

	case event.KindTwitchSubNew:
		return "twitch_sub_new", map[string]string{
			"username": ev.Username,
			"tier":     ev.Tier,
		}

	case event.KindTwitchSubResub:
		vars := map[string]string{
			"username": ev.Username,
			"tier":     ev.Tier,
			"months":   strconv.Itoa(ev.Months),
		}
		if ev.Message != "" && p.settings.ReadResubMessage {
			vars["message"] = ev.Message
			return "twitch_sub_resub", vars
		}
		return "twitch_sub_resub_no_message", vars

	case event.KindTwitchGiftSingle:
		recipient := ev.Recipient
		if recipient == "" {
			recipient = "someone"
		}
		return "twitch_gift_single", map[string]string{
			"username":  ev.Username,
			"tier":      ev.Tier,
			"recipient": recipient,
		}

	case event.KindTwitchGiftMulti:
		return "twitch_gift_multi", map[string]string{
			"username": ev.Username,
			"tier":     ev.Tier,
			"count":    strconv.Itoa(ev.Count),
		}

	case event.KindTwitchChannelPoints:
		vars := map[string]string{
			"username":    ev.Username,
			"reward_name": ev.RewardName,
			"cost":        strconv.Itoa(ev.Cost),
		}
		if ev.UserInput != "" {
			vars["user_input"] = ev.UserInput
			return "twitch_channel_points", vars
		}
		return "twitch_channel_points_no_input", vars

	case event.KindYouTubeSuperchat:
		vars := map[string]string{
			"username": ev.Username,
			"currency": ev.Currency,
			"amount":   fmt.Sprintf("%.2f", ev.Amount),
		}
		if ev.Message != "" && p.settings.ReadSuperchatMessage {
			vars["message"] = ev.Message
			return "youtube_superchat", vars
		}
		return "youtube_superchat_no_message", vars

	case event.KindYouTubeSupersticker:
		return "youtube_supersticker", map[string]string{
			"username": ev.Username,
			"currency": ev.Currency,
			"amount":   fmt.Sprintf("%.2f", ev.Amount),
		}

	case event.KindYouTubeMembershipNew:
		return "youtube_membership_new", map[string]string{
			"username": ev.Username,
			"level":    levelOrMember(ev.Level),
		}

	case event.KindYouTubeMembershipMilestone:
		return "youtube_membership_milestone", map[string]string{
			"username": ev.Username,
			"level":    levelOrMember(ev.Level),
			"months":   strconv.Itoa(ev.Months),
		}

	default:
		return string(ev.Kind), map[string]string{"username": ev.Username}
	}
}

func levelOrMember(level string) string {
	if level == "" {
		return "member"
	}
	return level
}
