package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/crierhq/crier/internal/event"
	"github.com/crierhq/crier/internal/queue"
)

type overlaySettings struct {
	FontFamily   string `json:"font_family"`
	FontSize     int    `json:"font_size"`
	TextColor    string `json:"text_color"`
	Animation    string `json:"animation"`
	ShowText     bool   `json:"show_text"`
	TextPosition string `json:"text_position"`
}

type settingsResponse struct {
	TwitchEnabled  bool            `json:"twitch_enabled"`
	YouTubeEnabled bool            `json:"youtube_enabled"`
	TTSVoice       string          `json:"tts_voice"`
	Overlay        overlaySettings `json:"overlay"`
}

// handleSettings exposes the non-sensitive configuration the overlay page
// styles itself with.
func (s *Server) handleSettings(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, settingsResponse{
		TwitchEnabled:  s.twitch != nil,
		YouTubeEnabled: s.youtube != nil,
		TTSVoice:       s.cfg.TTS.Voice,
		Overlay: overlaySettings{
			FontFamily:   s.cfg.Overlay.FontFamily,
			FontSize:     s.cfg.Overlay.FontSize,
			TextColor:    s.cfg.Overlay.TextColor,
			Animation:    s.cfg.Overlay.Animation,
			ShowText:     s.cfg.Overlay.ShowText,
			TextPosition: s.cfg.Overlay.TextPosition,
		},
	})
}

func (s *Server) handleQueue(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.dispatcher.Status())
}

func (s *Server) handleQueueClear(w http.ResponseWriter, _ *http.Request) {
	dropped := s.dispatcher.Clear()
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "dropped": dropped})
}

func (s *Server) handleQueueSkip(w http.ResponseWriter, _ *http.Request) {
	s.dispatcher.Skip()
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// testEventRequest covers every kind; unused fields are ignored. Zero values
// fall back to defaults so `{"type": "twitch_bits"}` alone produces a
// plausible alert.
type testEventRequest struct {
	Type       string  `json:"type"`
	Username   string  `json:"username"`
	Message    string  `json:"message"`
	Bits       int     `json:"bits"`
	Tier       string  `json:"tier"`
	Months     int     `json:"months"`
	Count      int     `json:"count"`
	Recipient  string  `json:"recipient"`
	RewardName string  `json:"reward_name"`
	Cost       int     `json:"cost"`
	UserInput  string  `json:"user_input"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	StickerID  string  `json:"sticker_id"`
	Level      string  `json:"level"`
}

// handleTestEvent injects a synthetic event into the pipeline. Debug only:
// it speaks through the streamer's TTS and is gated accordingly.
func (s *Server) handleTestEvent(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Server.Debug {
		respondError(w, http.StatusForbidden, "debug_disabled", "test events only available in debug mode")
		return
	}

	var req testEventRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Type == "" {
		req.Type = string(event.KindTwitchBits)
	}

	ev, err := buildTestEvent(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "unknown_event_type", err.Error())
		return
	}

	s.log.Info("injecting test event", "kind", ev.Kind)
	status := "ok"
	if !s.processor.Process(r.Context(), ev) {
		status = "failed"
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"event_type": req.Type,
	})
}

func buildTestEvent(req testEventRequest) (event.Event, error) {
	username := stringOr(req.Username, "TestUser")
	tier := stringOr(req.Tier, "1")

	switch event.Kind(req.Type) {
	case event.KindTwitchBits:
		return event.NewCheer(username, intOr(req.Bits, 100), stringOr(req.Message, "Test cheer message!"), false, nil), nil
	case event.KindTwitchSubNew:
		return event.NewSub(username, tier, nil), nil
	case event.KindTwitchSubResub:
		return event.NewResub(username, tier, intOr(req.Months, 3), req.Message, nil), nil
	case event.KindTwitchGiftSingle:
		return event.NewGift(username, tier, intOr(req.Count, 1), stringOr(req.Recipient, "LuckyViewer"), nil), nil
	case event.KindTwitchGiftMulti:
		// The constructor picks single or multi from the count.
		return event.NewGift(username, tier, intOr(req.Count, 5), "", nil), nil
	case event.KindTwitchChannelPoints:
		return event.NewChannelPoints(username, "test-reward", stringOr(req.RewardName, "Test Reward"), intOr(req.Cost, 500), req.UserInput, nil), nil
	case event.KindYouTubeSuperchat:
		return event.NewSuperchat(username, floatOr(req.Amount, 5.00), stringOr(req.Currency, "$"), stringOr(req.Message, "Test super chat!"), nil), nil
	case event.KindYouTubeSupersticker:
		return event.NewSupersticker(username, floatOr(req.Amount, 2.00), stringOr(req.Currency, "$"), stringOr(req.StickerID, "test-sticker"), nil), nil
	case event.KindYouTubeMembershipNew:
		return event.NewMembership(username, stringOr(req.Level, "Member"), nil), nil
	case event.KindYouTubeMembershipMilestone:
		return event.NewMembershipMilestone(username, stringOr(req.Level, "Member"), intOr(req.Months, 6), nil), nil
	default:
		return event.Event{}, errors.New("unknown event type " + req.Type)
	}
}

func stringOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func intOr(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

func floatOr(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}

type testTTSRequest struct {
	Text string `json:"text"`
}

// handleTestTTS synthesizes arbitrary text and queues it at low priority,
// bypassing the event pipeline. Useful for checking voice and volume.
func (s *Server) handleTestTTS(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Server.Debug {
		respondError(w, http.StatusForbidden, "debug_disabled", "tts test only available in debug mode")
		return
	}

	var req testTTSRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	text := stringOr(req.Text, "This is a test message from crier.")

	audioID, err := s.synth.Synthesize(r.Context(), text)
	if err != nil {
		s.log.Error("tts test failed", "error", err)
		respondError(w, http.StatusInternalServerError, "synthesis_failed", err.Error())
		return
	}

	msg := queue.Message{
		ID:          uuid.NewString(),
		Text:        text,
		DisplayText: text,
		Priority:    1,
		AudioID:     audioID,
		CreatedAt:   time.Now().UTC(),
	}
	if !s.dispatcher.Enqueue(msg) {
		respondError(w, http.StatusConflict, "rejected", "queue rejected the message")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"message_id": msg.ID,
	})
}
