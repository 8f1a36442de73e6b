// Package twitch ingests Twitch EventSub webhook deliveries and keeps the
// Helix subscriptions that produce them in line with configuration.
package twitch

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/crierhq/crier/internal/event"
	"github.com/crierhq/crier/internal/observability"
	"github.com/crierhq/crier/internal/tokens"
)

// EventSub message types carried in the Twitch-Eventsub-Message-Type header.
const (
	MessageTypeVerification = "webhook_callback_verification"
	MessageTypeNotification = "notification"
	MessageTypeRevocation   = "revocation"
)

// subscriptionTypes are the EventSub topics the service subscribes to.
var subscriptionTypes = []string{
	"channel.cheer",
	"channel.subscribe",
	"channel.subscription.message",
	"channel.subscription.gift",
	"channel.channel_points_custom_reward_redemption.add",
}

// Config carries the Twitch application credentials and webhook endpoint.
type Config struct {
	ClientID      string
	ClientSecret  string
	BroadcasterID string
	WebhookSecret string
	CallbackURL   string
}

// Sink receives normalized events. The alert processor satisfies it.
type Sink interface {
	Process(ctx context.Context, ev event.Event) bool
}

// Service verifies and maps EventSub deliveries and manages the Helix
// subscriptions behind them.
type Service struct {
	cfg     Config
	tokens  *tokens.Manager
	sink    Sink
	metrics *observability.Metrics
	log     *slog.Logger

	client   *http.Client
	authBase string
	apiBase  string

	mu   sync.Mutex
	subs map[string]string
}

func New(cfg Config, tokens *tokens.Manager, sink Sink, metrics *observability.Metrics, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		cfg:      cfg,
		tokens:   tokens,
		sink:     sink,
		metrics:  metrics,
		log:      log.With("component", "twitch"),
		client:   &http.Client{Timeout: 15 * time.Second},
		authBase: "https://id.twitch.tv/oauth2",
		apiBase:  "https://api.twitch.tv/helix",
		subs:     make(map[string]string),
	}
}

// VerifySignature checks the EventSub HMAC over message id, timestamp and the
// raw request body. An empty configured secret disables verification.
func (s *Service) VerifySignature(messageID, timestamp string, body []byte, signature string) bool {
	if s.cfg.WebhookSecret == "" {
		s.log.Warn("webhook secret not configured, skipping signature verification")
		return true
	}
	mac := hmac.New(sha256.New, []byte(s.cfg.WebhookSecret))
	mac.Write([]byte(messageID))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

// HandleWebhook routes one EventSub delivery by message type. Verification
// requests return the challenge to echo back as plain text; notifications are
// mapped and handed to the sink; revocations are acknowledged with a warning.
func (s *Service) HandleWebhook(ctx context.Context, messageType string, body []byte) (string, error) {
	switch messageType {
	case MessageTypeVerification:
		var payload struct {
			Challenge string `json:"challenge"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return "", fmt.Errorf("twitch: decode verification: %w", err)
		}
		s.log.Info("eventsub webhook verified")
		return payload.Challenge, nil

	case MessageTypeNotification:
		return "", s.processNotification(ctx, body)

	case MessageTypeRevocation:
		var payload struct {
			Subscription struct {
				Type   string `json:"type"`
				Status string `json:"status"`
			} `json:"subscription"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return "", fmt.Errorf("twitch: decode revocation: %w", err)
		}
		s.log.Warn("eventsub subscription revoked",
			"type", payload.Subscription.Type,
			"status", payload.Subscription.Status)
		return "", nil

	default:
		s.log.Debug("ignoring eventsub message", "message_type", messageType)
		return "", nil
	}
}

func (s *Service) processNotification(ctx context.Context, body []byte) error {
	var note struct {
		Subscription struct {
			Type string `json:"type"`
		} `json:"subscription"`
		Event json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(body, &note); err != nil {
		return fmt.Errorf("twitch: decode notification: %w", err)
	}

	ev, ok, err := MapNotification(note.Subscription.Type, note.Event)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Warn("unknown eventsub type", "type", note.Subscription.Type)
		return nil
	}

	s.log.Info("twitch event received", "type", note.Subscription.Type, "kind", ev.Kind)
	s.sink.Process(ctx, ev)
	return nil
}
