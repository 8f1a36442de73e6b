package twitch

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"sync"
	"testing"

	"github.com/crierhq/crier/internal/event"
	"github.com/crierhq/crier/internal/observability"
	"github.com/crierhq/crier/internal/tokens"
)

type captureSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *captureSink) Process(_ context.Context, ev event.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return true
}

func (s *captureSink) all() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Event(nil), s.events...)
}

func newTestService(t *testing.T, namespace string, cfg Config) (*Service, *captureSink, *tokens.Manager) {
	t.Helper()
	store := tokens.NewFileStore(filepath.Join(t.TempDir(), "tokens.json"))
	mgr := tokens.NewManager(context.Background(), store, nil)
	sink := &captureSink{}
	svc := New(cfg, mgr, sink, observability.NewMetrics(namespace), nil)
	return svc, sink, mgr
}

func signBody(secret, messageID, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(messageID))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	svc, _, _ := newTestService(t, "twitch_test_verify", Config{WebhookSecret: "s3cret"})

	body := []byte(`{"subscription":{"type":"channel.cheer"}}`)
	sig := signBody("s3cret", "msg-1", "2025-06-01T12:00:00Z", body)

	if !svc.VerifySignature("msg-1", "2025-06-01T12:00:00Z", body, sig) {
		t.Fatal("valid signature rejected")
	}
	if svc.VerifySignature("msg-1", "2025-06-01T12:00:00Z", body, "sha256=deadbeef") {
		t.Fatal("forged signature accepted")
	}
	if svc.VerifySignature("msg-2", "2025-06-01T12:00:00Z", body, sig) {
		t.Fatal("signature accepted for a different message id")
	}
}

func TestVerifySignatureWithoutSecret(t *testing.T) {
	svc, _, _ := newTestService(t, "twitch_test_nosecret", Config{})
	if !svc.VerifySignature("msg-1", "ts", []byte("{}"), "") {
		t.Fatal("verification not skipped with no secret configured")
	}
}

func TestHandleWebhookVerification(t *testing.T) {
	svc, sink, _ := newTestService(t, "twitch_test_challenge", Config{WebhookSecret: "s3cret"})

	body := []byte(`{"challenge":"pogchamp-123","subscription":{"type":"channel.cheer"}}`)
	challenge, err := svc.HandleWebhook(context.Background(), MessageTypeVerification, body)
	if err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}
	if challenge != "pogchamp-123" {
		t.Fatalf("challenge = %q, want pogchamp-123", challenge)
	}
	if len(sink.all()) != 0 {
		t.Fatal("verification request reached the sink")
	}
}

func TestHandleWebhookCheerNotification(t *testing.T) {
	svc, sink, _ := newTestService(t, "twitch_test_cheer", Config{WebhookSecret: "s3cret"})

	body := []byte(`{
		"subscription": {"type": "channel.cheer"},
		"event": {"user_name": "Alice", "bits": 500, "message": "great stream", "is_anonymous": false}
	}`)
	if _, err := svc.HandleWebhook(context.Background(), MessageTypeNotification, body); err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}

	events := sink.all()
	if len(events) != 1 {
		t.Fatalf("sink received %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Kind != event.KindTwitchBits || ev.Username != "Alice" || ev.Bits != 500 || ev.Message != "great stream" {
		t.Fatalf("mapped event = %+v", ev)
	}
}

func TestHandleWebhookAnonymousCheer(t *testing.T) {
	svc, sink, _ := newTestService(t, "twitch_test_anon", Config{WebhookSecret: "s3cret"})

	body := []byte(`{
		"subscription": {"type": "channel.cheer"},
		"event": {"user_name": "Hidden", "bits": 100, "message": "", "is_anonymous": true}
	}`)
	if _, err := svc.HandleWebhook(context.Background(), MessageTypeNotification, body); err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}

	events := sink.all()
	if len(events) != 1 || events[0].Username != "Anonymous" {
		t.Fatalf("anonymous cheer mapped to %+v", events)
	}
}

func TestHandleWebhookRevocation(t *testing.T) {
	svc, sink, _ := newTestService(t, "twitch_test_revoke", Config{WebhookSecret: "s3cret"})

	body := []byte(`{"subscription":{"type":"channel.cheer","status":"authorization_revoked"}}`)
	if _, err := svc.HandleWebhook(context.Background(), MessageTypeRevocation, body); err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}
	if len(sink.all()) != 0 {
		t.Fatal("revocation reached the sink")
	}
}

func TestHandleWebhookUnknownSubscriptionType(t *testing.T) {
	svc, sink, _ := newTestService(t, "twitch_test_unknown", Config{WebhookSecret: "s3cret"})

	body := []byte(`{"subscription":{"type":"channel.follow"},"event":{"user_name":"Bob"}}`)
	if _, err := svc.HandleWebhook(context.Background(), MessageTypeNotification, body); err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}
	if len(sink.all()) != 0 {
		t.Fatal("unmapped subscription type reached the sink")
	}
}
