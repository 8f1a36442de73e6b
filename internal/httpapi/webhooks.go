package httpapi

import (
	"io"
	"net/http"
)

// EventSub notification payloads are a few KB; anything bigger is not Twitch.
const maxWebhookBody = 1 << 20

// handleTwitchWebhook receives EventSub deliveries. Signature first, then the
// message type decides between challenge echo, notification processing and
// revocation logging.
func (s *Server) handleTwitchWebhook(w http.ResponseWriter, r *http.Request) {
	if s.twitch == nil {
		respondError(w, http.StatusNotFound, "platform_disabled", "twitch integration is not enabled")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable_body", err.Error())
		return
	}

	ok := s.twitch.VerifySignature(
		r.Header.Get("Twitch-Eventsub-Message-Id"),
		r.Header.Get("Twitch-Eventsub-Message-Timestamp"),
		body,
		r.Header.Get("Twitch-Eventsub-Message-Signature"),
	)
	if !ok {
		s.metrics.ProviderErrors.WithLabelValues("twitch", "signature").Inc()
		respondError(w, http.StatusForbidden, "invalid_signature", "signature verification failed")
		return
	}

	challenge, err := s.twitch.HandleWebhook(r.Context(), r.Header.Get("Twitch-Eventsub-Message-Type"), body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_payload", err.Error())
		return
	}
	if challenge != "" {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(challenge))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
