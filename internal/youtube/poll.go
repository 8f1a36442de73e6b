package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/crierhq/crier/internal/reliability"
)

const (
	// discoveryRetryInterval paces chat-id lookups while no stream is live.
	discoveryRetryInterval = 30 * time.Second
	// transientRetryInterval paces retries after non-quota API failures.
	transientRetryInterval = 10 * time.Second
	quotaBackoffBase       = time.Minute
	quotaBackoffCap        = 8 * time.Minute
)

// apiError is a non-2xx response from the YouTube API.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("youtube: api status %d: %s", e.Status, e.Body)
}

// Run polls the live chat until ctx is canceled. Pacing is owned here:
// discovery retries while no broadcast is live, capped exponential backoff on
// quota errors and the per-page polling interval the API reports when it
// exceeds the configured one.
func (s *Service) Run(ctx context.Context) {
	if s.cfg.ClientID == "" || s.cfg.ClientSecret == "" {
		s.log.Warn("youtube credentials not configured, ingest disabled")
		return
	}
	s.log.Info("youtube poller started", "interval", s.cfg.PollInterval)

	quota := reliability.NewBackoff(quotaBackoffBase, quotaBackoffCap)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("youtube poller stopped")
			return
		case <-timer.C:
		}
		timer.Reset(s.pollOnce(ctx, quota))
	}
}

// pollOnce runs one cycle and returns the wait before the next.
func (s *Service) pollOnce(ctx context.Context, quota *reliability.Backoff) time.Duration {
	token, err := s.accessToken(ctx)
	if err != nil {
		s.log.Warn("no valid youtube token, waiting for oauth", "error", err)
		return discoveryRetryInterval
	}

	if s.chatID() == "" {
		id, err := s.discoverChatID(ctx, token)
		if err != nil {
			s.metrics.ProviderErrors.WithLabelValues("youtube", "discover").Inc()
			s.log.Error("failed to look up live chat", "error", err)
			return discoveryRetryInterval
		}
		if id == "" {
			s.log.Debug("no active live stream")
			return discoveryRetryInterval
		}
		s.setChat(id, "")
		s.log.Info("found live chat", "live_chat_id", id)
	}

	page, err := s.fetchMessages(ctx, token)
	if err != nil {
		var ae *apiError
		switch {
		case errors.As(err, &ae) && ae.Status == http.StatusForbidden:
			wait := quota.Next()
			s.metrics.ProviderErrors.WithLabelValues("youtube", "quota").Inc()
			s.log.Error("youtube api quota exceeded or forbidden", "backoff", wait)
			return wait
		case errors.As(err, &ae) && ae.Status == http.StatusNotFound:
			s.log.Info("live chat ended, rediscovering")
			s.setChat("", "")
			return s.cfg.PollInterval
		case errors.As(err, &ae) && reliability.IsRetryableHTTPStatus(ae.Status):
			s.metrics.ProviderErrors.WithLabelValues("youtube", "api").Inc()
			s.log.Error("youtube api error", "error", err)
			return transientRetryInterval
		default:
			s.metrics.ProviderErrors.WithLabelValues("youtube", "poll").Inc()
			s.log.Error("poll failed", "error", err)
			return transientRetryInterval
		}
	}
	quota.Reset()

	for _, item := range page.Items {
		ev, ok, err := MapChatMessage(item)
		if err != nil {
			s.log.Warn("skipping unreadable chat item", "error", err)
			continue
		}
		if !ok {
			continue
		}
		s.log.Info("youtube event received", "kind", ev.Kind, "username", ev.Username)
		s.sink.Process(ctx, ev)
	}

	wait := s.cfg.PollInterval
	if suggested := time.Duration(page.PollingIntervalMillis) * time.Millisecond; suggested > wait {
		wait = suggested
	}
	return wait
}

func (s *Service) chatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveChatID
}

func (s *Service) setChat(id, pageToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liveChatID = id
	s.nextPageToken = pageToken
}

// discoverChatID finds the live chat id of the active broadcast. An empty id
// with nil error means nothing is live.
func (s *Service) discoverChatID(ctx context.Context, token string) (string, error) {
	params := url.Values{
		"part":            {"snippet"},
		"broadcastStatus": {"active"},
	}
	if s.cfg.ChannelID != "" {
		params.Set("broadcastType", "all")
	} else {
		params.Set("mine", "true")
	}

	var payload struct {
		Items []struct {
			Snippet struct {
				LiveChatID string `json:"liveChatId"`
			} `json:"snippet"`
		} `json:"items"`
	}
	if err := s.apiGet(ctx, token, "/liveBroadcasts", params, &payload); err != nil {
		return "", err
	}
	if len(payload.Items) == 0 {
		return "", nil
	}
	return payload.Items[0].Snippet.LiveChatID, nil
}

func (s *Service) fetchMessages(ctx context.Context, token string) (chatPage, error) {
	s.mu.Lock()
	chatID, pageToken := s.liveChatID, s.nextPageToken
	s.mu.Unlock()

	params := url.Values{
		"liveChatId": {chatID},
		"part":       {"snippet,authorDetails"},
	}
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	var page chatPage
	if err := s.apiGet(ctx, token, "/liveChat/messages", params, &page); err != nil {
		return chatPage{}, err
	}

	s.mu.Lock()
	if s.liveChatID == chatID {
		s.nextPageToken = page.NextPageToken
	}
	s.mu.Unlock()
	return page, nil
}

func (s *Service) apiGet(ctx context.Context, token, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiBase+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("youtube: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("youtube: %s: %w", path, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return &apiError{Status: res.StatusCode, Body: string(body)}
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("youtube: decode %s response: %w", path, err)
	}
	return nil
}
