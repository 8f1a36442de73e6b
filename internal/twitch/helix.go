package twitch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// oauthScopes are the user scopes the subscribed EventSub topics require.
var oauthScopes = []string{
	"bits:read",
	"channel:read:subscriptions",
	"channel:read:redemptions",
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

type eventSubscription struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Transport struct {
		Callback string `json:"callback"`
	} `json:"transport"`
}

// Start brings the EventSub subscriptions in line with configuration.
// Missing credentials or tokens log a warning instead of failing startup;
// the operator completes OAuth through the auth routes and subscriptions are
// synced again after the code exchange.
func (s *Service) Start(ctx context.Context) {
	if s.cfg.ClientID == "" || s.cfg.ClientSecret == "" {
		s.log.Warn("twitch credentials not configured, ingest disabled")
		return
	}
	if _, err := s.accessToken(ctx); err != nil {
		s.log.Warn("no valid twitch token, waiting for oauth", "error", err)
		return
	}
	if err := s.SyncSubscriptions(ctx); err != nil {
		s.log.Error("failed to sync eventsub subscriptions", "error", err)
	}
}

// Authenticated reports whether a usable access token is on hand.
func (s *Service) Authenticated() bool {
	return s.tokens.HasValid("twitch")
}

// AuthURL builds the OAuth consent URL for the configured application.
func (s *Service) AuthURL(redirectURI, state string) string {
	params := url.Values{
		"client_id":     {s.cfg.ClientID},
		"redirect_uri":  {redirectURI},
		"response_type": {"code"},
		"scope":         {strings.Join(oauthScopes, " ")},
		"state":         {state},
	}
	return s.authBase + "/authorize?" + params.Encode()
}

// ExchangeCode trades an authorization code for tokens, persists them and
// syncs the EventSub subscriptions now that a token exists.
func (s *Service) ExchangeCode(ctx context.Context, code, redirectURI string) error {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"client_id":     {s.cfg.ClientID},
		"client_secret": {s.cfg.ClientSecret},
	}
	tok, err := s.requestToken(ctx, form)
	if err != nil {
		s.metrics.ProviderErrors.WithLabelValues("twitch", "oauth").Inc()
		return err
	}
	s.persistToken(ctx, tok)
	s.log.Info("twitch oauth completed")

	if err := s.SyncSubscriptions(ctx); err != nil {
		s.log.Error("failed to sync eventsub subscriptions", "error", err)
	}
	return nil
}

// SyncSubscriptions deletes stale EventSub subscriptions pointing at our
// callback URL and creates one subscription per topic.
func (s *Service) SyncSubscriptions(ctx context.Context) error {
	if s.cfg.CallbackURL == "" {
		return errors.New("twitch: webhook callback url not configured")
	}
	if s.cfg.BroadcasterID == "" {
		return errors.New("twitch: broadcaster id not configured")
	}
	token, err := s.accessToken(ctx)
	if err != nil {
		return err
	}

	existing, err := s.listSubscriptions(ctx, token)
	if err != nil {
		return err
	}
	for _, sub := range existing {
		if sub.Transport.Callback != s.cfg.CallbackURL {
			continue
		}
		if err := s.deleteSubscription(ctx, token, sub.ID); err != nil {
			s.log.Warn("failed to delete stale subscription", "id", sub.ID, "error", err)
			continue
		}
		s.log.Debug("deleted stale subscription", "id", sub.ID, "type", sub.Type)
	}

	for _, subType := range subscriptionTypes {
		id, err := s.createSubscription(ctx, token, subType)
		if err != nil {
			s.metrics.ProviderErrors.WithLabelValues("twitch", "subscribe").Inc()
			s.log.Error("failed to create subscription", "type", subType, "error", err)
			continue
		}
		s.mu.Lock()
		s.subs[subType] = id
		s.mu.Unlock()
		s.log.Info("created eventsub subscription", "type", subType, "id", id)
	}
	return nil
}

// accessToken returns a valid user token, refreshing the stored one when it
// is expired.
func (s *Service) accessToken(ctx context.Context) (string, error) {
	if s.tokens.HasValid("twitch") {
		tok, _ := s.tokens.AccessToken("twitch")
		return tok, nil
	}
	refresh, ok := s.tokens.RefreshToken("twitch")
	if !ok {
		return "", errors.New("twitch: no stored credentials")
	}
	return s.refreshAccessToken(ctx, refresh)
}

func (s *Service) refreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {s.cfg.ClientID},
		"client_secret": {s.cfg.ClientSecret},
	}
	tok, err := s.requestToken(ctx, form)
	if err != nil {
		s.metrics.ProviderErrors.WithLabelValues("twitch", "refresh").Inc()
		return "", err
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	s.persistToken(ctx, tok)
	s.log.Info("twitch token refreshed")
	return tok.AccessToken, nil
}

func (s *Service) requestToken(ctx context.Context, form url.Values) (tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.authBase+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, fmt.Errorf("twitch: create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := s.client.Do(req)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("twitch: token request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return tokenResponse{}, fmt.Errorf("twitch: token endpoint status %d: %s", res.StatusCode, string(body))
	}

	var tok tokenResponse
	if err := json.NewDecoder(res.Body).Decode(&tok); err != nil {
		return tokenResponse{}, fmt.Errorf("twitch: decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return tokenResponse{}, errors.New("twitch: token response missing access_token")
	}
	return tok, nil
}

func (s *Service) persistToken(ctx context.Context, tok tokenResponse) {
	var expiresIn time.Duration
	if tok.ExpiresIn > 0 {
		expiresIn = time.Duration(tok.ExpiresIn) * time.Second
	}
	if err := s.tokens.Set(ctx, "twitch", tok.AccessToken, tok.RefreshToken, expiresIn); err != nil {
		s.log.Warn("failed to persist twitch tokens", "error", err)
	}
}

func (s *Service) listSubscriptions(ctx context.Context, token string) ([]eventSubscription, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiBase+"/eventsub/subscriptions", nil)
	if err != nil {
		return nil, fmt.Errorf("twitch: create list request: %w", err)
	}
	res, err := s.helixDo(req, token)
	if err != nil {
		return nil, fmt.Errorf("twitch: list subscriptions: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, fmt.Errorf("twitch: list subscriptions status %d: %s", res.StatusCode, string(body))
	}

	var payload struct {
		Data []eventSubscription `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("twitch: decode subscription list: %w", err)
	}
	return payload.Data, nil
}

func (s *Service) createSubscription(ctx context.Context, token, subType string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"type":    subType,
		"version": "1",
		"condition": map[string]string{
			"broadcaster_user_id": s.cfg.BroadcasterID,
		},
		"transport": map[string]string{
			"method":   "webhook",
			"callback": s.cfg.CallbackURL,
			"secret":   s.cfg.WebhookSecret,
		},
	})
	if err != nil {
		return "", fmt.Errorf("twitch: marshal subscription: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiBase+"/eventsub/subscriptions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("twitch: create subscribe request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := s.helixDo(req, token)
	if err != nil {
		return "", fmt.Errorf("twitch: create subscription: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", fmt.Errorf("twitch: create subscription status %d: %s", res.StatusCode, string(body))
	}

	var created struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("twitch: decode subscription: %w", err)
	}
	if len(created.Data) == 0 {
		return "", errors.New("twitch: subscription response missing data")
	}
	return created.Data[0].ID, nil
}

func (s *Service) deleteSubscription(ctx context.Context, token, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.apiBase+"/eventsub/subscriptions?id="+url.QueryEscape(id), nil)
	if err != nil {
		return fmt.Errorf("twitch: create delete request: %w", err)
	}
	res, err := s.helixDo(req, token)
	if err != nil {
		return fmt.Errorf("twitch: delete subscription: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("twitch: delete subscription status %d: %s", res.StatusCode, string(body))
	}
	return nil
}

func (s *Service) helixDo(req *http.Request, token string) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Client-Id", s.cfg.ClientID)
	return s.client.Do(req)
}
