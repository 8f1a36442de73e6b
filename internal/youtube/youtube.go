// Package youtube polls the YouTube live chat of the active broadcast for
// monetization events.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/crierhq/crier/internal/event"
	"github.com/crierhq/crier/internal/observability"
	"github.com/crierhq/crier/internal/tokens"
)

// oauthScopes give read access to broadcasts and the live chat.
var oauthScopes = []string{
	"https://www.googleapis.com/auth/youtube.readonly",
	"https://www.googleapis.com/auth/youtube.force-ssl",
}

// Config carries the Google application credentials and polling cadence.
type Config struct {
	ClientID     string
	ClientSecret string
	ChannelID    string
	PollInterval time.Duration
}

// Sink receives normalized events. The alert processor satisfies it.
type Sink interface {
	Process(ctx context.Context, ev event.Event) bool
}

// Service discovers the active broadcast's live chat and polls it for
// Super Chats, Super Stickers and membership events.
type Service struct {
	cfg     Config
	tokens  *tokens.Manager
	sink    Sink
	metrics *observability.Metrics
	log     *slog.Logger

	client   *http.Client
	authURL  string
	tokenURL string
	apiBase  string

	mu            sync.Mutex
	liveChatID    string
	nextPageToken string
}

func New(cfg Config, tokens *tokens.Manager, sink Sink, metrics *observability.Metrics, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Service{
		cfg:      cfg,
		tokens:   tokens,
		sink:     sink,
		metrics:  metrics,
		log:      log.With("component", "youtube"),
		client:   &http.Client{Timeout: 15 * time.Second},
		authURL:  "https://accounts.google.com/o/oauth2/v2/auth",
		tokenURL: "https://oauth2.googleapis.com/token",
		apiBase:  "https://www.googleapis.com/youtube/v3",
	}
}

// Authenticated reports whether a usable access token is on hand.
func (s *Service) Authenticated() bool {
	return s.tokens.HasValid("youtube")
}

// AuthURL builds the OAuth consent URL. access_type=offline with forced
// consent makes Google issue a refresh token.
func (s *Service) AuthURL(redirectURI, state string) string {
	params := url.Values{
		"client_id":     {s.cfg.ClientID},
		"redirect_uri":  {redirectURI},
		"response_type": {"code"},
		"scope":         {strings.Join(oauthScopes, " ")},
		"access_type":   {"offline"},
		"prompt":        {"consent"},
		"state":         {state},
	}
	return s.authURL + "?" + params.Encode()
}

// ExchangeCode trades an authorization code for tokens and persists them.
// The poller picks the new credentials up on its next cycle.
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
		s.metrics.ProviderErrors.WithLabelValues("youtube", "oauth").Inc()
		return err
	}
	s.persistToken(ctx, tok)
	s.log.Info("youtube oauth completed")
	return nil
}

// accessToken returns a valid user token, refreshing the stored one when it
// is expired.
func (s *Service) accessToken(ctx context.Context) (string, error) {
	if s.tokens.HasValid("youtube") {
		tok, _ := s.tokens.AccessToken("youtube")
		return tok, nil
	}
	refresh, ok := s.tokens.RefreshToken("youtube")
	if !ok {
		return "", errors.New("youtube: no stored credentials")
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
		s.metrics.ProviderErrors.WithLabelValues("youtube", "refresh").Inc()
		return "", err
	}
	// Google omits the refresh token on refresh grants; keep the old one.
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	s.persistToken(ctx, tok)
	s.log.Info("youtube token refreshed")
	return tok.AccessToken, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func (s *Service) requestToken(ctx context.Context, form url.Values) (tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, fmt.Errorf("youtube: create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := s.client.Do(req)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("youtube: token request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return tokenResponse{}, fmt.Errorf("youtube: token endpoint status %d: %s", res.StatusCode, string(body))
	}

	var tok tokenResponse
	if err := json.NewDecoder(res.Body).Decode(&tok); err != nil {
		return tokenResponse{}, fmt.Errorf("youtube: decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return tokenResponse{}, errors.New("youtube: token response missing access_token")
	}
	return tok, nil
}

func (s *Service) persistToken(ctx context.Context, tok tokenResponse) {
	var expiresIn time.Duration
	if tok.ExpiresIn > 0 {
		expiresIn = time.Duration(tok.ExpiresIn) * time.Second
	}
	if err := s.tokens.Set(ctx, "youtube", tok.AccessToken, tok.RefreshToken, expiresIn); err != nil {
		s.log.Warn("failed to persist youtube tokens", "error", err)
	}
}
