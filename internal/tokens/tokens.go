// Package tokens stores and serves the OAuth credentials for the platform
// adapters.
package tokens

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// expirySkew treats tokens as expired a little early so an API call never
// races the real expiry.
const expirySkew = 5 * time.Minute

// Token is one platform's OAuth credential set. ExpiresAt nil means the
// platform did not report an expiry and the token is trusted until a refresh
// fails.
type Token struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    *time.Time `json:"expires_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Store persists the platform → token document.
type Store interface {
	Load(ctx context.Context) (map[string]Token, error)
	Save(ctx context.Context, tokens map[string]Token) error
	Close() error
}

// Manager caches tokens in memory and writes through to the store. All
// methods are safe for concurrent use.
type Manager struct {
	store Store
	log   *slog.Logger
	now   func() time.Time

	mu     sync.Mutex
	tokens map[string]Token
}

// NewManager loads existing tokens from store. A failed load starts empty
// rather than failing startup; the operator re-authorizes through the auth
// routes.
func NewManager(ctx context.Context, store Store, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "tokens")

	loaded, err := store.Load(ctx)
	if err != nil {
		log.Warn("failed to load stored tokens, starting empty", "error", err)
		loaded = make(map[string]Token)
	}
	if loaded == nil {
		loaded = make(map[string]Token)
	}
	return &Manager{
		store:  store,
		log:    log,
		now:    time.Now,
		tokens: loaded,
	}
}

// Get returns the stored token for platform.
func (m *Manager) Get(platform string) (Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[platform]
	return tok, ok
}

// Set records new credentials for platform and persists the document.
// expiresIn zero or negative means the platform reported no expiry.
func (m *Manager) Set(ctx context.Context, platform, accessToken, refreshToken string, expiresIn time.Duration) error {
	m.mu.Lock()
	tok := Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		UpdatedAt:    m.now().UTC(),
	}
	if expiresIn > 0 {
		at := m.now().UTC().Add(expiresIn)
		tok.ExpiresAt = &at
	}
	m.tokens[platform] = tok
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.log.Info("stored tokens", "platform", platform)
	return m.store.Save(ctx, snapshot)
}

// Delete removes platform's credentials and persists the document.
func (m *Manager) Delete(ctx context.Context, platform string) error {
	m.mu.Lock()
	if _, ok := m.tokens[platform]; !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.tokens, platform)
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.log.Info("deleted tokens", "platform", platform)
	return m.store.Save(ctx, snapshot)
}

// AccessToken returns the access token for platform when one is stored.
func (m *Manager) AccessToken(platform string) (string, bool) {
	tok, ok := m.Get(platform)
	if !ok || tok.AccessToken == "" {
		return "", false
	}
	return tok.AccessToken, true
}

// RefreshToken returns the refresh token for platform when one is stored.
func (m *Manager) RefreshToken(platform string) (string, bool) {
	tok, ok := m.Get(platform)
	if !ok || tok.RefreshToken == "" {
		return "", false
	}
	return tok.RefreshToken, true
}

// IsExpired reports whether platform's access token needs a refresh. Unknown
// platforms count as expired.
func (m *Manager) IsExpired(platform string) bool {
	tok, ok := m.Get(platform)
	if !ok {
		return true
	}
	if tok.ExpiresAt == nil {
		return false
	}
	return m.now().After(tok.ExpiresAt.Add(-expirySkew))
}

// HasValid reports whether platform holds a usable access token.
func (m *Manager) HasValid(platform string) bool {
	tok, ok := m.Get(platform)
	if !ok || tok.AccessToken == "" {
		return false
	}
	return !m.IsExpired(platform)
}

func (m *Manager) snapshotLocked() map[string]Token {
	snapshot := make(map[string]Token, len(m.tokens))
	for k, v := range m.tokens {
		snapshot[k] = v
	}
	return snapshot
}
