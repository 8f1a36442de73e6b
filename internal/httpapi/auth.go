package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
)

const (
	stateCookie    = "crier_oauth_state"
	stateCookieTTL = 600
)

// authenticator is the slice of a platform service the OAuth handlers need.
type authenticator interface {
	AuthURL(redirectURI, state string) string
	ExchangeCode(ctx context.Context, code, redirectURI string) error
}

func (s *Server) platformAuth(platform string) (authenticator, bool) {
	switch platform {
	case "twitch":
		if s.twitch != nil {
			return s.twitch, true
		}
	case "youtube":
		if s.youtube != nil {
			return s.youtube, true
		}
	}
	return nil, false
}

// handleAuthBegin starts the OAuth flow: mint a state nonce, park it in a
// short-lived cookie and bounce the browser to the provider.
func (s *Server) handleAuthBegin(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	auth, ok := s.platformAuth(platform)
	if !ok {
		s.renderAuthPage(w, http.StatusNotFound, platform, false, platform+" integration is not enabled")
		return
	}

	state, err := randomState()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "state_unavailable", err.Error())
		return
	}
	// Lax so the cookie survives the provider's top-level redirect back.
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   stateCookieTTL,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	authURL := auth.AuthURL(callbackURL(r, platform), state)
	s.log.Info("starting oauth flow", "platform", platform)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// handleAuthCallback finishes the flow: check the provider's answer against
// the state cookie, trade the code for tokens and show the streamer a status
// page they can close.
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	auth, ok := s.platformAuth(platform)
	if !ok {
		s.renderAuthPage(w, http.StatusNotFound, platform, false, platform+" integration is not enabled")
		return
	}

	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		detail := q.Get("error_description")
		if detail == "" {
			detail = errCode
		}
		s.log.Error("oauth flow rejected", "platform", platform, "error", errCode)
		s.renderAuthPage(w, http.StatusBadRequest, platform, false, "Authorization failed: "+detail)
		return
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != q.Get("state") {
		s.log.Error("oauth state mismatch", "platform", platform)
		s.renderAuthPage(w, http.StatusBadRequest, platform, false, "State check failed; restart the flow")
		return
	}
	// One shot per state.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/auth", MaxAge: -1, HttpOnly: true})

	code := q.Get("code")
	if code == "" {
		s.renderAuthPage(w, http.StatusBadRequest, platform, false, "No authorization code received")
		return
	}

	if err := auth.ExchangeCode(r.Context(), code, callbackURL(r, platform)); err != nil {
		s.log.Error("oauth code exchange failed", "platform", platform, "error", err)
		s.renderAuthPage(w, http.StatusBadGateway, platform, false, "Code exchange failed; check the service logs")
		return
	}

	s.log.Info("oauth flow complete", "platform", platform)
	s.renderAuthPage(w, http.StatusOK, platform, true, "Connected. You can close this window.")
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, _ *http.Request) {
	tw, yt := s.platformStatuses()
	respondJSON(w, http.StatusOK, map[string]platformStatus{
		"twitch":  tw,
		"youtube": yt,
	})
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// callbackURL rebuilds the externally visible callback address for platform
// from the request, honoring reverse-proxy forwarding headers. It must match
// what the provider has registered.
func callbackURL(r *http.Request, platform string) string {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return fmt.Sprintf("%s://%s/auth/%s/callback", scheme, host, platform)
}

var authPageTmpl = template.Must(template.New("auth").Parse(`<!DOCTYPE html>
<html>
<head>
<title>crier</title>
<style>
body { font-family: system-ui, sans-serif; background: #16213e; color: #fff;
       display: flex; justify-content: center; align-items: center;
       min-height: 100vh; margin: 0; }
.card { text-align: center; padding: 2rem 3rem;
        background: rgba(255,255,255,0.08); border-radius: 12px; }
.ok { color: #4ade80; }
.fail { color: #f87171; }
a { color: #60a5fa; }
</style>
</head>
<body>
<div class="card">
<h1>{{.Title}}</h1>
{{if .OK}}<p class="ok">{{.Message}}</p>
{{else}}<p class="fail">{{.Message}}</p>
<p><a href="{{.RetryURL}}">Try again</a></p>{{end}}
</div>
</body>
</html>
`))

type authPageData struct {
	Title    string
	Message  string
	OK       bool
	RetryURL string
}

func (s *Server) renderAuthPage(w http.ResponseWriter, status int, platform string, ok bool, message string) {
	title := platform + " authentication"
	if ok {
		title += " successful"
	} else {
		title += " failed"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	err := authPageTmpl.Execute(w, authPageData{
		Title:    title,
		Message:  message,
		OK:       ok,
		RetryURL: "/auth/" + platform,
	})
	if err != nil {
		s.log.Error("render auth page", "error", err)
	}
}
