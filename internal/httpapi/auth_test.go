package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/crierhq/crier/internal/config"
)

func newAuthEnv(t *testing.T, namespace string) *testEnv {
	t.Helper()
	return newTestEnv(t, namespace, func(cfg *config.Config) {
		cfg.Twitch.Enabled = true
		cfg.Twitch.ClientID = "cid"
		cfg.Twitch.ClientSecret = "csecret"
		cfg.Twitch.BroadcasterID = "b-1"
	})
}

func noRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func TestAuthBeginRedirectsWithState(t *testing.T) {
	env := newAuthEnv(t, "httpapi_test_authbegin")
	ts := httptest.NewServer(env.server.Router())
	defer ts.Close()

	res, err := noRedirectClient().Get(ts.URL + "/auth/twitch")
	if err != nil {
		t.Fatalf("GET /auth/twitch error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusFound)
	}

	loc, err := url.Parse(res.Header.Get("Location"))
	if err != nil {
		t.Fatalf("parse Location: %v", err)
	}
	if loc.Host != "id.twitch.tv" {
		t.Fatalf("redirect host = %q, want id.twitch.tv", loc.Host)
	}
	if got := loc.Query().Get("redirect_uri"); got != ts.URL+"/auth/twitch/callback" {
		t.Fatalf("redirect_uri = %q, want %q", got, ts.URL+"/auth/twitch/callback")
	}

	state := loc.Query().Get("state")
	if state == "" {
		t.Fatal("redirect carries no state")
	}
	var cookieState string
	for _, c := range res.Cookies() {
		if c.Name == stateCookie {
			cookieState = c.Value
		}
	}
	if cookieState != state {
		t.Fatalf("cookie state = %q, url state = %q", cookieState, state)
	}
}

func TestAuthCallbackStateMismatch(t *testing.T) {
	env := newAuthEnv(t, "httpapi_test_authstate")
	ts := httptest.NewServer(env.server.Router())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/auth/twitch/callback?code=abc&state=forged", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "genuine"})
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("callback request error = %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
	body, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(body), "State check failed") {
		t.Fatalf("body = %q, want state failure page", body)
	}
}

func TestAuthCallbackProviderError(t *testing.T) {
	env := newAuthEnv(t, "httpapi_test_autherr")
	ts := httptest.NewServer(env.server.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/auth/twitch/callback?error=access_denied&error_description=Denied")
	if err != nil {
		t.Fatalf("callback request error = %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
	body, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(body), "Authorization failed: Denied") {
		t.Fatalf("body = %q, want provider error page", body)
	}
}

func TestAuthCallbackMissingCode(t *testing.T) {
	env := newAuthEnv(t, "httpapi_test_authnocode")
	ts := httptest.NewServer(env.server.Router())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/auth/twitch/callback?state=s1", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "s1"})
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("callback request error = %v", err)
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(body), "No authorization code received") {
		t.Fatalf("body = %q, want missing code page", body)
	}
}

func TestAuthUnknownPlatform(t *testing.T) {
	env := newAuthEnv(t, "httpapi_test_authunknown")
	ts := httptest.NewServer(env.server.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/auth/discord")
	if err != nil {
		t.Fatalf("GET /auth/discord error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestAuthStatus(t *testing.T) {
	env := newAuthEnv(t, "httpapi_test_authstatus")
	ts := httptest.NewServer(env.server.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/auth/status")
	if err != nil {
		t.Fatalf("GET /auth/status error = %v", err)
	}
	defer res.Body.Close()

	var payload map[string]platformStatus
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !payload["twitch"].Enabled || payload["twitch"].Authenticated {
		t.Fatalf("twitch status = %+v, want enabled unauthenticated", payload["twitch"])
	}
	if payload["youtube"].Enabled {
		t.Fatalf("youtube status = %+v, want disabled", payload["youtube"])
	}
}
