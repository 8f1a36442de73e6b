package tokens

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type memStore struct {
	saved   map[string]Token
	loadErr error
	saves   int
}

func (s *memStore) Load(context.Context) (map[string]Token, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.saved, nil
}

func (s *memStore) Save(_ context.Context, tokens map[string]Token) error {
	s.saved = tokens
	s.saves++
	return nil
}

func (s *memStore) Close() error { return nil }

func TestManagerSetPersistsAndServes(t *testing.T) {
	store := &memStore{}
	m := NewManager(context.Background(), store, nil)

	if err := m.Set(context.Background(), "twitch", "access-1", "refresh-1", time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if store.saves != 1 {
		t.Fatalf("store saves = %d, want 1", store.saves)
	}

	access, ok := m.AccessToken("twitch")
	if !ok || access != "access-1" {
		t.Fatalf("AccessToken() = %q, %v", access, ok)
	}
	refresh, ok := m.RefreshToken("twitch")
	if !ok || refresh != "refresh-1" {
		t.Fatalf("RefreshToken() = %q, %v", refresh, ok)
	}
	tok, _ := m.Get("twitch")
	if tok.ExpiresAt == nil {
		t.Fatal("ExpiresAt not recorded for a token with expiry")
	}
}

func TestManagerExpirySkew(t *testing.T) {
	store := &memStore{}
	m := NewManager(context.Background(), store, nil)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	if err := m.Set(context.Background(), "twitch", "access-1", "refresh-1", 4*time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !m.IsExpired("twitch") {
		t.Fatal("token expiring inside the skew window reported as valid")
	}

	if err := m.Set(context.Background(), "youtube", "access-2", "refresh-2", 6*time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if m.IsExpired("youtube") {
		t.Fatal("token expiring outside the skew window reported as expired")
	}
	if !m.HasValid("youtube") {
		t.Fatal("HasValid() = false for a fresh token")
	}
}

func TestManagerTokenWithoutExpiryStaysValid(t *testing.T) {
	store := &memStore{}
	m := NewManager(context.Background(), store, nil)

	if err := m.Set(context.Background(), "twitch", "access-1", "refresh-1", 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	tok, _ := m.Get("twitch")
	if tok.ExpiresAt != nil {
		t.Fatalf("ExpiresAt = %v, want nil without expiry info", tok.ExpiresAt)
	}
	if m.IsExpired("twitch") {
		t.Fatal("token without expiry reported as expired")
	}
}

func TestManagerUnknownPlatform(t *testing.T) {
	m := NewManager(context.Background(), &memStore{}, nil)
	if !m.IsExpired("youtube") {
		t.Fatal("unknown platform reported as unexpired")
	}
	if m.HasValid("youtube") {
		t.Fatal("unknown platform reported as valid")
	}
}

func TestManagerLoadFailureStartsEmpty(t *testing.T) {
	store := &memStore{loadErr: errors.New("disk gone")}
	m := NewManager(context.Background(), store, nil)
	if _, ok := m.Get("twitch"); ok {
		t.Fatal("manager served tokens after a failed load")
	}
}

func TestManagerDelete(t *testing.T) {
	store := &memStore{}
	m := NewManager(context.Background(), store, nil)
	if err := m.Set(context.Background(), "twitch", "access-1", "refresh-1", time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if err := m.Delete(context.Background(), "twitch"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(store.saved) != 0 {
		t.Fatalf("store still holds %d tokens after delete", len(store.saved))
	}

	saves := store.saves
	if err := m.Delete(context.Background(), "twitch"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if store.saves != saves {
		t.Fatal("deleting an absent platform wrote the store")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")
	store := NewFileStore(path)

	expires := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	want := map[string]Token{
		"twitch":  {AccessToken: "a1", RefreshToken: "r1", ExpiresAt: &expires, UpdatedAt: expires},
		"youtube": {AccessToken: "a2", RefreshToken: "r2", UpdatedAt: expires},
	}
	if err := store.Save(context.Background(), want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Load() returned %d tokens, want 2", len(got))
	}
	if got["twitch"].AccessToken != "a1" || got["twitch"].ExpiresAt == nil || !got["twitch"].ExpiresAt.Equal(expires) {
		t.Fatalf("twitch token = %+v", got["twitch"])
	}
	if got["youtube"].ExpiresAt != nil {
		t.Fatalf("youtube ExpiresAt = %v, want nil", got["youtube"].ExpiresAt)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("token file mode = %o, want 600", perm)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tokens-") {
			t.Fatalf("temp file %s left behind", e.Name())
		}
	}
}

func TestFileStoreMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "tokens.json"))
	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Load() returned %d tokens from a missing file", len(got))
	}
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := NewFileStore(path).Load(context.Background()); err == nil {
		t.Fatal("Load() accepted a corrupt token file")
	}
}
