package tts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crierhq/crier/internal/observability"
)

type fakeBackend struct {
	mu       sync.Mutex
	calls    atomic.Int32
	lastText string
	data     []byte
	err      error
	delay    time.Duration
}

func (f *fakeBackend) Synthesize(_ context.Context, text, _ string) ([]byte, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastText = text
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func (f *fakeBackend) text() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastText
}

func newTestSynthesizer(t *testing.T, backend Backend, params Params, namespace string) *Synthesizer {
	t.Helper()
	cache, err := NewCache(t.TempDir(), 100, 24*time.Hour, nil)
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	return NewSynthesizer(backend, cache, params, observability.NewMetrics(namespace), nil)
}

func TestSynthesizeFillsAndHitsCache(t *testing.T) {
	backend := &fakeBackend{data: []byte("RIFFfakewav")}
	s := newTestSynthesizer(t, backend, Params{Voice: "alan", Speed: 1.0, MaxLength: 200}, "tts_test_cache")

	key, err := s.Synthesize(context.Background(), "Alice cheered 100 bits!")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if len(key) != 16 {
		t.Fatalf("Synthesize() key = %q, want 16 hex chars", key)
	}
	if !s.Cache().Has(key) {
		t.Fatalf("artifact missing from cache after Synthesize()")
	}

	again, err := s.Synthesize(context.Background(), "Alice cheered 100 bits!")
	if err != nil {
		t.Fatalf("Synthesize() #2 error = %v", err)
	}
	if again != key {
		t.Fatalf("Synthesize() #2 key = %q, want %q", again, key)
	}
	if got := backend.calls.Load(); got != 1 {
		t.Fatalf("backend calls = %d, want 1", got)
	}
}

func TestSynthesizeRejectsEmptyText(t *testing.T) {
	s := newTestSynthesizer(t, &fakeBackend{}, Params{Voice: "alan", Speed: 1.0}, "tts_test_empty")

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := s.Synthesize(context.Background(), text); !errors.Is(err, ErrEmptyText) {
			t.Fatalf("Synthesize(%q) error = %v, want ErrEmptyText", text, err)
		}
	}
}

func TestSynthesizeTruncatesLongText(t *testing.T) {
	backend := &fakeBackend{data: []byte("wav")}
	s := newTestSynthesizer(t, backend, Params{Voice: "alan", Speed: 1.0, MaxLength: 10}, "tts_test_trunc")

	long := strings.Repeat("abcde", 10)
	key, err := s.Synthesize(context.Background(), long)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	wantText := long[:10] + "..."
	if got := backend.text(); got != wantText {
		t.Fatalf("backend received %q, want %q", got, wantText)
	}
	if want := Key(wantText, "alan", 1.0); key != want {
		t.Fatalf("key = %q, want key of truncated text %q", key, want)
	}
}

func TestSynthesizeCoalescesConcurrentCalls(t *testing.T) {
	backend := &fakeBackend{data: []byte("wav"), delay: 50 * time.Millisecond}
	s := newTestSynthesizer(t, backend, Params{Voice: "alan", Speed: 1.0, MaxLength: 200}, "tts_test_flight")

	const workers = 8
	keys := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			keys[i], errs[i] = s.Synthesize(context.Background(), "gift sub flood")
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d error = %v", i, errs[i])
		}
		if keys[i] != keys[0] {
			t.Fatalf("worker %d key = %q, want %q", i, keys[i], keys[0])
		}
	}
	if got := backend.calls.Load(); got != 1 {
		t.Fatalf("backend calls = %d, want 1", got)
	}
}

func TestSynthesizeSurfacesBackendFailure(t *testing.T) {
	backend := &fakeBackend{err: errors.New("connection refused")}
	s := newTestSynthesizer(t, backend, Params{Voice: "alan", Speed: 1.0, MaxLength: 200}, "tts_test_fail")

	if _, err := s.Synthesize(context.Background(), "hello"); err == nil {
		t.Fatalf("Synthesize() error = nil, want backend failure")
	}
	if got := s.Cache().Size(); got != 0 {
		t.Fatalf("cache size after failure = %d, want 0", got)
	}
}
