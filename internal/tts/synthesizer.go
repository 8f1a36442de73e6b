package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/crierhq/crier/internal/observability"
)

// Backend turns text into complete WAV bytes.
type Backend interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

var ErrEmptyText = errors.New("tts: empty text")

// Params carry the voice configuration that, together with the text, addresses
// an artifact.
type Params struct {
	Voice     string
	Speed     float64
	MaxLength int
}

// Synthesizer resolves text to a cached artifact, filling the cache through
// the backend on miss. Concurrent requests for the same key share one backend
// call.
type Synthesizer struct {
	backend Backend
	cache   *Cache
	params  Params
	metrics *observability.Metrics
	log     *slog.Logger
	flight  singleflight.Group
}

// NewSynthesizer wires a synthesizer over backend and cache.
func NewSynthesizer(backend Backend, cache *Cache, params Params, metrics *observability.Metrics, log *slog.Logger) *Synthesizer {
	if log == nil {
		log = slog.Default()
	}
	return &Synthesizer{
		backend: backend,
		cache:   cache,
		params:  params,
		metrics: metrics,
		log:     log.With("component", "tts"),
	}
}

// Cache exposes the artifact cache for retrieval and health reporting.
func (s *Synthesizer) Cache() *Cache { return s.cache }

// Synthesize returns the artifact key for text, generating and caching the
// audio when it is not already on disk. Text longer than the configured
// maximum is truncated with a trailing ellipsis before keying, so the
// truncated and full forms of an overlong message share an artifact.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	if runes := []rune(text); s.params.MaxLength > 0 && len(runes) > s.params.MaxLength {
		text = string(runes[:s.params.MaxLength]) + "..."
	}

	key := Key(text, s.params.Voice, s.params.Speed)
	if s.cache.Has(key) {
		s.metrics.CacheHits.Inc()
		s.log.Debug("cache hit", "key", key)
		return key, nil
	}

	_, err, shared := s.flight.Do(key, func() (any, error) {
		// A sibling flight may have landed the artifact between the Has
		// check and this execution.
		if s.cache.Has(key) {
			return key, nil
		}
		s.metrics.CacheMisses.Inc()

		start := time.Now()
		wav, err := s.backend.Synthesize(ctx, text, s.params.Voice)
		if err != nil {
			return nil, fmt.Errorf("tts: synthesize %s: %w", key, err)
		}
		s.metrics.ObserveSynthesisLatency(time.Since(start))

		if err := s.cache.Put(key, wav); err != nil {
			return nil, err
		}
		s.cache.Sweep()
		return key, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		s.log.Debug("coalesced synthesize", "key", key)
	}
	return key, nil
}
