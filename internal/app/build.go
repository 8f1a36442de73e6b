// Package app assembles the service from configuration: every component is
// constructed here in dependency order, so main stays a lifecycle shell.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/crierhq/crier/internal/config"
	"github.com/crierhq/crier/internal/dispatch"
	"github.com/crierhq/crier/internal/event"
	"github.com/crierhq/crier/internal/httpapi"
	"github.com/crierhq/crier/internal/hub"
	"github.com/crierhq/crier/internal/observability"
	"github.com/crierhq/crier/internal/processor"
	"github.com/crierhq/crier/internal/tokens"
	"github.com/crierhq/crier/internal/tts"
	"github.com/crierhq/crier/internal/twitch"
	"github.com/crierhq/crier/internal/wyoming"
	"github.com/crierhq/crier/internal/youtube"
)

type BuildResult struct {
	Config     config.Config
	API        *httpapi.Server
	Dispatcher *dispatch.Dispatcher
	Overlays   *hub.Hub
	Cache      *tts.Cache
	TTS        *wyoming.Client
	Tokens     *tokens.Manager
	Metrics    *observability.Metrics

	// Twitch and YouTube are nil when the platform is disabled.
	Twitch  *twitch.Service
	YouTube *youtube.Service

	// Cleanup should be called on shutdown to release external resources
	// (token store connections).
	Cleanup func() error
}

// Build wires the full pipeline. Background loops (cache janitor, EventSub
// subscription upkeep, chat polling) are not started here; the caller owns
// their lifetime.
func Build(ctx context.Context, cfg config.Config, log *slog.Logger) (*BuildResult, error) {
	if log == nil {
		log = slog.Default()
	}

	metrics := observability.NewMetrics(cfg.Server.MetricsNamespace)

	store, err := tokens.NewStore(ctx, cfg.Tokens.Store, cfg.Tokens.FilePath, cfg.Tokens.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("token store init failed: %w", err)
	}
	manager := tokens.NewManager(ctx, store, log)

	cache, err := tts.NewCache(cfg.Cache.Dir, cfg.Cache.MaxMB, cfg.Cache.TTL(), log)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("audio cache init failed: %w", err)
	}

	backend := wyoming.New(wyoming.Config{
		Host:    cfg.TTS.Host,
		Port:    cfg.TTS.Port,
		Timeout: cfg.TTS.Timeout(),
	})
	synth := tts.NewSynthesizer(backend, cache, tts.Params{
		Voice:     cfg.TTS.Voice,
		Speed:     cfg.TTS.Speed,
		MaxLength: cfg.TTS.MaxLength,
	}, metrics, log)

	overlays := hub.New(metrics, log)
	dispatcher := dispatch.New(dispatch.Config{
		QueueBound:      cfg.Queue.MaxSize,
		TwitchRate:      cfg.Queue.RateLimitTwitch,
		YouTubeRate:     cfg.Queue.RateLimitYouTube,
		DuplicateWindow: cfg.Queue.DuplicateWindow(),
	}, cache, overlays, metrics, log)

	proc := processor.New(settingsFromConfig(cfg), synth, dispatcher, metrics, log)

	var tw *twitch.Service
	if cfg.Twitch.Enabled {
		tw = twitch.New(twitch.Config{
			ClientID:      cfg.Twitch.ClientID,
			ClientSecret:  cfg.Twitch.ClientSecret,
			BroadcasterID: cfg.Twitch.BroadcasterID,
			WebhookSecret: cfg.Twitch.WebhookSecret,
			CallbackURL:   cfg.Twitch.CallbackURL,
		}, manager, proc, metrics, log)
	}

	var yt *youtube.Service
	if cfg.YouTube.Enabled {
		yt = youtube.New(youtube.Config{
			ClientID:     cfg.YouTube.ClientID,
			ClientSecret: cfg.YouTube.ClientSecret,
			ChannelID:    cfg.YouTube.ChannelID,
			PollInterval: cfg.YouTube.PollInterval(),
		}, manager, proc, metrics, log)
	}

	api := httpapi.New(cfg, dispatcher, overlays, proc, synth, backend, tw, yt, metrics, log)

	cleanup := func() error {
		if err := store.Close(); err != nil {
			return fmt.Errorf("token store close: %w", err)
		}
		return nil
	}

	return &BuildResult{
		Config:     cfg,
		API:        api,
		Dispatcher: dispatcher,
		Overlays:   overlays,
		Cache:      cache,
		TTS:        backend,
		Tokens:     manager,
		Metrics:    metrics,
		Twitch:     tw,
		YouTube:    yt,
		Cleanup:    cleanup,
	}, nil
}

func settingsFromConfig(cfg config.Config) processor.Settings {
	enabled := make(map[event.Kind]bool, len(cfg.Alerts.Enabled))
	for name, on := range cfg.Alerts.Enabled {
		enabled[event.Kind(name)] = on
	}
	return processor.Settings{
		Enabled:              enabled,
		MinBits:              cfg.Alerts.MinBits,
		MinGifts:             cfg.Alerts.MinGifts,
		MinCents:             cfg.Alerts.MinCents,
		PointsRewardAllow:    cfg.Alerts.PointsRewardAllow,
		ReadBitsMessage:      cfg.Alerts.ReadBitsMessage,
		ReadResubMessage:     cfg.Alerts.ReadResubMessage,
		ReadSuperchatMessage: cfg.Alerts.ReadSuperchatMessage,
		ProfanityFilter:      cfg.Alerts.ProfanityFilter,
		Templates:            cfg.Templates,
	}
}
