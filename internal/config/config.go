// Package config loads and validates service configuration: a YAML file over
// built-in defaults, with environment overrides for deployment secrets.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/crierhq/crier/internal/event"
)

// DefaultTemplates returns the built-in alert phrasing. Keys follow the event
// kinds, with _no_message / _no_input variants for events that may carry user
// text.
func DefaultTemplates() map[string]string {
	return map[string]string{
		"twitch_bits":                    "{username} cheered {amount} bits: {message}",
		"twitch_bits_no_message":         "{username} cheered {amount} bits!",
		"twitch_sub_new":                 "{username} just subscribed at tier {tier}!",
		"twitch_sub_resub":               "{username} resubscribed for {months} months at tier {tier}! {message}",
		"twitch_sub_resub_no_message":    "{username} resubscribed for {months} months at tier {tier}!",
		"twitch_gift_single":             "{username} gifted a tier {tier} sub to {recipient}!",
		"twitch_gift_multi":              "{username} gifted {count} tier {tier} subs to the community!",
		"twitch_channel_points":          "{username} redeemed {reward_name}: {user_input}",
		"twitch_channel_points_no_input": "{username} redeemed {reward_name}!",
		"youtube_superchat":              "{username} sent {currency}{amount}: {message}",
		"youtube_superchat_no_message":   "{username} sent a {currency}{amount} Super Chat!",
		"youtube_supersticker":           "{username} sent a Super Sticker worth {currency}{amount}!",
		"youtube_membership_new":         "{username} just became a {level} member!",
		"youtube_membership_milestone":   "{username} has been a {level} member for {months} months!",
	}
}

// templatePlaceholders lists the variables the renderer supplies per template
// key. Validation rejects templates referencing anything else, so a typo in
// SETTINGS fails at startup instead of per event.
var templatePlaceholders = map[string][]string{
	"twitch_bits":                    {"username", "amount", "message"},
	"twitch_bits_no_message":         {"username", "amount"},
	"twitch_sub_new":                 {"username", "tier"},
	"twitch_sub_resub":               {"username", "tier", "months", "message"},
	"twitch_sub_resub_no_message":    {"username", "tier", "months"},
	"twitch_gift_single":             {"username", "tier", "recipient"},
	"twitch_gift_multi":              {"username", "tier", "count"},
	"twitch_channel_points":          {"username", "reward_name", "cost", "user_input"},
	"twitch_channel_points_no_input": {"username", "reward_name", "cost"},
	"youtube_superchat":              {"username", "currency", "amount", "message"},
	"youtube_superchat_no_message":   {"username", "currency", "amount"},
	"youtube_supersticker":           {"username", "currency", "amount"},
	"youtube_membership_new":         {"username", "level"},
	"youtube_membership_milestone":   {"username", "level", "months"},
}

var placeholderPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

// Config is the full runtime configuration. Zero values are not usable; start
// from Default and layer the file and environment on top.
type Config struct {
	Server    ServerConfig      `yaml:"server"`
	TTS       TTSConfig         `yaml:"tts"`
	Cache     CacheConfig       `yaml:"cache"`
	Queue     QueueConfig       `yaml:"queue"`
	Alerts    AlertsConfig      `yaml:"alerts"`
	Twitch    TwitchConfig      `yaml:"twitch"`
	YouTube   YouTubeConfig     `yaml:"youtube"`
	Tokens    TokensConfig      `yaml:"tokens"`
	Overlay   OverlayConfig     `yaml:"overlay"`
	Templates map[string]string `yaml:"templates"`
}

type ServerConfig struct {
	BindAddr               string `yaml:"bind_addr"`
	AllowAnyOrigin         bool   `yaml:"allow_any_origin"`
	LogLevel               string `yaml:"log_level"`
	MetricsNamespace       string `yaml:"metrics_namespace"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`

	// Debug opens the test-injection endpoints. Off in production.
	Debug bool `yaml:"debug"`
}

func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// SlogLevel maps the configured log level onto slog. Unknown values fall back
// to info rather than failing startup.
func (c ServerConfig) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type TTSConfig struct {
	Host           string  `yaml:"host"`
	Port           int     `yaml:"port"`
	Voice          string  `yaml:"voice"`
	Speed          float64 `yaml:"speed"`
	MaxLength      int     `yaml:"max_length"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

func (c TTSConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type CacheConfig struct {
	Dir                  string `yaml:"dir"`
	MaxMB                int    `yaml:"max_mb"`
	TTLHours             int    `yaml:"ttl_hours"`
	SweepIntervalMinutes int    `yaml:"sweep_interval_minutes"`
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

func (c CacheConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

type QueueConfig struct {
	MaxSize                int `yaml:"max_size"`
	DuplicateWindowSeconds int `yaml:"duplicate_window_seconds"`
	RateLimitTwitch        int `yaml:"rate_limit_twitch"`
	RateLimitYouTube       int `yaml:"rate_limit_youtube"`
}

func (c QueueConfig) DuplicateWindow() time.Duration {
	return time.Duration(c.DuplicateWindowSeconds) * time.Second
}

type AlertsConfig struct {
	// Enabled maps event kind names to flags. Kinds absent from the file keep
	// their default.
	Enabled map[string]bool `yaml:"enabled"`

	MinBits  int `yaml:"min_bits"`
	MinGifts int `yaml:"min_gifts"`
	MinCents int `yaml:"min_cents"`

	PointsRewardAllow []string `yaml:"points_reward_allow"`

	ReadBitsMessage      bool `yaml:"read_bits_message"`
	ReadResubMessage     bool `yaml:"read_resub_message"`
	ReadSuperchatMessage bool `yaml:"read_superchat_message"`

	ProfanityFilter bool `yaml:"profanity_filter"`
}

type TwitchConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ClientID      string `yaml:"client_id"`
	ClientSecret  string `yaml:"client_secret"`
	BroadcasterID string `yaml:"broadcaster_id"`
	WebhookSecret string `yaml:"webhook_secret"`
	CallbackURL   string `yaml:"callback_url"`
}

type YouTubeConfig struct {
	Enabled             bool   `yaml:"enabled"`
	ClientID            string `yaml:"client_id"`
	ClientSecret        string `yaml:"client_secret"`
	ChannelID           string `yaml:"channel_id"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
}

func (c YouTubeConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

type TokensConfig struct {
	Store       string `yaml:"store"`
	FilePath    string `yaml:"file_path"`
	DatabaseURL string `yaml:"database_url"`
}

// OverlayConfig styles the browser overlay. Served to the page through the
// settings API; nothing here affects the pipeline.
type OverlayConfig struct {
	FontFamily   string `yaml:"font_family"`
	FontSize     int    `yaml:"font_size"`
	TextColor    string `yaml:"text_color"`
	Animation    string `yaml:"animation"`
	ShowText     bool   `yaml:"show_text"`
	TextPosition string `yaml:"text_position"`
}

// Default returns the configuration used when the file sets nothing.
func Default() Config {
	return Config{
		Server: ServerConfig{
			BindAddr:               ":8080",
			LogLevel:               "info",
			MetricsNamespace:       "crier",
			ShutdownTimeoutSeconds: 15,
		},
		TTS: TTSConfig{
			Host:           "piper",
			Port:           10200,
			Voice:          "en_GB-alan-medium",
			Speed:          1.0,
			MaxLength:      300,
			TimeoutSeconds: 30,
		},
		Cache: CacheConfig{
			Dir:                  "data/audio_cache",
			MaxMB:                100,
			TTLHours:             24,
			SweepIntervalMinutes: 15,
		},
		Queue: QueueConfig{
			MaxSize:                50,
			DuplicateWindowSeconds: 5,
			RateLimitTwitch:        30,
			RateLimitYouTube:       30,
		},
		Alerts: AlertsConfig{
			Enabled:              defaultEnabled(),
			MinBits:              100,
			MinGifts:             1,
			MinCents:             100,
			ReadBitsMessage:      true,
			ReadResubMessage:     true,
			ReadSuperchatMessage: true,
			ProfanityFilter:      true,
		},
		Twitch: TwitchConfig{
			Enabled: true,
		},
		YouTube: YouTubeConfig{
			Enabled:             true,
			PollIntervalSeconds: 5,
		},
		Tokens: TokensConfig{
			Store:    "file",
			FilePath: "data/tokens.json",
		},
		Overlay: OverlayConfig{
			FontFamily:   "Roboto, Arial, sans-serif",
			FontSize:     24,
			TextColor:    "#FFFFFF",
			Animation:    "fade",
			ShowText:     true,
			TextPosition: "bottom",
		},
		Templates: DefaultTemplates(),
	}
}

// defaultEnabled turns every kind on except channel points, which most
// streamers gate behind an allow list first.
func defaultEnabled() map[string]bool {
	m := make(map[string]bool, len(event.Kinds()))
	for _, k := range event.Kinds() {
		m[string(k)] = true
	}
	m[string(event.KindTwitchChannelPoints)] = false
	return m
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every failure found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.BindAddr == "" {
		errs = append(errs, errors.New("server.bind_addr is required"))
	}
	if cfg.Server.ShutdownTimeoutSeconds < 1 {
		errs = append(errs, errors.New("server.shutdown_timeout_seconds must be positive"))
	}

	if cfg.TTS.Host == "" {
		errs = append(errs, errors.New("tts.host is required"))
	}
	if cfg.TTS.Port < 1 || cfg.TTS.Port > 65535 {
		errs = append(errs, fmt.Errorf("tts.port %d is out of range [1, 65535]", cfg.TTS.Port))
	}
	if cfg.TTS.Voice == "" {
		errs = append(errs, errors.New("tts.voice is required"))
	}
	if cfg.TTS.Speed < 0.5 || cfg.TTS.Speed > 2.0 {
		errs = append(errs, fmt.Errorf("tts.speed %.2f is out of range [0.5, 2.0]", cfg.TTS.Speed))
	}
	if cfg.TTS.MaxLength < 1 {
		errs = append(errs, errors.New("tts.max_length must be positive"))
	}
	if cfg.TTS.TimeoutSeconds < 1 {
		errs = append(errs, errors.New("tts.timeout_seconds must be positive"))
	}

	if cfg.Cache.Dir == "" {
		errs = append(errs, errors.New("cache.dir is required"))
	}
	if cfg.Cache.MaxMB < 1 {
		errs = append(errs, errors.New("cache.max_mb must be positive"))
	}
	if cfg.Cache.TTLHours < 1 {
		errs = append(errs, errors.New("cache.ttl_hours must be positive"))
	}
	if cfg.Cache.SweepIntervalMinutes < 1 {
		errs = append(errs, errors.New("cache.sweep_interval_minutes must be positive"))
	}

	if cfg.Queue.MaxSize < 1 {
		errs = append(errs, errors.New("queue.max_size must be positive"))
	}
	if cfg.Queue.DuplicateWindowSeconds < 0 {
		errs = append(errs, errors.New("queue.duplicate_window_seconds must not be negative"))
	}
	if cfg.Queue.RateLimitTwitch < 1 {
		errs = append(errs, errors.New("queue.rate_limit_twitch must be positive"))
	}
	if cfg.Queue.RateLimitYouTube < 1 {
		errs = append(errs, errors.New("queue.rate_limit_youtube must be positive"))
	}

	if cfg.Alerts.MinBits < 0 || cfg.Alerts.MinGifts < 0 || cfg.Alerts.MinCents < 0 {
		errs = append(errs, errors.New("alerts thresholds must not be negative"))
	}
	for name := range cfg.Alerts.Enabled {
		if !knownKind(name) {
			errs = append(errs, fmt.Errorf("alerts.enabled: unknown event kind %q", name))
		}
	}

	if cfg.YouTube.PollIntervalSeconds < 1 {
		errs = append(errs, errors.New("youtube.poll_interval_seconds must be positive"))
	}

	if cfg.Overlay.FontSize < 1 {
		errs = append(errs, errors.New("overlay.font_size must be positive"))
	}

	switch cfg.Tokens.Store {
	case "file":
		if cfg.Tokens.FilePath == "" {
			errs = append(errs, errors.New("tokens.file_path is required for the file store"))
		}
	case "postgres":
		if cfg.Tokens.DatabaseURL == "" {
			errs = append(errs, errors.New("tokens.database_url is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("tokens.store %q is invalid; valid values: file, postgres", cfg.Tokens.Store))
	}

	errs = append(errs, validateTemplates(cfg.Templates)...)

	return errors.Join(errs...)
}

func validateTemplates(templates map[string]string) []error {
	var errs []error
	for key := range templates {
		if _, ok := templatePlaceholders[key]; !ok {
			errs = append(errs, fmt.Errorf("templates: unknown key %q", key))
		}
	}
	for key, allowed := range templatePlaceholders {
		tpl, ok := templates[key]
		if !ok {
			errs = append(errs, fmt.Errorf("templates: missing key %q", key))
			continue
		}
		for _, m := range placeholderPattern.FindAllStringSubmatch(tpl, -1) {
			if !contains(allowed, m[1]) {
				errs = append(errs, fmt.Errorf("templates: %s references unknown placeholder {%s}", key, m[1]))
			}
		}
	}
	return errs
}

func knownKind(name string) bool {
	for _, k := range event.Kinds() {
		if string(k) == name {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
