package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load builds the configuration: defaults, then the YAML file at path (when
// it exists), then environment overrides, then validation. An absent file is
// fine; a malformed one is fatal.
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := decodeYAML(f, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults plus environment is a valid deployment.
	default:
		return Config{}, fmt.Errorf("config: open %q: %w", path, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := Validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFromReader decodes YAML over the defaults and validates the result.
// Useful in tests where configs are built from string literals.
func LoadFromReader(r io.Reader) (Config, error) {
	cfg := Default()
	if err := decodeYAML(r, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		// An empty document keeps the defaults.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// applyEnv layers deployment settings over the file. Credentials belong here,
// not in a YAML file that tends to get committed.
func applyEnv(cfg *Config) error {
	cfg.Server.BindAddr = envOrDefault("CRIER_BIND_ADDR", cfg.Server.BindAddr)
	cfg.Server.LogLevel = envOrDefault("CRIER_LOG_LEVEL", cfg.Server.LogLevel)

	var err error
	cfg.Server.AllowAnyOrigin, err = boolFromEnv("CRIER_ALLOW_ANY_ORIGIN", cfg.Server.AllowAnyOrigin)
	if err != nil {
		return err
	}
	cfg.Server.Debug, err = boolFromEnv("CRIER_DEBUG", cfg.Server.Debug)
	if err != nil {
		return err
	}

	cfg.TTS.Host = envOrDefault("TTS_HOST", cfg.TTS.Host)
	cfg.TTS.Port, err = intFromEnv("TTS_PORT", cfg.TTS.Port)
	if err != nil {
		return err
	}

	cfg.Twitch.ClientID = envOrDefault("TWITCH_CLIENT_ID", cfg.Twitch.ClientID)
	cfg.Twitch.ClientSecret = envOrDefault("TWITCH_CLIENT_SECRET", cfg.Twitch.ClientSecret)
	cfg.Twitch.BroadcasterID = envOrDefault("TWITCH_BROADCASTER_ID", cfg.Twitch.BroadcasterID)
	cfg.Twitch.WebhookSecret = envOrDefault("TWITCH_WEBHOOK_SECRET", cfg.Twitch.WebhookSecret)
	cfg.Twitch.CallbackURL = envOrDefault("TWITCH_WEBHOOK_CALLBACK_URL", cfg.Twitch.CallbackURL)

	cfg.YouTube.ClientID = envOrDefault("YOUTUBE_CLIENT_ID", cfg.YouTube.ClientID)
	cfg.YouTube.ClientSecret = envOrDefault("YOUTUBE_CLIENT_SECRET", cfg.YouTube.ClientSecret)
	cfg.YouTube.ChannelID = envOrDefault("YOUTUBE_CHANNEL_ID", cfg.YouTube.ChannelID)

	cfg.Tokens.DatabaseURL = envOrDefault("DATABASE_URL", cfg.Tokens.DatabaseURL)
	return nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func intFromEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
