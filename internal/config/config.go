package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Log       LogConfig
	Favorites FavoritesConfig
	Persist   PersistConfig
	Sessions  SessionsConfig
	Metrics   MetricsConfig
	API       APIConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type FavoritesConfig struct {
	PageSize      int
	Addressing    string
	SnippetLength int
}

type PersistConfig struct {
	Debounce time.Duration
}

// SessionsConfig bounds the daemon's conversation cache. A zero
// IdleTimeout keeps sessions for the life of the process.
type SessionsConfig struct {
	IdleTimeout time.Duration
}

type MetricsConfig struct {
	Enabled bool
}

type APIConfig struct {
	Token string
}

func defaults() Config {
	return Config{
		Server:  ServerConfig{Port: 4100},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Log:     LogConfig{Level: "info"},
		Favorites: FavoritesConfig{
			PageSize:      5,
			Addressing:    "positional",
			SnippetLength: 100,
		},
		Persist:  PersistConfig{Debounce: time.Second},
		Sessions: SessionsConfig{IdleTimeout: 15 * time.Minute},
		Metrics:  MetricsConfig{Enabled: true},
	}
}

// Load reads configuration from the platform settings store, environment
// variables and the platform token store.
//
// On macOS settings live in UserDefaults (domain: com.starz.app) and the API
// token lives in the Keychain.
// Elsewhere settings are a JSON file at $XDG_CONFIG_HOME/starz/config.json
// and the token lives in $XDG_DATA_HOME/starz/secrets.json.
//
// Environment variables (STARZ_*) override stored settings on all
// platforms. A missing API token is not an error here; EnsureAPIToken
// creates one.
func Load() (Config, error) {
	return loadWith(newPlatformSettings(), NewTokenStore())
}

// TokenStore holds the API bearer token: the Keychain on macOS, the
// secrets file elsewhere.
type TokenStore interface {
	Token() (string, error)
	SetToken(token string) error
}

func loadWith(st settings, ts TokenStore) (Config, error) {
	cfg := defaults()

	if err := applySettings(&cfg, st); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.API.Token == "" {
		if tok, err := ts.Token(); err == nil && tok != "" {
			cfg.API.Token = tok
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every out-of-range value at once.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if c.Favorites.PageSize < 1 {
		errs = append(errs, fmt.Errorf("favorites.page_size must be at least 1, got %d", c.Favorites.PageSize))
	}
	if c.Favorites.SnippetLength < 0 {
		errs = append(errs, fmt.Errorf("favorites.snippet_length must not be negative, got %d", c.Favorites.SnippetLength))
	}
	switch c.Favorites.Addressing {
	case "positional", "stable":
	default:
		errs = append(errs, fmt.Errorf("favorites.addressing must be positional or stable, got %q", c.Favorites.Addressing))
	}
	if c.Persist.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("persist.debounce must be positive, got %s", c.Persist.Debounce))
	}
	if c.Sessions.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("sessions.idle_timeout must not be negative, got %s", c.Sessions.IdleTimeout))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SlogLevel maps log.level to a slog level. Unknown values mean info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// EnsureAPIToken fills cfg.API.Token, generating and storing a new token
// the first time the server starts.
func EnsureAPIToken(cfg *Config, ts TokenStore) error {
	if cfg.API.Token != "" {
		return nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("generating API token: %w", err)
	}
	tok := hex.EncodeToString(buf)
	if err := ts.SetToken(tok); err != nil {
		return fmt.Errorf("storing API token: %w", err)
	}
	cfg.API.Token = tok
	return nil
}
