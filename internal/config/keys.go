package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// settings is where `starz config set` persists values. Everything is
// kept as text and parsed per key, the same way environment overrides are.
type settings interface {
	Lookup(key string) (raw string, ok bool, err error)
	Store(key, raw string) error
}

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "STARZ_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "STARZ_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "STARZ_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "favorites.page_size", typ: kInt, env: "STARZ_FAVORITES_PAGE_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Favorites.PageSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Favorites.PageSize },
	},
	{
		key: "favorites.addressing", typ: kString, env: "STARZ_FAVORITES_ADDRESSING",
		apply:   func(cfg *Config, v any) { cfg.Favorites.Addressing = v.(string) },
		extract: func(cfg Config) any { return cfg.Favorites.Addressing },
	},
	{
		key: "favorites.snippet_length", typ: kInt, env: "STARZ_FAVORITES_SNIPPET_LENGTH",
		apply:   func(cfg *Config, v any) { cfg.Favorites.SnippetLength = v.(int) },
		extract: func(cfg Config) any { return cfg.Favorites.SnippetLength },
	},
	{
		key: "persist.debounce", typ: kDuration, env: "STARZ_PERSIST_DEBOUNCE",
		apply:   func(cfg *Config, v any) { cfg.Persist.Debounce = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Persist.Debounce },
	},
	{
		key: "sessions.idle_timeout", typ: kDuration, env: "STARZ_SESSIONS_IDLE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Sessions.IdleTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Sessions.IdleTimeout },
	},
	{
		key: "metrics.enabled", typ: kBool, env: "STARZ_METRICS_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Metrics.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Metrics.Enabled },
	},
	{
		key: "api.token", typ: kString, env: "STARZ_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parseValue converts raw text to the Go type the key's apply func expects.
func parseValue(s keySpec, raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kDuration:
		return time.ParseDuration(raw)
	}
	return raw, nil
}

// applySettings reads every non-secret key from st. A value that does not
// parse is reported and the default kept; a store that cannot be read is
// an error.
func applySettings(cfg *Config, st settings) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		raw, ok, err := st.Lookup(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || raw == "" {
			continue
		}
		v, err := parseValue(s, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := parseValue(s, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
