package config

import (
	"fmt"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all config key/value pairs from the current config.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprintf("%v", s.extract(cfg)),
		})
	}
	return result
}

// SetKey writes a config key to the platform settings store.
func SetKey(key, value string) error {
	return setKey(newPlatformSettings(), key, value)
}

func setKey(st settings, key, value string) error {
	s, ok := lookupSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if s.secret {
		return fmt.Errorf("cannot set secret %q via config; use environment variable %s", key, s.env)
	}

	v, err := parseValue(s, value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	// Reject values Load would refuse later.
	cfg := defaults()
	s.apply(&cfg, v)
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Canonical form: "08" is stored as "8", "90s" as "1m30s".
	return st.Store(key, fmt.Sprint(v))
}

// ValidKeys returns the list of valid non-secret config key names.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}
