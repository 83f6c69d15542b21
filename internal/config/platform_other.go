//go:build !darwin

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// xdgDir resolves an XDG base directory, falling back to fallback under
// the home directory, and joins the starz subdirectory.
func xdgDir(env string, fallback ...string) string {
	dir := os.Getenv(env)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "starz-data"
		}
		dir = filepath.Join(append([]string{home}, fallback...)...)
	}
	return filepath.Join(dir, "starz")
}

func defaultDataDir() string { return xdgDir("XDG_DATA_HOME", ".local", "share") }

func configFilePath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "config.json")
}

func tokenFilePath() string {
	return filepath.Join(defaultDataDir(), "secrets.json")
}

// SecretLocation tells users where the API token is kept.
func SecretLocation() string { return tokenFilePath() }

// readJSON decodes path into v. A missing file is reported as false.
func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("parsing %s: %w", path, err)
	}
	return true, nil
}

// writeJSON replaces path with v, readable by the owner only.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

// fileSettings keeps `starz config set` values in a flat JSON object.
// Hand-edited files may hold numbers or booleans; they are read back as
// their JSON text.
type fileSettings struct {
	path   string
	values map[string]json.RawMessage
}

func newPlatformSettings() settings {
	s := &fileSettings{path: configFilePath(), values: map[string]json.RawMessage{}}
	if _, err := readJSON(s.path, &s.values); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] ignoring config file: %v. Using default values.\n", err)
		s.values = map[string]json.RawMessage{}
	}
	return s
}

func (s *fileSettings) Lookup(key string) (string, bool, error) {
	raw, ok := s.values[key]
	if !ok {
		return "", false, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, true, nil
	}
	return strings.TrimSpace(string(raw)), true, nil
}

func (s *fileSettings) Store(key, raw string) error {
	v, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	s.values[key] = v
	return writeJSON(s.path, s.values)
}

// tokenFile is the secrets file: it holds the API token and nothing else.
type tokenFile struct {
	path string
}

type tokenDoc struct {
	APIToken string `json:"api_token"`
}

func NewTokenStore() TokenStore { return tokenFile{path: tokenFilePath()} }

func (f tokenFile) Token() (string, error) {
	var doc tokenDoc
	found, err := readJSON(f.path, &doc)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("no API token at %s", f.path)
	}
	return strings.TrimSpace(doc.APIToken), nil
}

func (f tokenFile) SetToken(token string) error {
	return writeJSON(f.path, tokenDoc{APIToken: token})
}
