//go:build !darwin

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileSettings_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	if err := SetKey("favorites.snippet_length", "40"); err != nil {
		t.Fatalf("SetKey: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "starz", "config.json")); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	clearEnv(t)
	cfg, err := loadWith(newPlatformSettings(), &mockTokens{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Favorites.SnippetLength != 40 {
		t.Errorf("SnippetLength = %d, want 40", cfg.Favorites.SnippetLength)
	}
}

func TestFileSettings_HandEditedValues(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	path := filepath.Join(dir, "starz", "config.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	doc := `{"server.port": 5100, "metrics.enabled": false, "favorites.addressing": "stable"}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	clearEnv(t)
	cfg, err := loadWith(newPlatformSettings(), &mockTokens{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 5100 || cfg.Metrics.Enabled || cfg.Favorites.Addressing != "stable" {
		t.Errorf("got port=%d metrics=%v addressing=%q", cfg.Server.Port, cfg.Metrics.Enabled, cfg.Favorites.Addressing)
	}
}

func TestTokenFile(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	ts := NewTokenStore()

	if _, err := ts.Token(); err == nil {
		t.Fatal("expected error before the secrets file exists")
	}
	if err := ts.SetToken("tok\n"); err != nil {
		t.Fatalf("SetToken: %v", err)
	}
	got, err := ts.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if got != "tok" {
		t.Errorf("Token = %q, want tok", got)
	}

	data, err := os.ReadFile(SecretLocation())
	if err != nil {
		t.Fatalf("reading secrets file: %v", err)
	}
	if !strings.Contains(string(data), `"api_token"`) || strings.Count(string(data), ":") != 1 {
		t.Errorf("secrets file should hold only the token, got %s", data)
	}
}
