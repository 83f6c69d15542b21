//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const (
	defaultsDomain  = "com.starz.app"
	keychainService = "starz"
	keychainAccount = "api_token"
)

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "Library", "Application Support", "starz")
	}
	return "starz-data"
}

// SecretLocation tells users where the API token is kept.
func SecretLocation() string {
	return fmt.Sprintf("macOS Keychain (service: %s, account: %s)", keychainService, keychainAccount)
}

// userDefaults keeps settings in the app's UserDefaults domain. Values are
// written as strings and parsed per key on load.
type userDefaults struct {
	domain string
}

func newPlatformSettings() settings { return userDefaults{domain: defaultsDomain} }

func (d userDefaults) Lookup(key string) (string, bool, error) {
	out, err := exec.Command("defaults", "read", d.domain, key).CombinedOutput()
	text := strings.TrimSpace(string(out))
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return text, true, nil
	case errors.As(err, &exitErr) && exitErr.ExitCode() == 1:
		// defaults exits 1 for a key that was never written.
		return "", false, nil
	default:
		return "", false, fmt.Errorf("defaults read %s: %w: %s", key, err, text)
	}
}

func (d userDefaults) Store(key, raw string) error {
	if out, err := exec.Command("defaults", "write", d.domain, key, "-string", raw).CombinedOutput(); err != nil {
		return fmt.Errorf("defaults write %s: %w: %s", key, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// keychainToken keeps the API token as a generic password.
type keychainToken struct{}

func NewTokenStore() TokenStore { return keychainToken{} }

func (keychainToken) Token() (string, error) {
	out, err := exec.Command("security", "find-generic-password",
		"-s", keychainService, "-a", keychainAccount, "-w").Output()
	if err != nil {
		return "", fmt.Errorf("reading API token from keychain: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (keychainToken) SetToken(token string) error {
	return exec.Command("security", "add-generic-password", "-U",
		"-s", keychainService, "-a", keychainAccount, "-w", token).Run()
}
