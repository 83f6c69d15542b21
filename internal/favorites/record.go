// Package favorites keeps a per-conversation set of favorite message
// references consistent with a host message log that it does not own.
package favorites

import (
	"errors"

	"github.com/google/uuid"
)

// FavoritesKey is the metadata slot holding the serialized registry.
const FavoritesKey = "favorites"

// ErrUnavailable is reported when a conversation has no metadata to work on.
var ErrUnavailable = errors.New("conversation metadata unavailable")

type Role string

const (
	RoleUser      Role = "user"
	RoleCharacter Role = "character"
)

// Record is one favorite. The JSON shape is the on-disk format stored
// under FavoritesKey.
type Record struct {
	ID         string `json:"id"`
	MessageRef string `json:"messageRef"`
	Sender     string `json:"sender"`
	Role       Role   `json:"role"`
	Note       string `json:"note"`
}

// NewID returns a fresh record identifier.
func NewID() string {
	return uuid.New().String()
}

// Addressing selects how message references are formed.
type Addressing string

const (
	// Positional refs are decimal indices into the host log and must be
	// reconciled whenever the log shifts.
	Positional Addressing = "positional"
	// Stable refs are per-message identifiers that survive reordering.
	Stable Addressing = "stable"
)

// ParseAddressing maps a config value onto an Addressing, defaulting to
// Positional for anything unrecognised.
func ParseAddressing(s string) Addressing {
	if Addressing(s) == Stable {
		return Stable
	}
	return Positional
}

// RefFor returns the reference a message at index i is favorited under.
func RefFor(a Addressing, m Message, i int) string {
	if a == Stable && m.ID != "" {
		return m.ID
	}
	return formatIndex(i)
}

// RoleOf is the role a favorite of m is recorded with.
func RoleOf(m Message) Role {
	if m.IsUser {
		return RoleUser
	}
	return RoleCharacter
}
