package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

type Conversation struct {
	ID        string
	Title     string
	Metadata  string // JSON object stored as text
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one entry of a conversation log. Position is the zero-based
// index in the log and is renumbered on insert and delete.
type Message struct {
	ID             string
	ConversationID string
	Position       int
	AltID          string
	Sender         string
	IsUser         bool
	IsSystem       bool
	Text           string
	CreatedAt      time.Time
}
