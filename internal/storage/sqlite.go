package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding conversations, their message logs
// and the per-conversation metadata document.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "starz.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("executing %q: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(field, v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", field, err)
	}
	return t, nil
}

// --- Conversations ---

// CreateConversation inserts c, assigning an ID when empty and an empty
// metadata document when none is given. The stored row is returned.
func (s *Store) CreateConversation(c Conversation) (Conversation, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Metadata == "" {
		c.Metadata = "{}"
	}
	ts := now()
	if _, err := s.db.Exec(`
		INSERT INTO conversations (id, title, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Title, c.Metadata, ts, ts,
	); err != nil {
		return Conversation{}, fmt.Errorf("inserting conversation: %w", err)
	}
	return s.GetConversation(c.ID)
}

func (s *Store) GetConversation(id string) (Conversation, error) {
	var c Conversation
	var createdAt, updatedAt string
	err := s.db.QueryRow(`
		SELECT id, title, metadata, created_at, updated_at
		FROM conversations WHERE id = ?`, id,
	).Scan(&c.ID, &c.Title, &c.Metadata, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	if c.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return Conversation{}, err
	}
	if c.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return Conversation{}, err
	}
	return c, nil
}

func (s *Store) ListConversations(limit int) ([]Conversation, error) {
	rows, err := s.db.Query(`
		SELECT id, title, metadata, created_at, updated_at
		FROM conversations ORDER BY updated_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Conversation
	for rows.Next() {
		var c Conversation
		var createdAt, updatedAt string
		if err := rows.Scan(&c.ID, &c.Title, &c.Metadata, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if c.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		if c.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// SaveMetadata replaces the metadata document of a conversation.
func (s *Store) SaveMetadata(conversationID, metadata string) error {
	res, err := s.db.Exec(`UPDATE conversations SET metadata = ?, updated_at = ? WHERE id = ?`,
		metadata, now(), conversationID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteConversation(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("deleting messages: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// --- Messages ---

const messageColumns = `id, conversation_id, position, alt_id, sender, is_user, is_system, text, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (Message, error) {
	var m Message
	var createdAt string
	if err := row.Scan(&m.ID, &m.ConversationID, &m.Position, &m.AltID, &m.Sender,
		&m.IsUser, &m.IsSystem, &m.Text, &createdAt); err != nil {
		return Message{}, err
	}
	t, err := parseTime("created_at", createdAt)
	if err != nil {
		return Message{}, err
	}
	m.CreatedAt = t
	return m, nil
}

// ListMessages returns the conversation log ordered by position.
func (s *Store) ListMessages(conversationID string) ([]Message, error) {
	rows, err := s.db.Query(`SELECT `+messageColumns+`
		FROM messages WHERE conversation_id = ? ORDER BY position ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

func (s *Store) CountMessages(conversationID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID).Scan(&n)
	return n, err
}

// InsertMessages places msgs at position p in the conversation log,
// moving every message at or after p up by len(msgs). A p outside
// [0, count] appends. The stored messages are returned with their IDs
// and positions filled in.
func (s *Store) InsertMessages(conversationID string, p int, msgs []Message) ([]Message, error) {
	if len(msgs) == 0 {
		return nil, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM conversations WHERE id = ?`, conversationID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	var count int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID).Scan(&count); err != nil {
		return nil, err
	}
	if p < 0 || p > count {
		p = count
	}

	if _, err := tx.Exec(`UPDATE messages SET position = position + ? WHERE conversation_id = ? AND position >= ?`,
		len(msgs), conversationID, p); err != nil {
		return nil, fmt.Errorf("shifting positions: %w", err)
	}

	ts := now()
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		m.ConversationID = conversationID
		m.Position = p + i
		if _, err := tx.Exec(`INSERT INTO messages (`+messageColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.ConversationID, m.Position, m.AltID, m.Sender, m.IsUser, m.IsSystem, m.Text, ts,
		); err != nil {
			return nil, fmt.Errorf("inserting message: %w", err)
		}
		if m.CreatedAt, err = parseTime("created_at", ts); err != nil {
			return nil, err
		}
		out[i] = m
	}

	if _, err := tx.Exec(`UPDATE conversations SET updated_at = ? WHERE id = ?`, ts, conversationID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing insert: %w", err)
	}
	return out, nil
}

// UpdateMessageText replaces the text of the message at position p.
func (s *Store) UpdateMessageText(conversationID string, p int, text string) (Message, error) {
	res, err := s.db.Exec(`UPDATE messages SET text = ? WHERE conversation_id = ? AND position = ?`,
		text, conversationID, p)
	if err != nil {
		return Message{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Message{}, err
	}
	if n == 0 {
		return Message{}, ErrNotFound
	}
	return scanMessage(s.db.QueryRow(`SELECT `+messageColumns+`
		FROM messages WHERE conversation_id = ? AND position = ?`, conversationID, p))
}

// DeleteMessage removes the message at position p and moves every later
// message down by one. The removed message is returned.
func (s *Store) DeleteMessage(conversationID string, p int) (Message, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return Message{}, fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	m, err := scanMessage(tx.QueryRow(`SELECT `+messageColumns+`
		FROM messages WHERE conversation_id = ? AND position = ?`, conversationID, p))
	if err == sql.ErrNoRows {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, err
	}

	if _, err := tx.Exec(`DELETE FROM messages WHERE id = ?`, m.ID); err != nil {
		return Message{}, fmt.Errorf("deleting message: %w", err)
	}
	if _, err := tx.Exec(`UPDATE messages SET position = position - 1 WHERE conversation_id = ? AND position > ?`,
		conversationID, p); err != nil {
		return Message{}, fmt.Errorf("shifting positions: %w", err)
	}
	if _, err := tx.Exec(`UPDATE conversations SET updated_at = ? WHERE id = ?`, now(), conversationID); err != nil {
		return Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("committing delete: %w", err)
	}
	return m, nil
}
