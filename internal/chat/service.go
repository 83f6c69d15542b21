// Package chat hosts conversation sessions for the daemon. A session pairs
// the stored message log of one conversation with its metadata document and
// runs every favorites operation and log mutation on it one at a time.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/starz/internal/favorites"
	"github.com/kalambet/starz/internal/metrics"
	"github.com/kalambet/starz/internal/storage"
)

var (
	// ErrConversationUnavailable means the conversation does not exist or
	// its context could not be loaded.
	ErrConversationUnavailable = errors.New("conversation unavailable")
	ErrFavoriteNotFound        = errors.New("favorite not found")
	ErrMessageNotFound         = errors.New("message not found")
)

// Store is the subset of storage.Store the service needs.
type Store interface {
	CreateConversation(c storage.Conversation) (storage.Conversation, error)
	GetConversation(id string) (storage.Conversation, error)
	ListConversations(limit int) ([]storage.Conversation, error)
	ListMessages(conversationID string) ([]storage.Message, error)
	InsertMessages(conversationID string, p int, msgs []storage.Message) ([]storage.Message, error)
	UpdateMessageText(conversationID string, p int, text string) (storage.Message, error)
	DeleteMessage(conversationID string, p int) (storage.Message, error)
}

// Syncer is implemented by persisters that can write a conversation's
// metadata on demand and tell whether a write is still outstanding.
// persist.Flusher is one.
type Syncer interface {
	Sync(ctx context.Context, conversationID string) error
	Busy(conversationID string) bool
}

const syncTimeout = 5 * time.Second

// Options tune listing and addressing behaviour.
type Options struct {
	Addressing    favorites.Addressing
	PageSize      int
	SnippetLength int
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

type session struct {
	mu   sync.Mutex
	conv *favorites.Conversation
	log  favorites.Log
	// rows backs log index for index.
	rows     []storage.Message
	lastUsed time.Time
	// evicted is set under mu once the session left the cache; holders
	// must reload.
	evicted bool
}

// Service is safe for concurrent use. Operations on the same conversation
// are serialised; different conversations proceed independently.
type Service struct {
	store      Store
	reg        *favorites.Registry
	dispatch   *favorites.Dispatcher
	pageSize   int
	snippetLen int
	metrics    *metrics.Metrics
	logger     *slog.Logger
	syncer     Syncer
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// NewService wires a registry that persists through p and notifies views.
// Either may be nil. When p is also a Syncer, log mutations that move or
// drop favorites are written before they return and idle sessions can be
// evicted.
func NewService(store Store, p favorites.Persister, views favorites.ViewNotifier, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PageSize < 1 {
		opts.PageSize = favorites.DefaultPageSize
	}
	regOpts := []favorites.Option{favorites.WithLogger(logger)}
	if views != nil {
		regOpts = append(regOpts, favorites.WithViewNotifier(countingViews{views, opts.Metrics}))
	}
	reg := favorites.NewRegistry(p, regOpts...)
	syncer, _ := p.(Syncer)
	return &Service{
		store:      store,
		reg:        reg,
		dispatch:   favorites.NewDispatcher(reg, opts.Addressing),
		pageSize:   opts.PageSize,
		snippetLen: opts.SnippetLength,
		metrics:    opts.Metrics,
		logger:     logger,
		syncer:     syncer,
		now:        time.Now,
		sessions:   make(map[string]*session),
	}
}

type countingViews struct {
	next    favorites.ViewNotifier
	metrics *metrics.Metrics
}

func (c countingViews) Refresh(conversationID string) {
	c.metrics.ViewRefreshed()
	c.next.Refresh(conversationID)
}

// Addressing reports how new favorites reference their messages.
func (s *Service) Addressing() favorites.Addressing { return s.dispatch.Addressing() }

// withSession runs fn with the conversation's session locked, loading it
// from the store on first use.
func (s *Service) withSession(conversationID string, fn func(*session) error) error {
	for {
		sess, err := s.session(conversationID)
		if err != nil {
			return err
		}
		sess.mu.Lock()
		if sess.evicted {
			sess.mu.Unlock()
			continue
		}
		defer sess.mu.Unlock()
		sess.lastUsed = s.now()
		return fn(sess)
	}
}

// EvictIdle drops cached sessions that have not been used for maxIdle.
// They reload from the store on next use. A session stays cached while it
// is in use or its metadata has not reached the store yet, and nothing is
// evicted unless the persister is a Syncer. It returns how many sessions
// were dropped.
func (s *Service) EvictIdle(maxIdle time.Duration) int {
	if s.syncer == nil {
		return 0
	}
	cutoff := s.now().Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if !sess.mu.TryLock() {
			continue
		}
		if sess.lastUsed.After(cutoff) || s.syncer.Busy(id) {
			sess.mu.Unlock()
			continue
		}
		sess.evicted = true
		delete(s.sessions, id)
		sess.mu.Unlock()
		n++
	}
	if n > 0 {
		s.metrics.SetSessions(len(s.sessions))
		s.logger.Debug("evicted idle sessions", "count", n, "remaining", len(s.sessions))
	}
	return n
}

func (s *Service) session(conversationID string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[conversationID]; ok {
		return sess, nil
	}

	c, err := s.store.GetConversation(conversationID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrConversationUnavailable, conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading conversation %s: %w", conversationID, err)
	}
	rows, err := s.store.ListMessages(conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading messages for %s: %w", conversationID, err)
	}

	md := favorites.Metadata{}
	if c.Metadata != "" {
		if err := json.Unmarshal([]byte(c.Metadata), &md); err != nil || md == nil {
			s.logger.Warn("resetting unreadable conversation metadata", "conversation", conversationID, "error", err)
			md = favorites.Metadata{}
		}
	}

	sess := &session{
		conv:     &favorites.Conversation{ID: c.ID, Title: c.Title, Metadata: md},
		rows:     rows,
		log:      toLog(rows),
		lastUsed: s.now(),
	}
	s.dispatch.Handle(sess.conv, favorites.Event{Kind: favorites.ChatChanged})
	s.sessions[conversationID] = sess
	s.metrics.SetSessions(len(s.sessions))
	return sess, nil
}

func toMessage(m storage.Message) favorites.Message {
	return favorites.Message{
		ID:       m.ID,
		AltID:    m.AltID,
		Sender:   m.Sender,
		IsUser:   m.IsUser,
		IsSystem: m.IsSystem,
		Text:     m.Text,
	}
}

func toLog(rows []storage.Message) favorites.Log {
	log := make(favorites.Log, len(rows))
	for i, m := range rows {
		log[i] = toMessage(m)
	}
	return log
}

func (s *Service) handle(sess *session, ev favorites.Event) favorites.Outcome {
	out := s.dispatch.Handle(sess.conv, ev)
	s.metrics.HostEvent(ev.Kind.String())
	s.metrics.Removed("deleted", len(out.Removed))
	s.metrics.Shifted(out.Shifted)
	return out
}

// sync writes the metadata of a log mutation that moved or dropped
// favorites before the mutation is acknowledged, so the stored log and the
// stored refs never disagree across a restart.
func (s *Service) sync(conversationID string, out favorites.Outcome) {
	if s.syncer == nil || (len(out.Removed) == 0 && out.Shifted == 0) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()
	if err := s.syncer.Sync(ctx, conversationID); err != nil {
		s.logger.Warn("writing reconciled favorites", "conversation", conversationID, "error", err)
	}
}

// --- Conversations ---

func (s *Service) CreateConversation(title string) (storage.Conversation, error) {
	c, err := s.store.CreateConversation(storage.Conversation{Title: title})
	if err != nil {
		return storage.Conversation{}, fmt.Errorf("creating conversation: %w", err)
	}
	return c, nil
}

func (s *Service) ListConversations(limit int) ([]storage.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListConversations(limit)
}
