package chat

import (
	"errors"
	"fmt"

	"github.com/kalambet/starz/internal/favorites"
	"github.com/kalambet/starz/internal/storage"
)

// MessageInput is a new log entry supplied by a client.
type MessageInput struct {
	Sender   string `json:"sender"`
	IsUser   bool   `json:"is_user"`
	IsSystem bool   `json:"is_system"`
	Text     string `json:"text"`
	AltID    string `json:"alt_id,omitempty"`
}

func (in MessageInput) row() storage.Message {
	return storage.Message{
		Sender:   in.Sender,
		IsUser:   in.IsUser,
		IsSystem: in.IsSystem,
		Text:     in.Text,
		AltID:    in.AltID,
	}
}

// MessageView is one log entry as shown to clients.
type MessageView struct {
	Position  int    `json:"position"`
	ID        string `json:"id"`
	AltID     string `json:"alt_id,omitempty"`
	Sender    string `json:"sender"`
	IsUser    bool   `json:"is_user"`
	IsSystem  bool   `json:"is_system"`
	Text      string `json:"text"`
	Favorited bool   `json:"favorited"`
}

func (s *Service) view(sess *session, i int) MessageView {
	m := sess.rows[i]
	ref := favorites.RefFor(s.Addressing(), sess.log[i], i)
	return MessageView{
		Position:  i,
		ID:        m.ID,
		AltID:     m.AltID,
		Sender:    m.Sender,
		IsUser:    m.IsUser,
		IsSystem:  m.IsSystem,
		Text:      m.Text,
		Favorited: s.reg.IsFavorited(sess.conv, ref),
	}
}

// Messages returns the conversation log with each entry's favorite status.
func (s *Service) Messages(conversationID string) ([]MessageView, error) {
	var out []MessageView
	err := s.withSession(conversationID, func(sess *session) error {
		out = make([]MessageView, len(sess.rows))
		for i := range sess.rows {
			out[i] = s.view(sess, i)
		}
		return nil
	})
	return out, err
}

// InsertMessage stores in at position p, appending when p is out of range,
// and tells the registry about the shift.
func (s *Service) InsertMessage(conversationID string, p int, in MessageInput) (MessageView, error) {
	var out MessageView
	err := s.withSession(conversationID, func(sess *session) error {
		stored, err := s.store.InsertMessages(conversationID, p, []storage.Message{in.row()})
		if err != nil {
			return s.storeErr(conversationID, err)
		}
		m := stored[0]
		sess.rows = insertAt(sess.rows, m.Position, stored)
		sess.log = toLog(sess.rows)
		s.sync(conversationID, s.handle(sess, favorites.Event{Kind: favorites.MessageAdded, Index: m.Position}))
		out = s.view(sess, m.Position)
		return nil
	})
	return out, err
}

// PrependMessages stores msgs at the top of the log, the way a host loads
// older history.
func (s *Service) PrependMessages(conversationID string, in []MessageInput) ([]MessageView, error) {
	if len(in) == 0 {
		return []MessageView{}, nil
	}
	var out []MessageView
	err := s.withSession(conversationID, func(sess *session) error {
		rows := make([]storage.Message, len(in))
		for i, m := range in {
			rows[i] = m.row()
		}
		stored, err := s.store.InsertMessages(conversationID, 0, rows)
		if err != nil {
			return s.storeErr(conversationID, err)
		}
		sess.rows = insertAt(sess.rows, 0, stored)
		sess.log = toLog(sess.rows)
		s.sync(conversationID, s.handle(sess, favorites.Event{Kind: favorites.MoreLoaded, Count: len(stored)}))
		out = make([]MessageView, len(stored))
		for i := range stored {
			out[i] = s.view(sess, i)
		}
		return nil
	})
	return out, err
}

// EditMessage replaces the text at position p.
func (s *Service) EditMessage(conversationID string, p int, text string) (MessageView, error) {
	var out MessageView
	err := s.withSession(conversationID, func(sess *session) error {
		m, err := s.store.UpdateMessageText(conversationID, p, text)
		if err != nil {
			return s.storeErr(conversationID, err)
		}
		if p >= 0 && p < len(sess.rows) {
			sess.rows[p] = m
			sess.log[p] = toMessage(m)
		}
		s.handle(sess, favorites.Event{Kind: favorites.MessageEdited, Index: p})
		out = s.view(sess, p)
		return nil
	})
	return out, err
}

// DeleteMessage removes the message at position p. Returned are the
// favorites that pointed at it and were dropped with it.
func (s *Service) DeleteMessage(conversationID string, p int) ([]favorites.Record, error) {
	var removed []favorites.Record
	err := s.withSession(conversationID, func(sess *session) error {
		m, err := s.store.DeleteMessage(conversationID, p)
		if err != nil {
			return s.storeErr(conversationID, err)
		}
		if p < len(sess.rows) {
			sess.rows = append(sess.rows[:p:p], sess.rows[p+1:]...)
			sess.log = toLog(sess.rows)
		}
		out := s.handle(sess, favorites.Event{Kind: favorites.MessageDeleted, Index: p, MessageID: m.ID})
		s.sync(conversationID, out)
		removed = out.Removed
		return nil
	})
	if removed == nil {
		removed = []favorites.Record{}
	}
	return removed, err
}

func (s *Service) storeErr(conversationID string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrMessageNotFound
	}
	return fmt.Errorf("updating log of %s: %w", conversationID, err)
}

func insertAt(rows []storage.Message, p int, add []storage.Message) []storage.Message {
	if p > len(rows) {
		p = len(rows)
	}
	out := make([]storage.Message, 0, len(rows)+len(add))
	out = append(out, rows[:p]...)
	out = append(out, add...)
	return append(out, rows[p:]...)
}
