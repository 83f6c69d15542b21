package chat

import (
	"github.com/kalambet/starz/internal/favorites"
)

// Entry is a favorite with a plain-text preview of the message it points
// at. Deleted is set when the reference no longer resolves.
type Entry struct {
	favorites.Record
	Snippet  string `json:"snippet"`
	Deleted  bool   `json:"deleted"`
	Position *int   `json:"position,omitempty"`
}

// Listing is one page of a conversation's favorites.
type Listing struct {
	ConversationID string  `json:"conversation_id"`
	Title          string  `json:"title"`
	Items          []Entry `json:"items"`
	TotalCount     int     `json:"total_count"`
	TotalPages     int     `json:"total_pages"`
	Page           int     `json:"page"`
	PageSize       int     `json:"page_size"`
}

// ContextMessage is one message of a favorite's preview window.
type ContextMessage struct {
	Position int    `json:"position"`
	Sender   string `json:"sender"`
	IsUser   bool   `json:"is_user"`
	Text     string `json:"text"`
	Target   bool   `json:"target"`
}

// ToggleResult reports the record affected by Toggle.
type ToggleResult struct {
	Record favorites.Record `json:"record"`
	Added  bool             `json:"added"`
}

func (s *Service) entry(sess *session, rec favorites.Record) Entry {
	e := Entry{Record: rec}
	res := favorites.Resolve(rec.MessageRef, sess.log)
	if !res.OK() {
		e.Deleted = true
		return e
	}
	pos := res.Index
	e.Position = &pos
	e.Snippet = favorites.Snippet(res.Message.Text, s.snippetLen)
	return e
}

// Favorites returns one page of favorites, newest position first. A
// pageSize below one uses the configured default.
func (s *Service) Favorites(conversationID string, page, pageSize int) (Listing, error) {
	if pageSize < 1 {
		pageSize = s.pageSize
	}
	var out Listing
	err := s.withSession(conversationID, func(sess *session) error {
		p := favorites.Project(s.reg.List(sess.conv), page, pageSize)
		out = Listing{
			ConversationID: sess.conv.ID,
			Title:          sess.conv.Title,
			Items:          make([]Entry, len(p.Items)),
			TotalCount:     p.TotalCount,
			TotalPages:     p.TotalPages,
			Page:           p.Page,
			PageSize:       p.PageSize,
		}
		for i, rec := range p.Items {
			out.Items[i] = s.entry(sess, rec)
		}
		return nil
	})
	return out, err
}

// Status returns the references currently favorited, for marking messages.
func (s *Service) Status(conversationID string) ([]string, error) {
	var out []string
	err := s.withSession(conversationID, func(sess *session) error {
		out = s.reg.FavoritedRefs(sess.conv)
		return nil
	})
	if out == nil {
		out = []string{}
	}
	return out, err
}

// Add favorites the message ref resolves to. The stored reference follows
// the configured addressing, so a position may be stored as a message id.
// Adding an already favorited message returns the existing record.
func (s *Service) Add(conversationID, ref string) (favorites.Record, error) {
	var out favorites.Record
	err := s.withSession(conversationID, func(sess *session) error {
		res := favorites.Resolve(ref, sess.log)
		if !res.OK() {
			return favorites.ErrUnresolved
		}
		canonical := favorites.RefFor(s.Addressing(), res.Message, res.Index)
		existed := s.reg.IsFavorited(sess.conv, canonical)
		rec, ok := s.reg.Add(sess.conv, canonical, res.Message.Sender, favorites.RoleOf(res.Message))
		if !ok {
			return ErrConversationUnavailable
		}
		if !existed {
			s.metrics.Added()
		}
		out = rec
		return nil
	})
	return out, err
}

// Toggle removes the favorite stored under ref, or adds one for the
// message ref resolves to.
func (s *Service) Toggle(conversationID, ref string) (ToggleResult, error) {
	var out ToggleResult
	err := s.withSession(conversationID, func(sess *session) error {
		target := ref
		if !s.reg.IsFavorited(sess.conv, ref) {
			if res := favorites.Resolve(ref, sess.log); res.OK() {
				target = favorites.RefFor(s.Addressing(), res.Message, res.Index)
			}
		}
		res, err := s.reg.Toggle(sess.conv, target, sess.log)
		if err != nil {
			return err
		}
		if res.Added {
			s.metrics.Added()
		} else {
			s.metrics.Removed("user", 1)
		}
		out = ToggleResult{Record: res.Record, Added: res.Added}
		return nil
	})
	return out, err
}

func (s *Service) UpdateNote(conversationID, id, note string) (favorites.Record, error) {
	var out favorites.Record
	err := s.withSession(conversationID, func(sess *session) error {
		if !s.reg.UpdateNote(sess.conv, id, note) {
			return ErrFavoriteNotFound
		}
		out, _ = s.reg.Find(sess.conv, id)
		return nil
	})
	return out, err
}

func (s *Service) Remove(conversationID, id string) error {
	return s.withSession(conversationID, func(sess *session) error {
		if !s.reg.RemoveByID(sess.conv, id) {
			return ErrFavoriteNotFound
		}
		s.metrics.Removed("user", 1)
		return nil
	})
}

func (s *Service) RemoveByRef(conversationID, ref string) error {
	return s.withSession(conversationID, func(sess *session) error {
		if !s.reg.RemoveByMessageRef(sess.conv, ref) {
			return ErrFavoriteNotFound
		}
		s.metrics.Removed("user", 1)
		return nil
	})
}

// Preview returns the favorited message and its neighbours.
func (s *Service) Preview(conversationID, id string) ([]ContextMessage, error) {
	var out []ContextMessage
	err := s.withSession(conversationID, func(sess *session) error {
		rec, ok := s.reg.Find(sess.conv, id)
		if !ok {
			return ErrFavoriteNotFound
		}
		entries, ok := favorites.Preview(rec.MessageRef, sess.log)
		if !ok {
			return favorites.ErrUnresolved
		}
		out = make([]ContextMessage, len(entries))
		for i, e := range entries {
			out[i] = ContextMessage{
				Position: e.Index,
				Sender:   e.Message.Sender,
				IsUser:   e.Message.IsUser,
				Text:     e.Message.Text,
				Target:   e.Target,
			}
		}
		return nil
	})
	return out, err
}

// Invalid lists the favorites whose reference no longer resolves.
func (s *Service) Invalid(conversationID string) ([]favorites.Record, error) {
	var out []favorites.Record
	err := s.withSession(conversationID, func(sess *session) error {
		_, out = s.reg.Partition(sess.conv, sess.log)
		return nil
	})
	if out == nil {
		out = []favorites.Record{}
	}
	return out, err
}

// PruneResult reports what Prune found and whether it removed anything.
type PruneResult struct {
	Invalid []favorites.Record `json:"invalid"`
	Kept    int                `json:"kept"`
	Applied bool               `json:"applied"`
}

// Prune removes every unresolvable favorite in one write when confirm is
// true. Without confirmation it only reports them.
func (s *Service) Prune(conversationID string, confirm bool) (PruneResult, error) {
	var out PruneResult
	err := s.withSession(conversationID, func(sess *session) error {
		res := s.reg.Prune(sess.conv, sess.log, func([]favorites.Record) bool { return confirm })
		if res.Applied {
			s.metrics.Removed("pruned", len(res.Invalid))
		}
		out = PruneResult{Invalid: res.Invalid, Kept: len(res.Valid), Applied: res.Applied}
		return nil
	})
	if out.Invalid == nil {
		out.Invalid = []favorites.Record{}
	}
	return out, err
}
