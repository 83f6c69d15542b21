package favorites

import (
	"encoding/json"
	"errors"
	"log/slog"
)

// ErrUnresolved is returned by Toggle when the target message is not in the log.
var ErrUnresolved = errors.New("message reference does not resolve")

// Metadata is the host-owned key/value document of a conversation. Only
// the FavoritesKey slot is touched by the registry.
type Metadata map[string]any

// Conversation is the explicit context every registry operation runs
// against. A nil Metadata means the host could not provide one.
type Conversation struct {
	ID       string
	Title    string
	Metadata Metadata
}

// Persister schedules a durable write of a conversation's metadata. It
// must not block; implementations debounce and write asynchronously.
type Persister interface {
	Schedule(conversationID string, md Metadata)
}

// ViewNotifier is told after every mutation so an open view can redraw.
type ViewNotifier interface {
	Refresh(conversationID string)
}

type nopPersister struct{}

func (nopPersister) Schedule(string, Metadata) {}

type nopNotifier struct{}

func (nopNotifier) Refresh(string) {}

// Registry owns the favorite records of whichever conversation it is
// handed. It holds no per-conversation state itself and does no locking:
// callers run each operation to completion before starting the next one
// on the same conversation.
type Registry struct {
	persist Persister
	views   ViewNotifier
	newID   func() string
	logger  *slog.Logger
}

type Option func(*Registry)

func WithViewNotifier(v ViewNotifier) Option {
	return func(r *Registry) {
		if v != nil {
			r.views = v
		}
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) {
		if fn != nil {
			r.newID = fn
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates a Registry that hands every mutation to p.
// A nil Persister discards writes.
func NewRegistry(p Persister, opts ...Option) *Registry {
	if p == nil {
		p = nopPersister{}
	}
	r := &Registry{
		persist: p,
		views:   nopNotifier{},
		newID:   NewID,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EnsureInitialized guarantees the favorites slot of conv holds a record
// array and returns it. A missing or malformed slot is replaced in place.
// It reports false, after logging, when conv has no metadata.
func (r *Registry) EnsureInitialized(conv *Conversation) ([]Record, bool) {
	if conv == nil || conv.Metadata == nil {
		r.logger.Error("favorites: conversation metadata is not available")
		return nil, false
	}
	switch v := conv.Metadata[FavoritesKey].(type) {
	case []Record:
		if v == nil {
			v = []Record{}
			conv.Metadata[FavoritesKey] = v
		}
		return v, true
	case nil:
		r.logger.Debug("favorites: initializing favorites slot", "conversation", conv.ID)
	default:
		recs, ok := r.decodeSlot(conv.ID, v)
		if ok {
			conv.Metadata[FavoritesKey] = recs
			return recs, true
		}
		r.logger.Warn("favorites: favorites slot is not an array, resetting", "conversation", conv.ID)
	}
	recs := []Record{}
	conv.Metadata[FavoritesKey] = recs
	return recs, true
}

// decodeSlot turns a generically decoded slot (as produced by
// encoding/json into an any) back into records. Entries that are not
// objects are dropped; entries lacking an id get a fresh one. Only the
// first record per message ref is kept.
func (r *Registry) decodeSlot(convID string, v any) ([]Record, bool) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	recs := make([]Record, 0, len(items))
	seen := make(map[string]bool, len(items))
	refs := make(map[string]bool, len(items))
	for _, item := range items {
		var rec Record
		if err := json.Unmarshal(item, &rec); err != nil {
			r.logger.Warn("favorites: dropping malformed record", "conversation", convID, "error", err)
			continue
		}
		if rec.MessageRef != "" {
			if refs[rec.MessageRef] {
				r.logger.Warn("favorites: dropping duplicate record", "conversation", convID, "ref", rec.MessageRef)
				continue
			}
			refs[rec.MessageRef] = true
		}
		if rec.ID == "" || seen[rec.ID] {
			rec.ID = r.newID()
		}
		seen[rec.ID] = true
		recs = append(recs, rec)
	}
	return recs, true
}

func (r *Registry) commit(conv *Conversation, recs []Record) {
	conv.Metadata[FavoritesKey] = recs
	r.persist.Schedule(conv.ID, conv.Metadata)
	r.views.Refresh(conv.ID)
}

// Add appends a record for ref. If a record for ref already exists it is
// returned unchanged, which keeps rapid repeated toggles from creating
// duplicates. The bool is false when conv is unavailable or ref is empty.
func (r *Registry) Add(conv *Conversation, ref, sender string, role Role) (Record, bool) {
	recs, ok := r.EnsureInitialized(conv)
	if !ok {
		return Record{}, false
	}
	if ref == "" {
		r.logger.Warn("favorites: refusing to add empty message reference", "conversation", conv.ID)
		return Record{}, false
	}
	if i := indexByRef(recs, ref); i >= 0 {
		r.logger.Debug("favorites: already favorited", "conversation", conv.ID, "ref", ref, "id", recs[i].ID)
		return recs[i], true
	}
	rec := Record{
		ID:         r.newID(),
		MessageRef: ref,
		Sender:     sender,
		Role:       role,
	}
	r.commit(conv, append(recs, rec))
	r.logger.Debug("favorites: added", "conversation", conv.ID, "ref", ref, "id", rec.ID)
	return rec, true
}

// RemoveByID deletes the record with the given id.
func (r *Registry) RemoveByID(conv *Conversation, id string) bool {
	recs, ok := r.EnsureInitialized(conv)
	if !ok {
		return false
	}
	i := indexByID(recs, id)
	if i < 0 {
		r.logger.Debug("favorites: remove of unknown id", "conversation", conv.ID, "id", id)
		return false
	}
	r.commit(conv, without(recs, i))
	r.logger.Debug("favorites: removed", "conversation", conv.ID, "id", id)
	return true
}

// RemoveByMessageRef deletes the record pointing at ref, if any.
func (r *Registry) RemoveByMessageRef(conv *Conversation, ref string) bool {
	recs, ok := r.EnsureInitialized(conv)
	if !ok {
		return false
	}
	i := indexByRef(recs, ref)
	if i < 0 {
		r.logger.Debug("favorites: no record for ref", "conversation", conv.ID, "ref", ref)
		return false
	}
	return r.RemoveByID(conv, recs[i].ID)
}

// UpdateNote replaces the note of the record with the given id. Unknown
// ids leave the registry untouched.
func (r *Registry) UpdateNote(conv *Conversation, id, note string) bool {
	recs, ok := r.EnsureInitialized(conv)
	if !ok {
		return false
	}
	i := indexByID(recs, id)
	if i < 0 {
		r.logger.Debug("favorites: note update for unknown id", "conversation", conv.ID, "id", id)
		return false
	}
	recs[i].Note = note
	r.commit(conv, recs)
	return true
}

// List returns the live stored sequence in insertion order. Callers must
// not modify it; read paths go through Project.
func (r *Registry) List(conv *Conversation) []Record {
	recs, _ := r.EnsureInitialized(conv)
	return recs
}

func (r *Registry) Find(conv *Conversation, id string) (Record, bool) {
	recs, ok := r.EnsureInitialized(conv)
	if !ok {
		return Record{}, false
	}
	if i := indexByID(recs, id); i >= 0 {
		return recs[i], true
	}
	return Record{}, false
}

func (r *Registry) FindByRef(conv *Conversation, ref string) (Record, bool) {
	recs, ok := r.EnsureInitialized(conv)
	if !ok {
		return Record{}, false
	}
	if i := indexByRef(recs, ref); i >= 0 {
		return recs[i], true
	}
	return Record{}, false
}

func (r *Registry) IsFavorited(conv *Conversation, ref string) bool {
	_, ok := r.FindByRef(conv, ref)
	return ok
}

// FavoritedRefs lists the message references that currently carry a record.
func (r *Registry) FavoritedRefs(conv *Conversation) []string {
	recs := r.List(conv)
	refs := make([]string, len(recs))
	for i, rec := range recs {
		refs[i] = rec.MessageRef
	}
	return refs
}

// ToggleResult reports what Toggle did.
type ToggleResult struct {
	Record Record
	Added  bool
}

// Toggle removes the record for ref if one exists, otherwise resolves ref
// against log and favorites it with the message's sender and role.
func (r *Registry) Toggle(conv *Conversation, ref string, log Log) (ToggleResult, error) {
	recs, ok := r.EnsureInitialized(conv)
	if !ok {
		return ToggleResult{}, ErrUnavailable
	}
	if i := indexByRef(recs, ref); i >= 0 {
		rec := recs[i]
		r.RemoveByID(conv, rec.ID)
		return ToggleResult{Record: rec}, nil
	}
	res := Resolve(ref, log)
	if !res.OK() {
		r.logger.Warn("favorites: toggle target not found", "conversation", conv.ID, "ref", ref)
		return ToggleResult{}, ErrUnresolved
	}
	rec, ok := r.Add(conv, ref, res.Message.Sender, RoleOf(res.Message))
	if !ok {
		return ToggleResult{}, ErrUnavailable
	}
	return ToggleResult{Record: rec, Added: true}, nil
}

// Partition splits the records of conv by whether their reference still
// resolves against log. It does not modify the registry.
func (r *Registry) Partition(conv *Conversation, log Log) (valid, invalid []Record) {
	for _, rec := range r.List(conv) {
		if Resolve(rec.MessageRef, log).OK() {
			valid = append(valid, rec)
		} else {
			invalid = append(invalid, rec)
		}
	}
	return valid, invalid
}

// PruneResult reports the outcome of Prune.
type PruneResult struct {
	Valid   []Record
	Invalid []Record
	Applied bool
}

// Prune drops every record whose reference no longer resolves, but only
// if confirm approves the invalid set. The whole batch is persisted once.
func (r *Registry) Prune(conv *Conversation, log Log, confirm func(invalid []Record) bool) PruneResult {
	if _, ok := r.EnsureInitialized(conv); !ok {
		return PruneResult{}
	}
	valid, invalid := r.Partition(conv, log)
	res := PruneResult{Valid: valid, Invalid: invalid}
	if len(invalid) == 0 || confirm == nil || !confirm(invalid) {
		return res
	}
	if valid == nil {
		valid = []Record{}
	}
	r.commit(conv, valid)
	res.Applied = true
	r.logger.Info("favorites: pruned invalid records", "conversation", conv.ID, "count", len(invalid))
	return res
}

func indexByID(recs []Record, id string) int {
	for i := range recs {
		if recs[i].ID == id {
			return i
		}
	}
	return -1
}

func indexByRef(recs []Record, ref string) int {
	for i := range recs {
		if recs[i].MessageRef == ref {
			return i
		}
	}
	return -1
}

// without returns a new slice lacking element i, leaving recs intact for
// anyone still holding it.
func without(recs []Record, i int) []Record {
	out := make([]Record, 0, len(recs)-1)
	out = append(out, recs[:i]...)
	return append(out, recs[i+1:]...)
}
