package favorites

import (
	"fmt"
	"log/slog"
)

// EventKind enumerates the host log notifications the registry reacts to.
type EventKind int

const (
	ChatChanged EventKind = iota + 1
	MessageDeleted
	MessageAdded
	MessageEdited
	MoreLoaded
)

func (k EventKind) String() string {
	switch k {
	case ChatChanged:
		return "chat_changed"
	case MessageDeleted:
		return "message_deleted"
	case MessageAdded:
		return "message_added"
	case MessageEdited:
		return "message_edited"
	case MoreLoaded:
		return "more_loaded"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a host log notification. Index is the affected position;
// MessageID the stable id of a deleted message when the host has one;
// Count the number of messages prepended by MoreLoaded.
type Event struct {
	Kind      EventKind
	Index     int
	MessageID string
	Count     int
}

// Outcome summarises what handling an event changed.
type Outcome struct {
	Removed []Record
	Shifted int
}

// Dispatcher routes host notifications into the registry. It must see
// every log mutation before the next resolution, add or projection on the
// same conversation.
type Dispatcher struct {
	reg        *Registry
	rec        *Reconciler
	addressing Addressing
	logger     *slog.Logger
}

func NewDispatcher(reg *Registry, addressing Addressing) *Dispatcher {
	return &Dispatcher{
		reg:        reg,
		rec:        NewReconciler(reg),
		addressing: addressing,
		logger:     reg.logger,
	}
}

func (d *Dispatcher) Addressing() Addressing { return d.addressing }

// Handle applies ev to conv. Index-shaped refs are renumbered in both
// addressing modes: under Stable they are left over from positional mode
// or from messages that had no id.
func (d *Dispatcher) Handle(conv *Conversation, ev Event) Outcome {
	if _, ok := d.reg.EnsureInitialized(conv); !ok {
		return Outcome{}
	}
	d.logger.Debug("favorites: host event", "conversation", conv.ID, "kind", ev.Kind.String(), "index", ev.Index)

	switch ev.Kind {
	case MessageDeleted:
		var out Outcome
		if d.addressing == Stable && ev.MessageID != "" {
			if rec, ok := d.reg.FindByRef(conv, ev.MessageID); ok {
				d.reg.RemoveByID(conv, rec.ID)
				out.Removed = append(out.Removed, rec)
			}
		}
		removed, shifted := d.rec.Deleted(conv, ev.Index)
		out.Removed = append(out.Removed, removed...)
		out.Shifted = shifted
		return out

	case MessageAdded:
		return Outcome{Shifted: d.rec.Inserted(conv, ev.Index, 1)}

	case MoreLoaded:
		if ev.Count > 0 {
			return Outcome{Shifted: d.rec.Inserted(conv, 0, ev.Count)}
		}

	case ChatChanged, MessageEdited:
		d.reg.views.Refresh(conv.ID)

	default:
		d.logger.Warn("favorites: ignoring unknown host event", "conversation", conv.ID, "kind", ev.Kind.String())
	}
	return Outcome{}
}
