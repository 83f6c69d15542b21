package favorites

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_PositionalDelete(t *testing.T) {
	reg, _ := newTestRegistry(t)
	conv := newConv()
	seed(t, reg, conv, "1", "2", "4")
	d := NewDispatcher(reg, Positional)

	out := d.Handle(conv, Event{Kind: MessageDeleted, Index: 2, MessageID: "ignored"})
	require.Len(t, out.Removed, 1)
	assert.Equal(t, "2", out.Removed[0].MessageRef)
	assert.Equal(t, 1, out.Shifted)
	assert.Equal(t, []string{"1", "3"}, reg.FavoritedRefs(conv))
}

func TestDispatcher_PositionalInsertAndMoreLoaded(t *testing.T) {
	reg, _ := newTestRegistry(t)
	conv := newConv()
	seed(t, reg, conv, "0", "3")
	d := NewDispatcher(reg, Positional)

	out := d.Handle(conv, Event{Kind: MessageAdded, Index: 3})
	assert.Equal(t, 1, out.Shifted)
	assert.Equal(t, []string{"0", "4"}, reg.FavoritedRefs(conv))

	out = d.Handle(conv, Event{Kind: MoreLoaded, Count: 5})
	assert.Equal(t, 2, out.Shifted)
	assert.Equal(t, []string{"5", "9"}, reg.FavoritedRefs(conv))

	out = d.Handle(conv, Event{Kind: MoreLoaded})
	assert.Zero(t, out.Shifted, "zero prepended messages shift nothing")
}

func TestDispatcher_AppendAtEndShiftsNothing(t *testing.T) {
	reg, p := newTestRegistry(t)
	conv := newConv()
	seed(t, reg, conv, "0", "1")
	calls := len(p.calls)

	out := NewDispatcher(reg, Positional).Handle(conv, Event{Kind: MessageAdded, Index: 2})
	assert.Zero(t, out.Shifted)
	assert.Len(t, p.calls, calls)
}

func TestDispatcher_StableDelete(t *testing.T) {
	reg, _ := newTestRegistry(t)
	conv := newConv()
	seed(t, reg, conv, "msg-1", "msg-3", "5")
	d := NewDispatcher(reg, Stable)

	out := d.Handle(conv, Event{Kind: MessageDeleted, Index: 1, MessageID: "msg-1"})
	require.Len(t, out.Removed, 1)
	assert.Equal(t, "msg-1", out.Removed[0].MessageRef)
	assert.Equal(t, 1, out.Shifted, "the index-shaped ref still moves down")
	assert.Equal(t, []string{"msg-3", "4"}, reg.FavoritedRefs(conv))

	out = d.Handle(conv, Event{Kind: MessageDeleted, Index: 4})
	require.Len(t, out.Removed, 1, "falls back to the index when no id is given")
	assert.Equal(t, []string{"msg-3"}, reg.FavoritedRefs(conv))

	out = d.Handle(conv, Event{Kind: MessageAdded, Index: 0})
	assert.Zero(t, out.Shifted)
	assert.Equal(t, []string{"msg-3"}, reg.FavoritedRefs(conv))
}

func TestDispatcher_StableShiftsIndexRefs(t *testing.T) {
	reg, _ := newTestRegistry(t)
	conv := newConv()
	seed(t, reg, conv, "msg-0", "3", "1")
	d := NewDispatcher(reg, Stable)

	out := d.Handle(conv, Event{Kind: MessageAdded, Index: 2})
	assert.Equal(t, 1, out.Shifted)
	assert.Equal(t, []string{"msg-0", "4", "1"}, reg.FavoritedRefs(conv))

	out = d.Handle(conv, Event{Kind: MoreLoaded, Count: 2})
	assert.Equal(t, 2, out.Shifted)
	assert.Equal(t, []string{"msg-0", "6", "3"}, reg.FavoritedRefs(conv))

	out = d.Handle(conv, Event{Kind: MessageDeleted, Index: 0, MessageID: "msg-9"})
	assert.Empty(t, out.Removed)
	assert.Equal(t, 2, out.Shifted)
	assert.Equal(t, []string{"msg-0", "5", "2"}, reg.FavoritedRefs(conv))
}

func TestDispatcher_RefreshEvents(t *testing.T) {
	n := &countingNotifier{}
	reg := NewRegistry(nil, WithViewNotifier(n))
	conv := newConv()
	d := NewDispatcher(reg, Positional)

	d.Handle(conv, Event{Kind: ChatChanged})
	d.Handle(conv, Event{Kind: MessageEdited, Index: 0})
	d.Handle(conv, Event{Kind: EventKind(99)})
	assert.Equal(t, 2, n.refreshes)
}

func TestDispatcher_UnavailableConversation(t *testing.T) {
	reg, _ := newTestRegistry(t)
	out := NewDispatcher(reg, Positional).Handle(&Conversation{ID: "x"}, Event{Kind: MessageDeleted})
	assert.Empty(t, out.Removed)
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "message_deleted", MessageDeleted.String())
	assert.Equal(t, "event(42)", EventKind(42).String())
}
