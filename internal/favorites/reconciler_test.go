package favorites

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, reg *Registry, conv *Conversation, refs ...string) map[string]string {
	t.Helper()
	ids := make(map[string]string, len(refs))
	for _, ref := range refs {
		rec, ok := reg.Add(conv, ref, "s", RoleUser)
		require.True(t, ok)
		ids[ref] = rec.ID
	}
	return ids
}

func TestReconciler_Deleted(t *testing.T) {
	reg, p := newTestRegistry(t)
	conv := newConv()
	ids := seed(t, reg, conv, "0", "2", "3", "5", "stable-x")
	calls := len(p.calls)

	removed, shifted := NewReconciler(reg).Deleted(conv, 2)

	require.Len(t, removed, 1)
	assert.Equal(t, ids["2"], removed[0].ID)
	assert.Equal(t, 2, shifted)
	assert.Equal(t, []string{"0", "2", "4", "stable-x"}, reg.FavoritedRefs(conv))

	got, _ := reg.Find(conv, ids["3"])
	assert.Equal(t, "2", got.MessageRef, "record keeps its id while its ref shifts")
	got, _ = reg.Find(conv, ids["5"])
	assert.Equal(t, "4", got.MessageRef)
	assert.Len(t, p.calls, calls+1)
}

func TestReconciler_DeletedAboveAllRecords(t *testing.T) {
	reg, p := newTestRegistry(t)
	conv := newConv()
	seed(t, reg, conv, "0", "1")
	calls := len(p.calls)

	removed, shifted := NewReconciler(reg).Deleted(conv, 9)
	assert.Empty(t, removed)
	assert.Zero(t, shifted)
	assert.Equal(t, []string{"0", "1"}, reg.FavoritedRefs(conv))
	assert.Len(t, p.calls, calls, "no change, no write")
}

func TestReconciler_DeletedNegativeIgnored(t *testing.T) {
	reg, _ := newTestRegistry(t)
	conv := newConv()
	seed(t, reg, conv, "0")

	removed, shifted := NewReconciler(reg).Deleted(conv, -1)
	assert.Empty(t, removed)
	assert.Zero(t, shifted)
}

func TestReconciler_Inserted(t *testing.T) {
	reg, _ := newTestRegistry(t)
	conv := newConv()
	seed(t, reg, conv, "0", "1", "4", "abc")

	shifted := NewReconciler(reg).Inserted(conv, 1, 1)
	assert.Equal(t, 2, shifted)
	assert.Equal(t, []string{"0", "2", "5", "abc"}, reg.FavoritedRefs(conv))
}

func TestReconciler_InsertedBulk(t *testing.T) {
	reg, _ := newTestRegistry(t)
	conv := newConv()
	seed(t, reg, conv, "0", "3")

	shifted := NewReconciler(reg).Inserted(conv, 0, 10)
	assert.Equal(t, 2, shifted)
	assert.Equal(t, []string{"10", "13"}, reg.FavoritedRefs(conv))
}

func TestReconciler_DeleteThenResolveSameMessage(t *testing.T) {
	reg, _ := newTestRegistry(t)
	conv := newConv()
	log := testLog(6)
	seed(t, reg, conv, "4")

	log = append(log[:1:1], log[2:]...)
	NewReconciler(reg).Deleted(conv, 1)

	rec := reg.List(conv)[0]
	res := Resolve(rec.MessageRef, log)
	require.True(t, res.OK())
	assert.Equal(t, "msg-4", res.Message.ID)
}
