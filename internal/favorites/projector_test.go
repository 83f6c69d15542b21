package favorites

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recs(refs ...string) []Record {
	out := make([]Record, len(refs))
	for i, ref := range refs {
		out[i] = Record{ID: fmt.Sprintf("id-%d", i), MessageRef: ref}
	}
	return out
}

func refsOf(rs []Record) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.MessageRef
	}
	return out
}

func TestProject_Empty(t *testing.T) {
	p := Project(nil, 3, 5)
	assert.Empty(t, p.Items)
	assert.NotNil(t, p.Items)
	assert.Equal(t, 0, p.TotalCount)
	assert.Equal(t, 1, p.TotalPages)
	assert.Equal(t, 1, p.Page)
}

func TestProject_SortsDescendingNumericLast(t *testing.T) {
	in := recs("3", "x", "10", "1", "y", "3")
	p := Project(in, 1, 10)

	assert.Equal(t, []string{"10", "3", "3", "1", "x", "y"}, refsOf(p.Items))
	assert.Equal(t, "id-0", p.Items[1].ID, "ties keep insertion order")
	assert.Equal(t, "id-5", p.Items[2].ID)
}

func TestProject_DoesNotMutateInput(t *testing.T) {
	in := recs("1", "2", "3")
	snapshot := append([]Record(nil), in...)

	p := Project(in, 1, 2)
	p.Items[0].Note = "changed"

	assert.Equal(t, snapshot, in)
}

func TestProject_Pagination(t *testing.T) {
	in := recs("0", "1", "2", "3", "4", "5", "6")

	p := Project(in, 2, 3)
	assert.Equal(t, []string{"3", "2", "1"}, refsOf(p.Items))
	assert.Equal(t, 7, p.TotalCount)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 2, p.Page)

	p = Project(in, 3, 3)
	assert.Equal(t, []string{"0"}, refsOf(p.Items))
}

func TestProject_ClampsPage(t *testing.T) {
	in := recs("0", "1", "2")

	p := Project(in, 99, 2)
	assert.Equal(t, 2, p.Page)
	assert.Equal(t, []string{"0"}, refsOf(p.Items))

	p = Project(in, -4, 2)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, []string{"2", "1"}, refsOf(p.Items))
}

func TestProject_DefaultPageSize(t *testing.T) {
	p := Project(recs("0", "1", "2", "3", "4", "5"), 1, 0)
	assert.Equal(t, DefaultPageSize, p.PageSize)
	assert.Len(t, p.Items, DefaultPageSize)
}

func TestProject_NeverExceedsPageSize(t *testing.T) {
	for n := 0; n < 23; n++ {
		refs := make([]string, n)
		for i := range refs {
			refs[i] = fmt.Sprint(i)
		}
		in := recs(refs...)
		for size := 1; size <= 6; size++ {
			for page := -1; page <= 8; page++ {
				p := Project(in, page, size)
				require.LessOrEqual(t, len(p.Items), size)
				require.GreaterOrEqual(t, p.Page, 1)
				require.LessOrEqual(t, p.Page, p.TotalPages)
			}
		}
	}
}
