package favorites

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	log := Log{
		{ID: "m-a", AltID: "alt-0", Sender: "Alice", IsUser: true},
		{ID: "m-b", Sender: "Bot"},
		{ID: "2", AltID: "alt-2", Sender: "Carol"},
		{Sender: "Dan", AltID: "7"},
	}

	tests := []struct {
		name  string
		ref   string
		tier  Tier
		index int
	}{
		{"stable id", "m-b", ByStableID, 1},
		{"stable id shadows position", "2", ByStableID, 2},
		{"position", "1", ByPosition, 1},
		{"position zero", "0", ByPosition, 0},
		{"alt id", "alt-2", ByAltID, 2},
		{"numeric alt id out of bounds", "7", ByAltID, 3},
		{"out of bounds", "4", Unresolved, 0},
		{"negative", "-1", Unresolved, 0},
		{"signed", "+1", Unresolved, 0},
		{"whitespace", " 1", Unresolved, 0},
		{"empty", "", Unresolved, 0},
		{"unknown", "zzz", Unresolved, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Resolve(tt.ref, log)
			assert.Equal(t, tt.tier, res.Tier, "tier for %q", tt.ref)
			assert.Equal(t, tt.tier != Unresolved, res.OK())
			if res.OK() {
				assert.Equal(t, tt.index, res.Index)
				assert.Equal(t, log[tt.index], res.Message)
			}
		})
	}
}

func TestResolve_EmptyLog(t *testing.T) {
	assert.False(t, Resolve("0", nil).OK())
}

func TestTierString(t *testing.T) {
	assert.Equal(t, "stable_id", ByStableID.String())
	assert.Equal(t, "position", ByPosition.String())
	assert.Equal(t, "alt_id", ByAltID.String())
	assert.Equal(t, "unresolved", Unresolved.String())
}

func TestRefFor(t *testing.T) {
	m := Message{ID: "m-1"}
	assert.Equal(t, "3", RefFor(Positional, m, 3))
	assert.Equal(t, "m-1", RefFor(Stable, m, 3))
	assert.Equal(t, "3", RefFor(Stable, Message{}, 3), "stable falls back to position without an id")
}

func TestParseAddressing(t *testing.T) {
	assert.Equal(t, Stable, ParseAddressing("stable"))
	assert.Equal(t, Positional, ParseAddressing("positional"))
	assert.Equal(t, Positional, ParseAddressing(""))
}
