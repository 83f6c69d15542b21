package favorites

import "strconv"

// Message is the read-only view of a host log entry.
type Message struct {
	ID       string // stable identifier, may be empty
	AltID    string // secondary identifier some hosts carry
	Sender   string
	IsUser   bool
	IsSystem bool
	Text     string
}

// Log is the host's current message ordering.
type Log []Message

// Tier records which lookup rule produced a resolution.
type Tier int

const (
	Unresolved Tier = iota
	ByStableID
	ByPosition
	ByAltID
)

func (t Tier) String() string {
	switch t {
	case ByStableID:
		return "stable_id"
	case ByPosition:
		return "position"
	case ByAltID:
		return "alt_id"
	default:
		return "unresolved"
	}
}

// Resolution is the result of Resolve. Index and Message are only
// meaningful when OK reports true.
type Resolution struct {
	Tier    Tier
	Index   int
	Message Message
}

func (r Resolution) OK() bool { return r.Tier != Unresolved }

// Resolve maps ref to a live message. The first matching tier wins:
// stable identifier, then in-bounds decimal position, then alternate id.
func Resolve(ref string, log Log) Resolution {
	if ref == "" {
		return Resolution{}
	}
	for i, m := range log {
		if m.ID != "" && m.ID == ref {
			return Resolution{Tier: ByStableID, Index: i, Message: m}
		}
	}
	if i, ok := parseIndex(ref); ok && i < len(log) {
		return Resolution{Tier: ByPosition, Index: i, Message: log[i]}
	}
	for i, m := range log {
		if m.AltID != "" && m.AltID == ref {
			return Resolution{Tier: ByAltID, Index: i, Message: m}
		}
	}
	return Resolution{}
}

// parseIndex accepts only plain decimal digits, so "+1", "-0" and " 2"
// are never treated as positions.
func parseIndex(s string) (int, bool) {
	if s == "" || len(s) > 18 {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func formatIndex(i int) string {
	return strconv.Itoa(i)
}
