package favorites

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// ContextEntry is one message shown around a favorite.
type ContextEntry struct {
	Index   int
	Message Message
	Target  bool
}

// Preview returns the favorited message together with its immediate
// neighbours in the log. Neighbours past either end are omitted.
func Preview(ref string, log Log) ([]ContextEntry, bool) {
	res := Resolve(ref, log)
	if !res.OK() {
		return nil, false
	}
	var out []ContextEntry
	if res.Index > 0 {
		out = append(out, ContextEntry{Index: res.Index - 1, Message: log[res.Index-1]})
	}
	out = append(out, ContextEntry{Index: res.Index, Message: res.Message, Target: true})
	if res.Index+1 < len(log) {
		out = append(out, ContextEntry{Index: res.Index + 1, Message: log[res.Index+1]})
	}
	return out, true
}

var blockTags = map[string]bool{
	"br": true, "p": true, "div": true, "li": true, "blockquote": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// Snippet renders message markup as a single line of plain text, cut to
// limit runes with a trailing ellipsis. A limit below one disables
// truncation.
func Snippet(text string, limit int) string {
	z := html.NewTokenizer(strings.NewReader(text))
	var b strings.Builder
	skip := 0
loop:
	for {
		switch z.Next() {
		case html.ErrorToken:
			break loop
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch tag := string(name); {
			case tag == "script" || tag == "style":
				skip++
			case blockTags[tag]:
				b.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if tag := string(name); (tag == "script" || tag == "style") && skip > 0 {
				skip--
			} else if blockTags[tag] {
				b.WriteByte(' ')
			}
		}
	}

	plain := strings.Join(strings.Fields(b.String()), " ")
	if limit < 1 || utf8.RuneCountInString(plain) <= limit {
		return plain
	}
	runes := []rune(plain)
	return string(runes[:limit]) + "..."
}
