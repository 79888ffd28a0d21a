// Package keys converts raw input events into the lowercase identifiers used
// by the movement table.
package keys

import (
	"strings"
	"unicode"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
)

// Space is the identifier of the space bar.
const Space = " "

// FromCode converts a numeric key code (the browser's which/keyCode field)
// into an identifier by character conversion. Only printable ASCII maps.
func FromCode(code int) (string, bool) {
	if code < 0x20 || code > 0x7E {
		return "", false
	}
	return strings.ToLower(string(rune(code))), true
}

// Normalize lowercases an identifier. Single characters are kept as-is apart
// from case; named keys are trimmed.
func Normalize(s string) string {
	if utf8.RuneCountInString(s) == 1 {
		return strings.ToLower(s)
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "space" {
		return Space
	}
	return s
}

// FromTerminal converts a bubbletea key message into an identifier. Modified
// keys (alt or ctrl combinations) and multi-rune pastes do not map.
func FromTerminal(msg tea.KeyMsg) (string, bool) {
	if msg.Alt || msg.Paste {
		return "", false
	}
	switch msg.Type {
	case tea.KeyRunes:
		if len(msg.Runes) != 1 || !unicode.IsPrint(msg.Runes[0]) {
			return "", false
		}
		return strings.ToLower(string(msg.Runes[0])), true
	case tea.KeySpace:
		return Space, true
	case tea.KeyUp, tea.KeyDown, tea.KeyLeft, tea.KeyRight:
		return msg.String(), true
	}
	return "", false
}
