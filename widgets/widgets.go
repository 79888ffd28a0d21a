// Package widgets holds small lipgloss renderers used by the console view.
package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Lamp is one movement cell: a coloured symbol with its key and note.
type Lamp struct {
	Key    string
	Note   uint8
	Symbol rune
	Color  lipgloss.Color
}

// RenderLamp renders a single lamp, e.g. "● o 50".
func RenderLamp(l Lamp, label lipgloss.Style) string {
	sym := lipgloss.NewStyle().Foreground(l.Color).Render(string(l.Symbol))
	return fmt.Sprintf("%s %s", sym, label.Render(fmt.Sprintf("%-5s %3d", keyLabel(l.Key), l.Note)))
}

// RenderLampGrid lays lamps out in rows of cols.
func RenderLampGrid(lamps []Lamp, cols int, label lipgloss.Style) string {
	if cols <= 0 {
		cols = 1
	}
	var lines []string
	var line strings.Builder
	for i, l := range lamps {
		if i%cols != 0 {
			line.WriteString("   ")
		}
		line.WriteString(RenderLamp(l, label))
		if i%cols == cols-1 {
			lines = append(lines, line.String())
			line.Reset()
		}
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

func keyLabel(k string) string {
	if k == " " {
		return "space"
	}
	return k
}

// RenderKeyHelp formats key bindings in a friendly way
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		if sec.Title != "" {
			lines = append(lines, sec.Title)
		}
		for _, k := range sec.Keys {
			lines = append(lines, fmt.Sprintf("  %-12s %s", k.Key, k.Desc))
		}
	}
	return strings.Join(lines, "\n")
}

// RenderHelpLine formats key bindings on one line: "f1:mirror  f2:retro".
func RenderHelpLine(keys []KeyBinding) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.Key + ":" + k.Desc
	}
	return strings.Join(parts, "  ")
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}
