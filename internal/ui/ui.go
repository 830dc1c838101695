// Package ui provides terminal output formatting for the catalog CLI.
package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Colors returns true if colored output should be enabled.
// Respects NO_COLOR env var and --no-color flag.
func Colors(noColorFlag bool) bool {
	if noColorFlag {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return true
}

// Styles contains lipgloss styles for the CLI's output elements.
type Styles struct {
	Title lipgloss.Style
	ID    lipgloss.Style
	Label lipgloss.Style
	Value lipgloss.Style
	Muted lipgloss.Style
}

// NewStyles creates the output styles, plain when noColor is set.
func NewStyles(noColor bool) Styles {
	if noColor {
		plain := lipgloss.NewStyle()
		return Styles{
			Title: lipgloss.NewStyle().Bold(true),
			ID:    plain,
			Label: plain,
			Value: plain,
			Muted: plain,
		}
	}

	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")), // Bright blue
		ID: lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")), // Green
		Label: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("14")), // Cyan
		Value: lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")), // White
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")), // Gray
	}
}

// ListRow is one line of a record listing.
type ListRow struct {
	ID   string
	Name string
}

// maxListNameWidth caps record names in listings so a runaway title
// cannot push a row past a standard terminal.
const maxListNameWidth = 64

// RenderList renders a record listing with the identifiers aligned in
// their own column.
func (s Styles) RenderList(rows []ListRow) string {
	if len(rows) == 0 {
		return s.Muted.Render("no records") + "\n"
	}

	idWidth := 0
	for _, row := range rows {
		if len(row.ID) > idWidth {
			idWidth = len(row.ID)
		}
	}

	var sb strings.Builder
	for _, row := range rows {
		id := row.ID + strings.Repeat(" ", idWidth-len(row.ID))
		name := TruncateWithEllipsis(row.Name, maxListNameWidth)
		if name == "" {
			name = "(unnamed)"
		}
		sb.WriteString(s.ID.Render(id))
		sb.WriteString("  ")
		sb.WriteString(s.Value.Render(name))
		sb.WriteString("\n")
	}
	return sb.String()
}

// Field is one label/value pair of a record view.
type Field struct {
	Label string
	Value string
}

// RenderRecord renders a single record as a titled block of aligned
// label/value pairs. Multi-line values are indented under their label.
func (s Styles) RenderRecord(id, title string, fields []Field) string {
	var sb strings.Builder
	sb.WriteString(s.Title.Render(title))
	sb.WriteString("  ")
	sb.WriteString(s.Muted.Render("["+id+"]"))
	sb.WriteString("\n")

	labelWidth := 0
	for _, f := range fields {
		if len(f.Label) > labelWidth {
			labelWidth = len(f.Label)
		}
	}

	for _, f := range fields {
		label := f.Label + strings.Repeat(" ", labelWidth-len(f.Label))
		lines := strings.Split(f.Value, "\n")
		sb.WriteString(fmt.Sprintf("  %s  %s\n", s.Label.Render(label), s.Value.Render(lines[0])))
		for _, line := range lines[1:] {
			sb.WriteString(fmt.Sprintf("  %s  %s\n", strings.Repeat(" ", labelWidth), s.Value.Render(line)))
		}
	}
	return sb.String()
}

// RenderTree renders an indented tree of labels, two spaces per level.
func (s Styles) RenderTree(labels []TreeLine) string {
	var sb strings.Builder
	for _, l := range labels {
		sb.WriteString(strings.Repeat("  ", l.Depth))
		sb.WriteString(s.Value.Render(l.Label))
		sb.WriteString("\n")
	}
	return sb.String()
}

// TreeLine is one line of an indented tree view.
type TreeLine struct {
	Depth int
	Label string
}

// TruncateWithEllipsis truncates a string to maxLen with ellipsis.
func TruncateWithEllipsis(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return strings.Repeat(".", maxLen)
	}
	return s[:maxLen-1] + "…"
}
