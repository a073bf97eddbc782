// Package style holds the colours and glyphs shared by the logger and the
// renderers.
package style

import "github.com/charmbracelet/lipgloss"

// Palette.
var (
	Ember = lipgloss.Color("#E8590C")
	Ash   = lipgloss.Color("#6B7280")
	White = lipgloss.Color("#FFFFFF")
	Green = lipgloss.Color("#2F9E44")
	Red   = lipgloss.Color("#E03131")
	Amber = lipgloss.Color("#F59F00")
)

// Glyphs.
const (
	Check     = "✓"
	Cross     = "✗"
	Warning   = "!"
	Bolt      = "⚡"
	Dot       = "●"
	Circle    = "○"
	Expanded  = "▾"
	Collapsed = "▸"
)
