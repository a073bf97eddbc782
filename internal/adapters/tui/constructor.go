// Package tui provides an interactive terminal interface for task runs.
package tui

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"go.trai.ch/kiln/internal/ui/output"
)

const defaultTickInterval = 100 * time.Millisecond

// NewModel creates a new TUI model with default settings.
func NewModel(w io.Writer) Model {
	if w == nil {
		w = os.Stderr
	}

	out := output.NewWithProfile(w, output.ColorProfileTrueColor)
	lipgloss.SetColorProfile(out.Profile)

	return Model{
		Tasks:        make([]*TaskNode, 0),
		TaskMap:      make(map[string]*TaskNode),
		SpanMap:      make(map[string]*TaskNode),
		AutoScroll:   true,
		ViewMode:     ViewModeTree,
		FollowMode:   true,
		TickInterval: defaultTickInterval,
	}
}

// WithDisableTick stops the model from scheduling clock ticks.
// Tests use it to keep the program free of timers.
func (m Model) WithDisableTick() Model {
	m.disableTick = true
	return m
}
