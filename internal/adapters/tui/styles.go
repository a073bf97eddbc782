package tui

import (
	"github.com/charmbracelet/lipgloss"
	"go.trai.ch/kiln/internal/ui/style"
)

var (
	taskPendingStyle = lipgloss.NewStyle().
				Foreground(style.Ash)

	taskRunningStyle = lipgloss.NewStyle().
				Foreground(style.Ember).
				Bold(true)

	taskDoneStyle = lipgloss.NewStyle().
			Foreground(style.Green)

	taskErrorStyle = lipgloss.NewStyle().
			Foreground(style.Red)

	taskCachedStyle = lipgloss.NewStyle().
			Foreground(style.Ash).
			Faint(true)

	selectedStyle = lipgloss.NewStyle().
			Foreground(style.Ember).
			Bold(true)

	durationStyle = lipgloss.NewStyle().
			Foreground(style.Ash).
			Faint(true)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Background(style.Ember).
			Foreground(style.White)

	failureTitleStyle = titleStyle.
				Background(style.Red)

	listStyle = lipgloss.NewStyle().
			PaddingRight(2)

	logStyle = lipgloss.NewStyle().
			PaddingLeft(1).
			BorderStyle(lipgloss.NormalBorder()).
			BorderLeft(true).
			BorderForeground(style.Ash)
)
