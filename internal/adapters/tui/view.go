package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"go.trai.ch/kiln/internal/ui/style"
)

// View renders the UI.
func (m *Model) View() string {
	if m.ListHeight == 0 {
		return "Initializing..."
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.taskList(),
		m.logPane(),
	)
}

func (m *Model) taskList() string {
	var s strings.Builder

	title := titleStyle.Render("TASKS")
	for _, t := range m.Tasks {
		if t.Status == StatusError {
			title = failureTitleStyle.Render("TASKS")
			break
		}
	}
	s.WriteString(title + "\n\n")

	rows := m.rows()
	start := m.ListOffset
	end := min(m.ListOffset+m.ListHeight, len(rows))
	start = min(start, end)

	for i := start; i < end; i++ {
		s.WriteString(m.renderTaskRow(i, rows[i]) + "\n")
	}

	return listStyle.Render(s.String())
}

func (m *Model) renderTaskRow(index int, row *TaskNode) string {
	task := row.Canonical()
	icon := taskIcon(task)
	rowStyle := taskStyle(task)

	cursor := "  "
	if index == m.SelectedIdx {
		cursor = selectedStyle.Render("> ")
		if task.Status != StatusDone && task.Status != StatusError {
			rowStyle = selectedStyle
		}
	}

	var indent, marker string
	if m.ViewMode == ViewModeTree {
		indent = strings.Repeat("  ", row.Depth)
		switch {
		case len(row.Children) == 0:
			marker = "  "
		case row.IsExpanded:
			marker = style.Expanded + " "
		default:
			marker = style.Collapsed + " "
		}
	}

	content := cursor + indent + marker + rowStyle.Render(fmt.Sprintf("%s %s", icon, task.Name))
	if d := m.elapsed(task); d > 0 {
		content += " " + durationStyle.Render(d.String())
	}
	return content
}

// elapsed returns the run time of task, rounded for display.
func (m *Model) elapsed(task *TaskNode) time.Duration {
	if task.StartTime.IsZero() {
		return 0
	}
	end := task.EndTime
	if end.IsZero() {
		end = m.Now
	}
	if end.Before(task.StartTime) {
		return 0
	}
	return end.Sub(task.StartTime).Round(100 * time.Millisecond)
}

func taskIcon(task *TaskNode) string {
	if task.Cached {
		return style.Bolt
	}

	switch task.Status {
	case StatusRunning:
		return style.Dot
	case StatusDone:
		return style.Check
	case StatusError:
		return style.Cross
	default:
		return style.Circle
	}
}

func taskStyle(task *TaskNode) lipgloss.Style {
	if task.Cached {
		return taskCachedStyle
	}

	switch task.Status {
	case StatusRunning:
		return taskRunningStyle
	case StatusDone:
		return taskDoneStyle
	case StatusError:
		return taskErrorStyle
	default:
		return taskPendingStyle
	}
}

func (m *Model) logPane() string {
	header := titleStyle.Render("LOGS (Waiting...)")
	var content string

	if node, ok := m.TaskMap[m.ActiveTaskName]; ok {
		mode := " (Manual)"
		if m.FollowMode {
			mode = " (Following)"
		}
		header = titleStyle.Render("LOGS: " + m.ActiveTaskName + mode)
		content = node.Term.View()
	}

	return logStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, content))
}
