package tui_test

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/tui"
)

func newPlannedModel(t *testing.T) *tui.Model {
	t.Helper()
	t.Setenv("NO_COLOR", "1")

	m := tui.NewModel(nil).WithDisableTick()
	update(t, &m, tea.WindowSizeMsg{Width: 120, Height: 40})
	update(t, &m, tui.MsgInitTasks{
		Tasks: []string{"gen", "lib", "app", "test"},
		Dependencies: map[string][]string{
			"lib":  {"gen"},
			"app":  {"lib"},
			"test": {"lib"},
		},
		Targets: []string{"app", "test"},
	})
	return &m
}

func update(t *testing.T, m *tui.Model, msg tea.Msg) tea.Cmd {
	t.Helper()
	next, cmd := m.Update(msg)
	require.Same(t, m, next)
	return cmd
}

func names(rows []*tui.TaskNode) []string {
	res := make([]string, len(rows))
	for i, r := range rows {
		res[i] = r.Name
	}
	return res
}

func TestModel_InitTasks(t *testing.T) {
	m := newPlannedModel(t)

	require.Len(t, m.Tasks, 4)
	for _, task := range m.Tasks {
		assert.Equal(t, tui.StatusPending, task.Status)
	}
	// Roots are expanded one level.
	assert.Equal(t, []string{"app", "lib", "test", "lib"}, names(m.FlatList))
	assert.Equal(t, "app", m.ActiveTaskName)
}

func TestModel_TaskLifecycle(t *testing.T) {
	m := newPlannedModel(t)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	update(t, m, tui.MsgTaskStart{SpanID: "s1", Name: "gen", StartTime: start})
	gen := m.TaskMap["gen"]
	assert.Equal(t, tui.StatusRunning, gen.Status)
	assert.Same(t, gen, m.SpanMap["s1"])

	// Follow mode reveals the running task inside the tree.
	assert.Equal(t, "gen", m.ActiveTaskName)
	assert.Equal(t, []string{"app", "lib", "gen", "test", "lib"}, names(m.FlatList))

	update(t, m, tui.MsgTaskLog{SpanID: "s1", Data: []byte("generating\n")})
	assert.Contains(t, gen.Term.View(), "generating")

	update(t, m, tui.MsgTaskComplete{SpanID: "s1", EndTime: start.Add(time.Second), Cached: true})
	assert.Equal(t, tui.StatusDone, gen.Status)
	assert.True(t, gen.Cached)

	update(t, m, tui.MsgTaskStart{SpanID: "s2", Name: "lib", StartTime: start})
	update(t, m, tui.MsgTaskComplete{SpanID: "s2", EndTime: start, Err: errors.New("compile error")})
	assert.Equal(t, tui.StatusError, m.TaskMap["lib"].Status)
	assert.Contains(t, m.TaskMap["lib"].Term.View(), "compile error")
}

func TestModel_UnknownSpansAreIgnored(t *testing.T) {
	m := newPlannedModel(t)

	update(t, m, tui.MsgTaskStart{SpanID: "x", Name: "missing"})
	update(t, m, tui.MsgTaskLog{SpanID: "x", Data: []byte("data")})
	update(t, m, tui.MsgTaskComplete{SpanID: "x"})

	assert.Empty(t, m.SpanMap)
}

func TestModel_Navigation(t *testing.T) {
	m := newPlannedModel(t)

	update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.SelectedIdx)
	assert.Equal(t, "lib", m.ActiveTaskName)
	assert.False(t, m.FollowMode)

	// A started task no longer steals the selection.
	update(t, m, tui.MsgTaskStart{SpanID: "s1", Name: "gen"})
	assert.Equal(t, "lib", m.ActiveTaskName)

	update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, m.SelectedIdx)

	update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.True(t, m.FollowMode)
	assert.Equal(t, "gen", m.ActiveTaskName)
}

func TestModel_ToggleExpanded(t *testing.T) {
	m := newPlannedModel(t)

	update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, []string{"app", "test", "lib"}, names(m.FlatList))

	update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, []string{"app", "lib", "test", "lib"}, names(m.FlatList))
}

func TestModel_ToggleViewMode(t *testing.T) {
	m := newPlannedModel(t)
	update(t, m, tui.MsgTaskStart{SpanID: "s1", Name: "test"})

	update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("t")})
	assert.Equal(t, tui.ViewModeList, m.ViewMode)
	assert.Equal(t, 3, m.SelectedIdx)
	assert.Equal(t, "test", m.ActiveTaskName)

	update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("t")})
	assert.Equal(t, tui.ViewModeTree, m.ViewMode)
	assert.Equal(t, "test", m.ActiveTaskName)
}

func TestModel_Quit(t *testing.T) {
	m := newPlannedModel(t)

	cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModel_Tick(t *testing.T) {
	m := tui.NewModel(nil)
	require.NotNil(t, m.Init())

	disabled := m.WithDisableTick()
	assert.Nil(t, disabled.Init())
}

func TestModel_View(t *testing.T) {
	m := newPlannedModel(t)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	update(t, m, tui.MsgTaskStart{SpanID: "s1", Name: "gen", StartTime: start})
	update(t, m, tui.MsgTaskComplete{SpanID: "s1", EndTime: start.Add(1500 * time.Millisecond)})

	view := m.View()
	assert.Contains(t, view, "TASKS")
	assert.Contains(t, view, "LOGS: gen (Following)")
	assert.Contains(t, view, "✓ gen")
	assert.Contains(t, view, "1.5s")
	assert.Contains(t, view, "○ test")
}

func TestModel_View_BeforeResize(t *testing.T) {
	m := tui.NewModel(nil)
	assert.Equal(t, "Initializing...", m.View())
}
