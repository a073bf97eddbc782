package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	taskListWidthRatio = 0.3
	logPaneBorderWidth = 4
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// StatusPending indicates the task is waiting to start.
	StatusPending TaskStatus = "Pending"
	// StatusRunning indicates the task is currently executing.
	StatusRunning TaskStatus = "Running"
	// StatusDone indicates the task completed successfully.
	StatusDone TaskStatus = "Done"
	// StatusError indicates the task failed.
	StatusError TaskStatus = "Error"
)

// ViewMode selects how the task list is laid out.
type ViewMode int

const (
	// ViewModeTree shows targets with their dependencies nested below.
	ViewModeTree ViewMode = iota
	// ViewModeList shows every planned task once, in plan order.
	ViewModeList
)

// TaskNode represents a task row. In tree mode a task that is a dependency
// of several targets appears once per position; those copies point at the
// canonical node, which holds the live state.
type TaskNode struct {
	Name      string
	Status    TaskStatus
	Term      *Vterm
	Cached    bool
	StartTime time.Time
	EndTime   time.Time

	Children      []*TaskNode
	Parent        *TaskNode
	Depth         int
	IsExpanded    bool
	CanonicalNode *TaskNode
}

// Canonical returns the node holding the task's live state.
func (n *TaskNode) Canonical() *TaskNode {
	if n.CanonicalNode != nil {
		return n.CanonicalNode
	}
	return n
}

// Model represents the main TUI state.
type Model struct {
	Tasks     []*TaskNode
	TaskMap   map[string]*TaskNode
	SpanMap   map[string]*TaskNode
	TreeRoots []*TaskNode
	FlatList  []*TaskNode
	ViewMode  ViewMode

	AutoScroll     bool
	FollowMode     bool
	ActiveTaskName string
	SelectedIdx    int
	ListOffset     int
	ListHeight     int
	LogWidth       int
	LogHeight      int

	TickInterval time.Duration
	Now          time.Time
	disableTick  bool
}

// Init starts the clock used for elapsed times.
func (m *Model) Init() tea.Cmd {
	return m.tick()
}

func (m *Model) tick() tea.Cmd {
	if m.disableTick || m.TickInterval <= 0 {
		return nil
	}
	return tea.Tick(m.TickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// rows returns the nodes of the current view mode.
func (m *Model) rows() []*TaskNode {
	if m.ViewMode == ViewModeTree {
		return m.FlatList
	}
	return m.Tasks
}

func (m *Model) ensureVisible() {
	if m.ListHeight <= 0 {
		return
	}
	if m.SelectedIdx < m.ListOffset {
		m.ListOffset = m.SelectedIdx
	} else if m.SelectedIdx >= m.ListOffset+m.ListHeight {
		m.ListOffset = m.SelectedIdx - m.ListHeight + 1
	}
}

func (m *Model) selected() *TaskNode {
	rows := m.rows()
	if m.SelectedIdx >= 0 && m.SelectedIdx < len(rows) {
		return rows[m.SelectedIdx]
	}
	return nil
}

func (m *Model) updateActiveView() {
	node := m.selected()
	if node == nil {
		return
	}
	node = node.Canonical()
	m.ActiveTaskName = node.Name

	if m.FollowMode && m.AutoScroll {
		node.Term.Offset = node.Term.MaxOffset()
	}
}

// selectTask moves the cursor to name, expanding tree nodes as needed.
func (m *Model) selectTask(name string) {
	if m.ViewMode == ViewModeTree {
		if node := findInTree(m.TreeRoots, name); node != nil {
			for p := node.Parent; p != nil; p = p.Parent {
				p.IsExpanded = true
			}
			m.FlatList = flattenTree(m.TreeRoots)
		}
	}

	for i, row := range m.rows() {
		if row.Name == name {
			m.SelectedIdx = i
			break
		}
	}
	m.ensureVisible()
	m.updateActiveView()
}

func (m *Model) move(delta int) {
	next := m.SelectedIdx + delta
	if next < 0 || next >= len(m.rows()) {
		return
	}
	m.SelectedIdx = next
	m.FollowMode = false
	m.ensureVisible()
	m.updateActiveView()
}

func (m *Model) toggleExpanded() {
	node := m.selected()
	if m.ViewMode != ViewModeTree || node == nil || len(node.Children) == 0 {
		return
	}
	node.IsExpanded = !node.IsExpanded
	m.FlatList = flattenTree(m.TreeRoots)
}

func (m *Model) toggleViewMode() {
	name := m.ActiveTaskName
	if m.ViewMode == ViewModeTree {
		m.ViewMode = ViewModeList
	} else {
		m.ViewMode = ViewModeTree
	}
	m.SelectedIdx, m.ListOffset = 0, 0
	if name != "" {
		m.selectTask(name)
	}
}

// Update handles incoming messages and updates the model state.
//
//nolint:cyclop // message dispatch
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.Now = time.Time(msg)
		return m, m.tick()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "k", "up":
			m.move(-1)
		case "j", "down":
			m.move(1)
		case "enter", " ":
			m.toggleExpanded()
		case "t":
			m.toggleViewMode()
		case "esc":
			m.FollowMode = true
			for _, t := range m.Tasks {
				if t.Status == StatusRunning {
					m.selectTask(t.Name)
					break
				}
			}
		default:
			if node, ok := m.TaskMap[m.ActiveTaskName]; ok {
				node.Term.HandleKey(msg)
			}
		}

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case MsgInitTasks:
		m.initTasks(msg)

	case MsgTaskStart:
		node, ok := m.TaskMap[msg.Name]
		if !ok {
			break
		}
		node.Status = StatusRunning
		node.StartTime = msg.StartTime
		m.SpanMap[msg.SpanID] = node
		if m.FollowMode {
			m.selectTask(msg.Name)
		}

	case MsgTaskLog:
		if node, ok := m.SpanMap[msg.SpanID]; ok {
			_, _ = node.Term.Write(msg.Data)
		}

	case MsgTaskComplete:
		node, ok := m.SpanMap[msg.SpanID]
		if !ok {
			break
		}
		node.EndTime = msg.EndTime
		node.Cached = msg.Cached
		if msg.Err != nil {
			node.Status = StatusError
			_, _ = node.Term.Write([]byte("\r\n" + msg.Err.Error() + "\r\n"))
		} else {
			node.Status = StatusDone
		}
	}

	return m, nil
}

func (m *Model) resize(width, height int) {
	listWidth := int(float64(width) * taskListWidthRatio)
	m.LogWidth = width - listWidth - logPaneBorderWidth
	m.LogHeight = height - lipgloss.Height(titleStyle.Render("LOGS"))
	m.ListHeight = height - lipgloss.Height(titleStyle.Render("TASKS")+"\n\n")
	m.ensureVisible()

	for _, node := range m.Tasks {
		node.Term.SetWidth(m.LogWidth)
		node.Term.SetHeight(m.LogHeight)
	}
}

func (m *Model) initTasks(msg MsgInitTasks) {
	m.Tasks = make([]*TaskNode, len(msg.Tasks))
	m.TaskMap = make(map[string]*TaskNode, len(msg.Tasks))
	m.SpanMap = make(map[string]*TaskNode)

	for i, name := range msg.Tasks {
		term := NewVterm()
		if m.LogWidth > 0 && m.LogHeight > 0 {
			term.SetWidth(m.LogWidth)
			term.SetHeight(m.LogHeight)
		}
		m.Tasks[i] = &TaskNode{Name: name, Status: StatusPending, Term: term}
		m.TaskMap[name] = m.Tasks[i]
	}

	targets := msg.Targets
	if len(targets) == 0 {
		targets = msg.Tasks
	}
	m.TreeRoots = buildTree(targets, msg.Dependencies, m.TaskMap)
	for _, root := range m.TreeRoots {
		root.IsExpanded = true
	}
	m.FlatList = flattenTree(m.TreeRoots)
	m.SelectedIdx, m.ListOffset = 0, 0
	m.updateActiveView()
}
