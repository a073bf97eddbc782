package tui

import (
	"bytes"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/vito/midterm"
)

// Vterm is a scrollable virtual terminal holding one task's output.
// It is safe for concurrent use.
type Vterm struct {
	mu     sync.Mutex
	vt     *midterm.Terminal
	buf    bytes.Buffer
	Offset int
	Height int
	Width  int
}

// NewVterm creates an empty terminal that grows with its output.
func NewVterm() *Vterm {
	return &Vterm{vt: midterm.NewAutoResizingTerminal()}
}

// Write feeds raw output, including escape sequences, to the terminal.
// A view scrolled to the bottom keeps following new output.
func (v *Vterm) Write(p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	follow := v.Offset >= v.maxOffset()
	n, err := v.vt.Write(p)
	if follow {
		v.Offset = v.maxOffset()
	}
	return n, err
}

// SetHeight updates the number of visible rows.
func (v *Vterm) SetHeight(h int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	follow := v.Offset >= v.maxOffset()
	v.Height = max(h, 1)
	if follow {
		v.Offset = v.maxOffset()
	}
	v.clamp()
}

// SetWidth updates the terminal width.
func (v *Vterm) SetWidth(w int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.Width = max(w, 1)
	v.vt.ResizeX(v.Width)
}

// UsedHeight returns the number of lines written so far.
func (v *Vterm) UsedHeight() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.vt.UsedHeight()
}

// MaxOffset returns the offset that shows the last line at the bottom.
func (v *Vterm) MaxOffset() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.maxOffset()
}

// View renders the visible rows.
func (v *Vterm) View() string {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.clamp()
	v.buf.Reset()
	for i := range v.Height {
		row := v.Offset + i
		if row >= v.vt.UsedHeight() {
			break
		}
		if i > 0 {
			v.buf.WriteByte('\n')
		}
		_ = v.vt.RenderLine(&v.buf, row)
	}
	return v.buf.String()
}

// HandleKey scrolls the view.
func (v *Vterm) HandleKey(msg tea.KeyMsg) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch msg.String() {
	case "pgup":
		v.Offset -= v.Height
	case "pgdown":
		v.Offset += v.Height
	case "home":
		v.Offset = 0
	case "end":
		v.Offset = v.maxOffset()
	}
	v.clamp()
}

func (v *Vterm) clamp() {
	v.Offset = min(max(v.Offset, 0), v.maxOffset())
}

func (v *Vterm) maxOffset() int {
	return max(v.vt.UsedHeight()-v.Height, 0)
}
