// Package linear provides a line-buffered renderer for CI and other
// non-interactive environments.
package linear

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/muesli/termenv"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/ui/output"
	"go.trai.ch/kiln/internal/ui/style"
)

var _ ports.Renderer = (*Renderer)(nil)

// Renderer implements ports.Renderer with chronological, task-prefixed
// output. Task output goes to stdout and status lines to stderr.
type Renderer struct {
	stdout io.Writer
	stderr io.Writer
	output *termenv.Output

	mu      sync.Mutex
	tasks   map[string]*taskState
	summary summary
}

type taskState struct {
	name      string
	startTime time.Time
	partial   bytes.Buffer
}

type summary struct {
	planned, succeeded, cached, failed int
}

// NewRenderer creates a new Renderer. Nil writers select the process streams.
func NewRenderer(stdout, stderr io.Writer) *Renderer {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	return &Renderer{
		stdout: stdout,
		stderr: stderr,
		output: output.NewWithProfile(stderr, output.ColorProfileANSI),
		tasks:  make(map[string]*taskState),
	}
}

// Start is a no-op; the renderer writes synchronously.
func (r *Renderer) Start(_ context.Context) error {
	return nil
}

// Stop flushes partial lines and prints the run summary.
func (r *Renderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, task := range r.tasks {
		r.flushLocked(task)
	}

	s := r.summary
	if s.planned == 0 {
		return nil
	}
	skipped := s.planned - s.succeeded - s.failed - len(r.tasks)
	_, _ = fmt.Fprintf(r.stderr, "%d succeeded (%d cached), %d failed, %d not run\n",
		s.succeeded, s.cached, s.failed, max(skipped, 0))
	return nil
}

// Wait is a no-op; the renderer writes synchronously.
func (r *Renderer) Wait() error {
	return nil
}

// OnPlanEmit prints the planned tasks.
func (r *Renderer) OnPlanEmit(tasks []string, _ map[string][]string, targets []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.summary = summary{planned: len(tasks)}
	_, _ = fmt.Fprintf(r.stderr, "Planning to run %d task(s) for target(s): %v\n", len(tasks), targets)
}

// OnTaskStart prints a task start message.
func (r *Renderer) OnTaskStart(spanID, _, name string, startTime time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tasks[spanID] = &taskState{name: name, startTime: startTime}
	_, _ = fmt.Fprintf(r.stderr, "%s Starting...\n", r.prefix(name))
}

// OnTaskLog prints complete lines of task output with the task prefix and
// keeps the trailing partial line for later.
func (r *Renderer) OnTaskLog(spanID string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[spanID]
	if !ok {
		return
	}

	task.partial.Write(data)
	for {
		i := bytes.IndexByte(task.partial.Bytes(), '\n')
		if i < 0 {
			break
		}
		r.printLineLocked(task.name, task.partial.Next(i+1))
	}
}

// OnTaskComplete flushes the task's output and prints its status.
func (r *Renderer) OnTaskComplete(spanID string, endTime time.Time, err error, cached bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[spanID]
	if !ok {
		return
	}
	delete(r.tasks, spanID)
	r.flushLocked(task)

	duration := endTime.Sub(task.startTime).Round(time.Millisecond)
	prefix := r.prefix(task.name)

	switch {
	case err != nil:
		r.summary.failed++
		symbol := r.output.String(style.Cross).Foreground(termenv.ANSIRed)
		_, _ = fmt.Fprintf(r.stderr, "%s %s Failed after %v: %v\n", prefix, symbol, duration, err)
	case cached:
		r.summary.succeeded++
		r.summary.cached++
		symbol := r.output.String(style.Check).Foreground(termenv.ANSIGreen)
		_, _ = fmt.Fprintf(r.stderr, "%s %s Up to date\n", prefix, symbol)
	default:
		r.summary.succeeded++
		symbol := r.output.String(style.Check).Foreground(termenv.ANSIGreen)
		_, _ = fmt.Fprintf(r.stderr, "%s %s Completed in %v\n", prefix, symbol, duration)
	}
}

func (r *Renderer) prefix(name string) string {
	return r.output.String("[" + name + "]").Faint().String()
}

func (r *Renderer) flushLocked(task *taskState) {
	if task.partial.Len() > 0 {
		r.printLineLocked(task.name, task.partial.Bytes())
		task.partial.Reset()
	}
}

func (r *Renderer) printLineLocked(name string, line []byte) {
	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	if len(line) == 0 {
		return
	}
	_, _ = fmt.Fprintf(r.stdout, "[%s] %s\n", name, line)
}
