package telemetry_test

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// recordingRenderer is a test double for ports.Renderer that records every
// callback as a short event string.
type recordingRenderer struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingRenderer) record(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recordingRenderer) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recordingRenderer) Start(_ context.Context) error { return nil }
func (r *recordingRenderer) Stop() error                   { return nil }
func (r *recordingRenderer) Wait() error                   { return nil }

func (r *recordingRenderer) OnPlanEmit(tasks []string, _ map[string][]string, targets []string) {
	r.record("plan %v %v", tasks, targets)
}

func (r *recordingRenderer) OnTaskStart(_, _, name string, _ time.Time) {
	r.record("start %s", name)
}

func (r *recordingRenderer) OnTaskLog(_ string, data []byte) {
	r.record("log %q", data)
}

func (r *recordingRenderer) OnTaskComplete(_ string, _ time.Time, err error, cached bool) {
	r.record("complete err=%v cached=%t", err, cached)
}
