package domain

import "context"

// TaskResult is the value a task produces.
// A result must not be mutated after it is returned, since dependents may
// read it concurrently.
type TaskResult any

// Task is a schedulable unit of work.
type Task interface {
	// ID returns the stable identity of the task.
	ID() TaskID
	// Run executes the task. deps holds the results of the task's
	// dependencies in registration order.
	Run(ctx context.Context, deps []TaskResult) (TaskResult, error)
}

// TaskKind classifies a task for selection on the command line.
type TaskKind string

const (
	// KindBuild marks a task that produces artifacts.
	KindBuild TaskKind = "build"
	// KindTest marks a task that runs tests.
	KindTest TaskKind = "test"
	// KindRun marks a task that runs an application.
	KindRun TaskKind = "run"
)

// TaskMetadata carries selection attributes. The scheduler ignores it.
type TaskMetadata struct {
	Module   string
	Platform string
	Variant  string
	Kind     TaskKind
}

// MetadataProvider is implemented by tasks that carry TaskMetadata.
type MetadataProvider interface {
	Metadata() TaskMetadata
}

// MetadataOf returns the metadata of t, or the zero value when t carries none.
func MetadataOf(t Task) TaskMetadata {
	if p, ok := t.(MetadataProvider); ok {
		return p.Metadata()
	}
	return TaskMetadata{}
}

// ResultsOf returns the dependency results of type T, preserving order.
func ResultsOf[T any](deps []TaskResult) []T {
	var res []T
	for _, d := range deps {
		if v, ok := d.(T); ok {
			res = append(res, v)
		}
	}
	return res
}

// FuncTask adapts a function to the Task interface.
type FuncTask struct {
	id TaskID
	fn func(ctx context.Context, deps []TaskResult) (TaskResult, error)
}

// NewFuncTask returns a Task running fn under the given id.
func NewFuncTask(id TaskID, fn func(ctx context.Context, deps []TaskResult) (TaskResult, error)) *FuncTask {
	return &FuncTask{id: id, fn: fn}
}

// ID implements Task.
func (t *FuncTask) ID() TaskID {
	return t.id
}

// Run implements Task.
func (t *FuncTask) Run(ctx context.Context, deps []TaskResult) (TaskResult, error) {
	if t.fn == nil {
		return nil, nil
	}
	return t.fn(ctx, deps)
}

// CacheReporter is implemented by task results that know whether their
// work was served from the incremental cache.
type CacheReporter interface {
	FromCache() bool
}
