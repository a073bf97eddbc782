package ports

import (
	"context"
	"io"
)

//go:generate mockgen -source=telemetry.go -destination=mocks/mock_telemetry.go -package=mocks

// Span attributes understood by renderers.
const (
	// AttrTask marks a span started with AsTask.
	AttrTask = "kiln.task"
	// AttrCached is set to true on task spans whose work came from the cache.
	AttrCached = "kiln.cached"
)

// Tracer is the entry point for creating spans.
type Tracer interface {
	// Start creates a new span.
	Start(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span)
	// EmitPlan signals which tasks are planned for execution.
	// tasks is in dependency order, deps maps a task to its dependencies,
	// targets are the requested task ids.
	EmitPlan(ctx context.Context, tasks []string, deps map[string][]string, targets []string)
}

// Span represents a unit of work.
type Span interface {
	io.Writer
	// End completes the span.
	End()
	// RecordError records an error for the span.
	RecordError(err error)
	// SetAttribute adds a key-value pair to the span.
	SetAttribute(key string, value any)
}

// SpanConfig holds configuration for a starting span.
type SpanConfig struct {
	// Task marks spans that represent a scheduled task, as opposed to
	// internal work such as cache checks.
	Task bool
}

// SpanOption is a functional option for configuring a span.
type SpanOption func(*SpanConfig)

// AsTask marks the span as a scheduled task.
func AsTask() SpanOption {
	return func(c *SpanConfig) {
		c.Task = true
	}
}
