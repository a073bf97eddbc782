package telemetry

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.trai.ch/kiln/internal/core/ports"
)

// EventBufferSize is the capacity of the renderer event queue.
const EventBufferSize = 4096

var _ sdktrace.SpanProcessor = (*Bridge)(nil)

// Bridge implements sdktrace.SpanProcessor and forwards task spans to a
// Renderer. Spans not started with ports.AsTask are ignored.
//
// All renderer callbacks, including log chunks and plans coming from
// OTelTracer, run in order on a single goroutine, so a task's output is
// always delivered before its completion.
type Bridge struct {
	renderer ports.Renderer

	mu     sync.RWMutex
	closed bool
	events chan func()
	done   chan struct{}
}

// NewBridge returns a Bridge feeding renderer. A nil renderer yields a
// Bridge that drops everything.
func NewBridge(renderer ports.Renderer) *Bridge {
	b := &Bridge{renderer: renderer, done: make(chan struct{})}
	if renderer == nil {
		b.closed = true
		close(b.done)
		return b
	}

	b.events = make(chan func(), EventBufferSize)
	go b.run()
	return b
}

func (b *Bridge) run() {
	defer close(b.done)
	for fn := range b.events {
		fn()
	}
}

// send queues fn. When wait is false and the queue is full, fn is dropped
// rather than stalling the caller.
func (b *Bridge) send(fn func(), wait bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	if wait {
		b.events <- fn
		return
	}
	select {
	case b.events <- fn:
	default:
	}
}

func (b *Bridge) plan(tasks []string, deps map[string][]string, targets []string) {
	b.send(func() { b.renderer.OnPlanEmit(tasks, deps, targets) }, true)
}

func (b *Bridge) log(spanID string, data []byte) {
	b.send(func() { b.renderer.OnTaskLog(spanID, data) }, false)
}

// OnStart is called when a span starts.
func (b *Bridge) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	sc := s.SpanContext()
	if !sc.IsValid() || !hasAttribute(s.Attributes(), ports.AttrTask) {
		return
	}

	var parentID string
	if parentSpan := trace.SpanFromContext(parent); parentSpan.SpanContext().IsValid() {
		parentID = parentSpan.SpanContext().SpanID().String()
	}

	spanID, name, start := sc.SpanID().String(), s.Name(), s.StartTime()
	b.send(func() { b.renderer.OnTaskStart(spanID, parentID, name, start) }, true)
}

// OnEnd is called when a span ends.
func (b *Bridge) OnEnd(s sdktrace.ReadOnlySpan) {
	sc := s.SpanContext()
	if !sc.IsValid() || !hasAttribute(s.Attributes(), ports.AttrTask) {
		return
	}

	var err error
	if s.Status().Code == codes.Error {
		desc := s.Status().Description
		if desc == "" {
			desc = "task failed"
		}
		err = errors.New(desc)
	}

	spanID, end := sc.SpanID().String(), s.EndTime()
	cached := hasAttribute(s.Attributes(), ports.AttrCached)
	b.send(func() { b.renderer.OnTaskComplete(spanID, end, err, cached) }, true)
}

// ForceFlush blocks until every queued event has been delivered.
func (b *Bridge) ForceFlush(ctx context.Context) error {
	flushed := make(chan struct{})
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil
	}
	b.events <- func() { close(flushed) }
	b.mu.RUnlock()

	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting events and waits for the queue to drain.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.events)
	}
	b.mu.Unlock()

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func hasAttribute(attrs []attribute.KeyValue, key string) bool {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value.Type() == attribute.BOOL && kv.Value.AsBool()
		}
	}
	return false
}
