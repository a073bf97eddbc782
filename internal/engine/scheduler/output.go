package scheduler

import (
	"context"
	"io"
)

type outputKey struct{}

func contextWithOutput(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, outputKey{}, w)
}

// Output returns the writer a running task should send its log output to.
// Outside of a run it discards everything.
func Output(ctx context.Context) io.Writer {
	if w, ok := ctx.Value(outputKey{}).(io.Writer); ok {
		return w
	}
	return io.Discard
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
func (discard) End() {}
func (discard) RecordError(error) {}
func (discard) SetAttribute(string, any) {}
