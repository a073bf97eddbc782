package commands_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/cmd/kiln/commands"
	"go.trai.ch/kiln/internal/app"
	"go.trai.ch/kiln/internal/build"
)

type mockApp struct {
	runFunc   func(ctx context.Context, targetNames []string, opts app.RunOptions) error
	watchFunc func(ctx context.Context, targetNames []string, opts app.RunOptions) error
	graphFunc func(ctx context.Context, targetNames []string, filter app.Filter, w io.Writer) error
	cleanFunc func(ctx context.Context, opts app.CleanOptions) error
}

func (m *mockApp) Run(ctx context.Context, targetNames []string, opts app.RunOptions) error {
	if m.runFunc != nil {
		return m.runFunc(ctx, targetNames, opts)
	}
	return nil
}

func (m *mockApp) Watch(ctx context.Context, targetNames []string, opts app.RunOptions) error {
	if m.watchFunc != nil {
		return m.watchFunc(ctx, targetNames, opts)
	}
	return nil
}

func (m *mockApp) Graph(ctx context.Context, targetNames []string, filter app.Filter, w io.Writer) error {
	if m.graphFunc != nil {
		return m.graphFunc(ctx, targetNames, filter, w)
	}
	return nil
}

func (m *mockApp) Clean(ctx context.Context, opts app.CleanOptions) error {
	if m.cleanFunc != nil {
		return m.cleanFunc(ctx, opts)
	}
	return nil
}

type recordingLogger struct {
	json  bool
	level slog.Level
}

func (l *recordingLogger) SetJSON(enable bool)       { l.json = enable }
func (l *recordingLogger) SetLevel(level slog.Level) { l.level = level }

func TestCommands_Run(t *testing.T) {
	t.Run("wires flags correctly", func(t *testing.T) {
		var capturedOpts app.RunOptions
		var capturedTargets []string

		mock := &mockApp{
			runFunc: func(_ context.Context, targetNames []string, opts app.RunOptions) error {
				capturedOpts = opts
				capturedTargets = targetNames
				return nil
			},
		}

		cli := commands.New(mock)
		cli.SetArgs([]string{
			"run", "build", "test",
			"--keep-going", "-j", "4", "--force", "--output-mode", "tui",
			"--kind", "test", "--platform", "linux", "--module", "core",
		})

		require.NoError(t, cli.Execute(context.Background()))
		assert.Equal(t, []string{"build", "test"}, capturedTargets)
		assert.Equal(t, app.RunOptions{
			Filter:     app.Filter{Kind: "test", Platform: "linux", Module: "core"},
			KeepGoing:  true,
			Jobs:       4,
			Force:      true,
			OutputMode: "tui",
		}, capturedOpts)
	})

	t.Run("ci overrides output mode", func(t *testing.T) {
		var capturedOpts app.RunOptions
		mock := &mockApp{
			runFunc: func(_ context.Context, _ []string, opts app.RunOptions) error {
				capturedOpts = opts
				return nil
			},
		}

		cli := commands.New(mock)
		cli.SetArgs([]string{"run", "build", "-o", "tui", "--ci"})

		require.NoError(t, cli.Execute(context.Background()))
		assert.Equal(t, "linear", capturedOpts.OutputMode)
	})

	t.Run("returns error on run failure", func(t *testing.T) {
		mock := &mockApp{
			runFunc: func(_ context.Context, _ []string, _ app.RunOptions) error {
				return errors.New("simulated error")
			},
		}

		cli := commands.New(mock)
		cli.SetArgs([]string{"run", "target"})
		cli.SetOutput(new(bytes.Buffer), new(bytes.Buffer))

		err := cli.Execute(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "simulated error")
	})

	t.Run("shows usage when no targets provided", func(t *testing.T) {
		mock := &mockApp{
			runFunc: func(_ context.Context, _ []string, _ app.RunOptions) error {
				panic("should not be called")
			},
		}

		cli := commands.New(mock)
		buf := new(bytes.Buffer)
		cli.SetOutput(buf, buf)
		cli.SetArgs([]string{"run"})

		require.NoError(t, cli.Execute(context.Background()))
		assert.Contains(t, buf.String(), "Usage:")
	})
}

func TestCommands_Watch(t *testing.T) {
	var capturedTargets []string
	var capturedOpts app.RunOptions
	mock := &mockApp{
		watchFunc: func(_ context.Context, targetNames []string, opts app.RunOptions) error {
			capturedTargets = targetNames
			capturedOpts = opts
			return nil
		},
	}

	cli := commands.New(mock)
	cli.SetArgs([]string{"watch", "all", "-k"})

	require.NoError(t, cli.Execute(context.Background()))
	assert.Equal(t, []string{"all"}, capturedTargets)
	assert.True(t, capturedOpts.KeepGoing)
	assert.Equal(t, "auto", capturedOpts.OutputMode)
}

func TestCommands_Graph(t *testing.T) {
	var capturedTargets []string
	var capturedFilter app.Filter
	mock := &mockApp{
		graphFunc: func(_ context.Context, targetNames []string, filter app.Filter, w io.Writer) error {
			capturedTargets = targetNames
			capturedFilter = filter
			_, err := io.WriteString(w, "lib\n")
			return err
		},
	}

	cli := commands.New(mock)
	buf := new(bytes.Buffer)
	cli.SetOutput(buf, buf)
	cli.SetArgs([]string{"graph", "lib", "--kind", "build"})

	require.NoError(t, cli.Execute(context.Background()))
	assert.Equal(t, []string{"lib"}, capturedTargets)
	assert.Equal(t, app.Filter{Kind: "build"}, capturedFilter)
	assert.Equal(t, "lib\n", buf.String())
}

func TestCommands_Clean(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want app.CleanOptions
	}{
		{name: "default", args: []string{"clean"}, want: app.CleanOptions{State: true}},
		{name: "logs", args: []string{"clean", "--logs"}, want: app.CleanOptions{State: true, Logs: true}},
		{name: "all", args: []string{"clean", "-a"}, want: app.CleanOptions{State: true, All: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured app.CleanOptions
			mock := &mockApp{
				cleanFunc: func(_ context.Context, opts app.CleanOptions) error {
					captured = opts
					return nil
				},
			}

			cli := commands.New(mock)
			cli.SetArgs(tt.args)

			require.NoError(t, cli.Execute(context.Background()))
			assert.Equal(t, tt.want, captured)
		})
	}
}

func TestCommands_LoggerFlags(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantJSON  bool
		wantLevel slog.Level
	}{
		{name: "defaults", args: []string{"version"}, wantLevel: slog.LevelInfo},
		{name: "verbose", args: []string{"-v", "version"}, wantLevel: slog.LevelDebug},
		{name: "json logs", args: []string{"version", "--json-logs"}, wantJSON: true, wantLevel: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &recordingLogger{level: slog.LevelInfo}
			cli := commands.New(&mockApp{}, commands.WithLoggerConfig(log))
			cli.SetOutput(io.Discard, io.Discard)
			cli.SetArgs(tt.args)

			require.NoError(t, cli.Execute(context.Background()))
			assert.Equal(t, tt.wantJSON, log.json)
			assert.Equal(t, tt.wantLevel, log.level)
		})
	}
}

func TestCommands_Version(t *testing.T) {
	mock := &mockApp{}
	cli := commands.New(mock)

	buf := new(bytes.Buffer)
	cli.SetOutput(buf, buf)
	cli.SetArgs([]string{"version"})

	require.NoError(t, cli.Execute(context.Background()))
	assert.Equal(t, "kiln version "+build.Version+" (commit: "+build.Commit+", date: "+build.Date+")\n", buf.String())
}
