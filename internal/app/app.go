// Package app implements the kiln commands on top of the engine.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.trai.ch/kiln/internal/adapters/detector"
	"go.trai.ch/kiln/internal/adapters/linear"
	"go.trai.ch/kiln/internal/adapters/logger"
	"go.trai.ch/kiln/internal/adapters/telemetry"
	"go.trai.ch/kiln/internal/adapters/tui"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/engine/command"
	"go.trai.ch/kiln/internal/engine/incremental"
	"go.trai.ch/kiln/internal/engine/scheduler"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// TracerName names the OpenTelemetry tracer of a run.
const TracerName = "kiln"

// App represents the main application logic.
type App struct {
	loader   ports.ConfigLoader
	runner   ports.CommandRunner
	logger   ports.Logger
	stores   ports.StateStoreFactory
	fp       ports.Fingerprinter
	watchers ports.WatcherFactory

	teaOptions  []tea.ProgramOption
	disableTick bool
	dir         string
	stdout      io.Writer
	stderr      io.Writer
	detect      func() detector.OutputMode
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	runner ports.CommandRunner,
	log ports.Logger,
	stores ports.StateStoreFactory,
	fp ports.Fingerprinter,
	watchers ports.WatcherFactory,
) *App {
	return &App{
		loader:   loader,
		runner:   runner,
		logger:   log,
		stores:   stores,
		fp:       fp,
		watchers: watchers,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		detect: func() detector.OutputMode {
			return detector.DetectEnvironment(os.Stderr)
		},
	}
}

// WithTeaOptions adds bubbletea program options to the App.
// This is primarily used for testing to disable input/output.
func (a *App) WithTeaOptions(opts ...tea.ProgramOption) *App {
	a.teaOptions = append(a.teaOptions, opts...)
	return a
}

// WithDisableTick disables the TUI tick loop.
// This is primarily used for testing with synctest to avoid goroutine deadlocks.
func (a *App) WithDisableTick() *App {
	a.disableTick = true
	return a
}

// WithDir makes the App discover configuration from dir instead of the
// process working directory.
func (a *App) WithDir(dir string) *App {
	a.dir = dir
	return a
}

// WithOutput redirects renderer output. Automatic mode detection then
// always selects the linear renderer.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.detect = func() detector.OutputMode { return detector.ModeLinear }
	return a
}

// RunOptions configuration for the Run method.
type RunOptions struct {
	Filter Filter
	// KeepGoing runs every task not depending on a failure instead of
	// stopping at the first one.
	KeepGoing bool
	// Jobs bounds the number of concurrent tasks. Zero picks a default.
	Jobs       int
	Force      bool
	OutputMode string
}

// Run executes the build process for the specified targets.
func (a *App) Run(ctx context.Context, targetNames []string, opts RunOptions) error {
	mode, err := detector.ParseMode(opts.OutputMode)
	if err != nil {
		return err
	}

	project, err := a.load()
	if err != nil {
		return err
	}

	_, err = a.execute(ctx, project, targetNames, opts, detector.ResolveMode(a.detect(), mode))
	return err
}

// execute runs one build of project with the renderer selected by mode.
//
//nolint:cyclop // orchestration function
func (a *App) execute(
	ctx context.Context,
	project *ports.Project,
	targetNames []string,
	opts RunOptions,
	mode detector.OutputMode,
) (domain.Results, error) {
	if len(targetNames) == 0 {
		return nil, domain.ErrNoTargetsSpecified
	}
	targets, err := selectTargets(project.Tasks, targetNames, opts.Filter)
	if err != nil {
		return nil, err
	}

	rt := &command.Runtime{Runner: a.runner, Force: opts.Force}
	graph, err := command.BuildGraph(project.Tasks, rt)
	if err != nil {
		return nil, err
	}

	store, err := a.stores.Open(project.Root)
	if err != nil {
		return nil, err
	}

	debugLog, closeLog := a.openDebugLog(project.Root)
	defer closeLog()

	renderer := a.newRenderer(ctx, mode)
	bridge := telemetry.NewBridge(renderer)
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(bridge))
	tracer := telemetry.NewOTelTracer(tp, TracerName, bridge)

	rt.Cache = incremental.New(store, a.fp, project.CodeVersion,
		incremental.WithTracer(tracer),
		incremental.WithLogger(debugLog),
	)

	schedMode := scheduler.FailFast
	if opts.KeepGoing {
		schedMode = scheduler.KeepGoing
	}
	sched := scheduler.New(graph, schedMode,
		scheduler.WithParallelism(opts.Jobs),
		scheduler.WithTracer(tracer),
		scheduler.WithLogger(debugLog),
		scheduler.WithListener(runLog{log: debugLog}),
	)

	var results domain.Results
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := renderer.Start(gctx); err != nil {
			return err
		}
		return renderer.Wait()
	})

	g.Go(func() error {
		defer func() {
			// Shutdown drains the bridge, so every event reaches the
			// renderer before it stops.
			_ = tp.Shutdown(context.WithoutCancel(ctx))
			_ = renderer.Stop()
		}()

		var runErr error
		results, runErr = sched.RunTasks(gctx, targets)
		if results == nil {
			// Unknown targets and cycles are rejected before any task runs.
			return runErr
		}
		if runErr == nil {
			runErr = results.Err()
		}
		if runErr != nil {
			return errors.Join(domain.ErrBuildExecutionFailed, runErr)
		}
		return nil
	})

	return results, g.Wait()
}

func (a *App) newRenderer(ctx context.Context, mode detector.OutputMode) ports.Renderer {
	if mode != detector.ModeTUI {
		return linear.NewRenderer(a.stdout, a.stderr)
	}

	model := tui.NewModel(a.stderr)
	if a.disableTick {
		model = model.WithDisableTick()
	}
	opts := append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithOutput(a.stderr)}, a.teaOptions...)
	return tui.NewRenderer(&model, opts...)
}

// openDebugLog truncates root/.kiln/debug.log and returns a debug level
// JSON logger writing to it. Failures are reported as warnings and yield a
// logger that discards everything.
func (a *App) openDebugLog(root string) (ports.Logger, func()) {
	path := filepath.Join(root, domain.DefaultDebugLogPath())
	if err := os.MkdirAll(filepath.Dir(path), domain.DirPerm); err != nil {
		a.logger.Warn(fmt.Sprintf("debug log disabled: %v", err))
		return logger.NewJSON(io.Discard, slog.LevelDebug), func() {}
	}

	//nolint:gosec // path is derived from the project root
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, domain.PrivateFilePerm)
	if err != nil {
		a.logger.Warn(fmt.Sprintf("debug log disabled: %v", err))
		return logger.NewJSON(io.Discard, slog.LevelDebug), func() {}
	}
	return logger.NewJSON(f, slog.LevelDebug), func() { _ = f.Close() }
}

// load reads the configuration visible from the working directory.
func (a *App) load() (*ports.Project, error) {
	dir, err := a.workDir()
	if err != nil {
		return nil, err
	}
	project, err := a.loader.Load(dir)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load configuration")
	}
	return project, nil
}

func (a *App) workDir() (string, error) {
	if a.dir != "" {
		return a.dir, nil
	}
	dir, err := os.Getwd()
	if err != nil {
		return "", zerr.Wrap(err, "failed to get working directory")
	}
	return dir, nil
}

// CleanOptions configuration for the Clean method.
type CleanOptions struct {
	// State removes the incremental cache.
	State bool
	// Logs removes the debug log.
	Logs bool
	// All removes the whole .kiln directory.
	All bool
}

// Clean removes kiln's files below the project root.
func (a *App) Clean(_ context.Context, options CleanOptions) error {
	dir, err := a.workDir()
	if err != nil {
		return err
	}
	root, err := a.loader.DiscoverRoot(dir)
	if err != nil {
		return zerr.Wrap(err, "failed to load configuration")
	}

	var errs error
	remove := func(name string, fn func() error) {
		a.logger.Info(fmt.Sprintf("removing %s...", name))
		if err := fn(); err != nil {
			errs = errors.Join(errs, zerr.Wrap(err, fmt.Sprintf("failed to remove %s", name)))
			return
		}
		a.logger.Info(fmt.Sprintf("removed %s", name))
	}

	if options.All {
		remove(domain.KilnDirName, func() error {
			return os.RemoveAll(filepath.Join(root, domain.DefaultKilnPath()))
		})
		return errs
	}
	if options.State {
		remove("incremental state", func() error { return a.stores.Clean(root) })
	}
	if options.Logs {
		remove("debug log", func() error {
			err := os.Remove(filepath.Join(root, domain.DefaultDebugLogPath()))
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		})
	}
	return errs
}

// runLog writes task progress to the debug log.
type runLog struct {
	log ports.Logger
}

func (l runLog) TaskStarted(id domain.TaskID, _ time.Time) {
	l.log.Debug(fmt.Sprintf("task %s started", id))
}

func (l runLog) TaskFinished(id domain.TaskID, result domain.Result) {
	msg := fmt.Sprintf("task %s %s in %s", id, result.Status, result.Duration())
	if c, ok := result.Value.(domain.CacheReporter); ok && c.FromCache() {
		msg += " (cached)"
	}
	if !result.SkippedBecause.IsZero() {
		msg += fmt.Sprintf(" because %s failed", result.SkippedBecause)
	}
	l.log.Debug(msg)
}
