package main

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/kiln/internal/adapters/cas"
	"go.trai.ch/kiln/internal/adapters/fs"
	"go.trai.ch/kiln/internal/app"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

type testEnv struct {
	dir      string
	loader   *mocks.MockConfigLoader
	logger   *mocks.MockLogger
	runner   *mocks.MockCommandRunner
	watchers *mocks.MockWatcherFactory
	provider ComponentProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctrl := gomock.NewController(t)
	env := &testEnv{
		dir:      t.TempDir(),
		loader:   mocks.NewMockConfigLoader(ctrl),
		logger:   mocks.NewMockLogger(ctrl),
		runner:   mocks.NewMockCommandRunner(ctrl),
		watchers: mocks.NewMockWatcherFactory(ctrl),
	}
	application := app.New(
		env.loader,
		env.runner,
		env.logger,
		cas.Factory{},
		fs.NewFingerprinter(fs.NewWalker()),
		env.watchers,
	).WithDir(env.dir).WithOutput(&bytes.Buffer{}, &bytes.Buffer{})

	env.provider = func(_ context.Context) (*app.Components, func(), error) {
		return &app.Components{App: application, Logger: env.logger}, func() {}, nil
	}
	return env
}

// TestRun_Success verifies that the run function returns 0 when the command succeeds.
func TestRun_Success(t *testing.T) {
	env := newTestEnv(t)

	exitCode := run(context.Background(), []string{"version"}, new(bytes.Buffer), env.provider)
	assert.Equal(t, 0, exitCode)
}

// TestRun_InitializationError verifies that run returns 1 when component initialization fails.
func TestRun_InitializationError(t *testing.T) {
	provider := func(_ context.Context) (*app.Components, func(), error) {
		return nil, nil, errors.New("init failed")
	}

	stderr := new(bytes.Buffer)
	exitCode := run(context.Background(), []string{"version"}, stderr, provider)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "Error: init failed")
}

// TestRun_ExecutionError verifies that errors outside task execution are logged.
func TestRun_ExecutionError(t *testing.T) {
	env := newTestEnv(t)
	env.loader.EXPECT().Load(env.dir).Return(nil, errors.New("load failed"))
	env.logger.EXPECT().Error(gomock.Any()).Times(1)

	exitCode := run(context.Background(), []string{"run", "target"}, new(bytes.Buffer), env.provider)
	assert.Equal(t, 1, exitCode)
}

// TestRun_TaskFailureNotLogged verifies that failed tasks only set the exit
// code; the renderer has already reported them.
func TestRun_TaskFailureNotLogged(t *testing.T) {
	env := newTestEnv(t)
	env.loader.EXPECT().Load(env.dir).Return(&ports.Project{
		Root:  env.dir,
		Tasks: []domain.TaskDefinition{{ID: domain.NewTaskID("lint"), Command: []string{"lint"}}},
	}, nil)
	env.runner.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(domain.ErrCommandFailed)
	env.logger.EXPECT().Error(gomock.Any()).Times(0)

	exitCode := run(context.Background(), []string{"run", "lint", "--ci"}, new(bytes.Buffer), env.provider)
	assert.Equal(t, 1, exitCode)
}

// TestRun_WatchStopsOnCancel verifies that watch returns cleanly once the
// context is canceled.
func TestRun_WatchStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	ctrl := gomock.NewController(t)
	w := mocks.NewMockWatcher(ctrl)
	started := make(chan struct{})

	env.loader.EXPECT().DiscoverRoot(env.dir).Return(env.dir, nil)
	env.loader.EXPECT().Load(env.dir).Return(&ports.Project{Root: env.dir}, nil)
	env.watchers.EXPECT().NewWatcher().Return(w, nil)
	w.EXPECT().Start(gomock.Any(), env.dir).Return(nil)
	w.EXPECT().Events().Return(iter.Seq[ports.WatchEvent](func(func(ports.WatchEvent) bool) {}))
	w.EXPECT().Stop().Return(nil)
	env.logger.EXPECT().Error(gomock.Any()).AnyTimes()
	env.logger.EXPECT().Info(gomock.Any()).Do(func(string) {
		close(started)
	})

	ctx, cancel := context.WithCancel(context.Background())
	exitCh := make(chan int)
	go func() {
		exitCh <- run(ctx, []string{"watch", "all"}, new(bytes.Buffer), env.provider)
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not start")
	}
	cancel()

	select {
	case code := <-exitCh:
		assert.Equal(t, 0, code)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
