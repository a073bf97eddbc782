package app

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	"go.trai.ch/kiln/internal/adapters/detector"
	"go.trai.ch/kiln/internal/adapters/watcher"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
)

// Watch runs the targets once and again whenever an input of a configured
// task or a configuration file changes, until ctx is done. Build failures
// are logged and do not end the loop.
func (a *App) Watch(ctx context.Context, targetNames []string, opts RunOptions) error {
	if len(targetNames) == 0 {
		return domain.ErrNoTargetsSpecified
	}
	mode, err := detector.ParseMode(opts.OutputMode)
	if err != nil {
		return err
	}
	if mode == detector.ModeAuto {
		mode = detector.ModeLinear
	}

	dir, err := a.workDir()
	if err != nil {
		return err
	}
	root, err := a.loader.DiscoverRoot(dir)
	if err != nil {
		return err
	}

	w, err := a.watchers.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Start(ctx, root); err != nil {
		_ = w.Stop()
		return err
	}

	batches := make(chan []string)
	debouncer := watcher.NewDebouncer(watcher.DefaultDebounceWindow, func(paths []string) {
		select {
		case batches <- paths:
		case <-ctx.Done():
		}
	})

	var wg sync.WaitGroup
	wg.Go(func() {
		for event := range w.Events() {
			debouncer.Add(event.Path)
		}
	})
	defer func() {
		_ = w.Stop()
		wg.Wait()
		debouncer.Stop()
	}()

	s := &watchSession{app: a, targets: targetNames, opts: opts, mode: mode}
	s.reload()
	s.build(ctx)
	a.logger.Info("watching for changes")

	for {
		select {
		case <-ctx.Done():
			return nil
		case paths := <-batches:
			if s.handle(ctx, paths) {
				a.logger.Info("watching for changes")
			}
		}
	}
}

// watchSession holds the configuration of a running watch.
type watchSession struct {
	app     *App
	targets []string
	opts    RunOptions
	mode    detector.OutputMode

	project *ports.Project
	index   *watcher.Index
}

// reload reads the configuration again. On failure the previous project
// stays in place.
func (s *watchSession) reload() {
	project, err := s.app.load()
	if err != nil {
		s.app.logger.Error(err)
		return
	}
	s.project = project
	s.index = watcher.NewIndex(project.Tasks)
}

func (s *watchSession) build(ctx context.Context) {
	if s.project == nil {
		return
	}
	if _, err := s.app.execute(ctx, s.project, s.targets, s.opts, s.mode); err != nil && ctx.Err() == nil {
		s.app.logger.Error(err)
	}
}

// handle rebuilds when paths touch a configuration file or a task input.
// It reports whether a build ran.
func (s *watchSession) handle(ctx context.Context, paths []string) bool {
	if slices.ContainsFunc(paths, isConfigFile) {
		s.app.logger.Info("configuration changed, reloading")
		s.reload()
		s.build(ctx)
		return true
	}

	if s.index == nil {
		return false
	}
	affected := s.index.Affected(paths)
	if len(affected) == 0 {
		return false
	}

	s.app.logger.Info(fmt.Sprintf("%d file(s) changed, affecting %s", len(paths), affectedSummary(affected)))
	s.build(ctx)
	return true
}

func isConfigFile(path string) bool {
	base := filepath.Base(path)
	return base == domain.KilnFileName || base == domain.WorkFileName
}

func affectedSummary(ids []domain.TaskID) string {
	const limit = 3
	names := domain.TaskIDStrings(ids[:min(len(ids), limit)])
	summary := fmt.Sprint(names)
	if len(ids) > limit {
		summary += fmt.Sprintf(" and %d more", len(ids)-limit)
	}
	return summary
}
