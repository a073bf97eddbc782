// Package command provides tasks that run external commands through the
// incremental cache.
package command

import (
	"context"
	"slices"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/engine/incremental"
	"go.trai.ch/kiln/internal/engine/scheduler"
)

var (
	_ domain.Task             = (*Task)(nil)
	_ domain.MetadataProvider = (*Task)(nil)
	_ domain.CacheReporter    = (*Result)(nil)
)

// Runtime is shared by every command task of a run.
type Runtime struct {
	Runner ports.CommandRunner
	Cache  *incremental.Cache
	// Force runs every command even when its cache entry is up to date.
	Force bool
}

// Result is the value produced by a command task.
type Result struct {
	// Outputs are the files the task declared, plus the outputs of its
	// dependencies for tasks without a command.
	Outputs []string
	// Changes lists how the outputs changed compared to the previous run.
	Changes []domain.Change
	// Cached is set when the command did not run.
	Cached bool
}

// FromCache implements domain.CacheReporter.
func (r *Result) FromCache() bool {
	return r.Cached
}

// Task runs a configured command.
type Task struct {
	def domain.TaskDefinition
	rt  *Runtime
}

// New creates a Task for def.
func New(def domain.TaskDefinition, rt *Runtime) *Task {
	return &Task{def: def, rt: rt}
}

// ID implements domain.Task.
func (t *Task) ID() domain.TaskID {
	return t.def.ID
}

// Metadata implements domain.MetadataProvider.
func (t *Task) Metadata() domain.TaskMetadata {
	return t.def.Metadata
}

// Definition returns the configuration the task was created from.
func (t *Task) Definition() domain.TaskDefinition {
	return t.def
}

// Run executes the command unless the cache reports it up to date. The
// outputs of upstream command tasks count as inputs.
func (t *Task) Run(ctx context.Context, deps []domain.TaskResult) (domain.TaskResult, error) {
	var upstream []string
	results := domain.ResultsOf[*Result](deps)
	// An aggregate counts as cached only when it has upstream work, all of it cached.
	cached := len(results) > 0
	for _, r := range results {
		upstream = append(upstream, r.Outputs...)
		cached = cached && r.Cached
	}

	if len(t.def.Command) == 0 {
		return &Result{Outputs: upstream, Cached: cached}, nil
	}

	inputs := incremental.Inputs{
		Configuration: t.configuration(),
		Files:         append(slices.Clone(t.def.Inputs), upstream...),
		Force:         t.rt.Force,
	}

	res, err := t.rt.Cache.Execute(ctx, t.def.ID.String(), inputs, t.execute)
	if err != nil {
		return nil, err
	}
	return &Result{Outputs: res.OutputFiles, Changes: res.Changes, Cached: res.CacheHit}, nil
}

func (t *Task) execute(ctx context.Context) (domain.ExecutionResult, error) {
	out := scheduler.Output(ctx)
	cmd := ports.Command{
		Args:        t.def.Command,
		Environment: t.def.Environment,
		WorkingDir:  t.def.WorkingDir,
	}
	if err := t.rt.Runner.Run(ctx, cmd, out, out); err != nil {
		return domain.ExecutionResult{}, err
	}
	return domain.ExecutionResult{
		OutputFiles:         t.def.Targets,
		ExcludedOutputFiles: t.def.Exclude,
	}, nil
}

// configuration lists everything besides files that affects the command.
func (t *Task) configuration() map[string]string {
	cfg := map[string]string{
		"cmd":        strings.Join(t.def.Command, "\x00"),
		"workingDir": t.def.WorkingDir,
		"targets":    strings.Join(t.def.Targets, "\x00"),
	}
	for k, v := range t.def.Environment {
		cfg["env."+k] = v
	}
	return cfg
}

// BuildGraph registers a Task per definition and returns the validated graph.
func BuildGraph(defs []domain.TaskDefinition, rt *Runtime) (*domain.TaskGraph, error) {
	b := domain.NewGraphBuilder()
	for _, def := range defs {
		if err := b.RegisterTask(New(def, rt), def.DependsOn...); err != nil {
			return nil, err
		}
	}
	return b.Build()
}
