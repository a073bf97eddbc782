// Package scheduler runs the tasks of a TaskGraph on a bounded worker pool.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

// Mode selects how a run reacts to a failed task.
type Mode int

const (
	// FailFast stops dispatching after the first failure.
	FailFast Mode = iota
	// KeepGoing skips the dependents of a failed task and runs everything else.
	KeepGoing
)

func (m Mode) String() string {
	if m == KeepGoing {
		return "keep-going"
	}
	return "fail-fast"
}

// DefaultParallelism is the worker count used when none is configured: the
// number of CPUs the process may use.
func DefaultParallelism() int {
	return runtime.GOMAXPROCS(0)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithParallelism bounds the number of tasks running at once.
// Values below one fall back to DefaultParallelism.
func WithParallelism(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// WithListener reports task progress to l.
func WithListener(l ports.ProgressListener) Option {
	return func(s *Scheduler) {
		s.listener = l
	}
}

// WithTracer records a span per executed task.
func WithTracer(t ports.Tracer) Option {
	return func(s *Scheduler) {
		s.tracer = t
	}
}

// WithLogger logs scheduling decisions at debug level.
func WithLogger(l ports.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// Scheduler manages the execution of tasks in the dependency graph.
// A Scheduler holds no per-run state and may run several times.
type Scheduler struct {
	graph       *domain.TaskGraph
	mode        Mode
	parallelism int
	listener    ports.ProgressListener
	tracer      ports.Tracer
	logger      ports.Logger
}

// New creates a Scheduler for graph.
func New(graph *domain.TaskGraph, mode Mode, opts ...Option) *Scheduler {
	s := &Scheduler{
		graph:       graph,
		mode:        mode,
		parallelism: DefaultParallelism(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunTasks executes ids and everything they depend on. Each task runs at
// most once and only after all of its dependencies succeeded.
//
// Unknown ids and cycles are reported before anything runs. Otherwise every
// task of the run is present in the returned Results. In FailFast mode the
// first failure is returned as an *domain.ExecutionError; in KeepGoing mode
// failures are only reported through Results.
func (s *Scheduler) RunTasks(ctx context.Context, ids []domain.TaskID) (domain.Results, error) {
	if err := s.checkTargets(ids); err != nil {
		return nil, err
	}

	closure := s.graph.Closure(ids)
	if cycle := s.graph.FindCycle(closure); cycle != nil {
		return nil, domain.CycleError(cycle)
	}
	order := s.graph.TopologicalOrder(closure)
	s.emitPlan(ctx, order, ids)

	hooks := &hookSet{}
	ctx = withHooks(ctx, hooks)

	state := s.newRunState(ctx, order)
	results, err := state.runExecutionLoop()

	if hookErr := hooks.run(context.WithoutCancel(ctx)); hookErr != nil {
		err = errors.Join(err, hookErr)
	}
	return results, err
}

// checkTargets reports unknown ids, suggesting registered ids that look similar.
func (s *Scheduler) checkTargets(ids []domain.TaskID) error {
	var missing []string
	for _, id := range ids {
		if !s.graph.Has(id) {
			missing = append(missing, id.String())
		}
	}
	if len(missing) == 0 {
		return nil
	}

	msg := strings.Join(missing, ", ")
	if suggestions := s.suggest(missing); len(suggestions) > 0 {
		msg += "; maybe you meant one of: " + strings.Join(suggestions, ", ")
	}
	return zerr.With(zerr.Wrap(domain.ErrTaskNotFound, msg), "tasks", missing)
}

func (s *Scheduler) suggest(missing []string) []string {
	var res []string
	for id := range s.graph.IDs() {
		name := strings.ToLower(id.String())
		for _, m := range missing {
			m = strings.ToLower(m)
			if m != "" && (strings.Contains(name, m) || strings.Contains(m, name)) {
				res = append(res, id.String())
				break
			}
		}
	}
	slices.Sort(res)
	return res
}

func (s *Scheduler) emitPlan(ctx context.Context, order, targets []domain.TaskID) {
	if s.tracer == nil {
		return
	}
	deps := make(map[string][]string, len(order))
	for _, id := range order {
		deps[id.String()] = domain.TaskIDStrings(s.graph.Dependencies(id))
	}
	s.tracer.EmitPlan(ctx, domain.TaskIDStrings(order), deps, domain.TaskIDStrings(targets))
}

func (s *Scheduler) debugf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(fmt.Sprintf(format, args...))
	}
}

type result struct {
	id       domain.TaskID
	value    domain.TaskResult
	err      error
	skipped  bool
	started  time.Time
	finished time.Time
}

type runState struct {
	s           *Scheduler
	ctx         context.Context
	taskCtx     context.Context
	cancelTasks context.CancelCauseFunc

	order     []domain.TaskID
	inRun     map[domain.TaskID]bool
	inDegree  map[domain.TaskID]int
	ready     []domain.TaskID
	active    int
	resultsCh chan result
	results   domain.Results

	// stopped is read by workers right before a task starts.
	stopped     atomic.Bool
	firstErr    error
	firstFailed domain.TaskID
	ctxErr      error
}

func (s *Scheduler) newRunState(ctx context.Context, order []domain.TaskID) *runState {
	taskCtx, cancel := context.WithCancelCause(ctx)
	state := &runState{
		s:           s,
		ctx:         ctx,
		taskCtx:     taskCtx,
		cancelTasks: cancel,
		order:       order,
		inRun:       make(map[domain.TaskID]bool, len(order)),
		inDegree:    make(map[domain.TaskID]int, len(order)),
		resultsCh:   make(chan result, s.parallelism),
		results:     make(domain.Results, len(order)),
	}

	for _, id := range order {
		state.inRun[id] = true
	}
	for _, id := range order {
		for _, dep := range s.graph.Dependencies(id) {
			if state.inRun[dep] {
				state.inDegree[id]++
			}
		}
		if state.inDegree[id] == 0 {
			state.ready = append(state.ready, id)
		}
	}
	return state
}

func (state *runState) runExecutionLoop() (domain.Results, error) {
	defer state.cancelTasks(nil)

	done := state.ctx.Done()
	for !state.isDone() {
		state.schedule()

		if state.isDone() {
			break
		}

		select {
		case res := <-state.resultsCh:
			state.handleResult(res)
		case <-done:
			done = nil
			state.ctxErr = state.ctx.Err()
			state.stop(context.Cause(state.ctx))
		}
	}

	if state.ctxErr == nil && state.ctx.Err() != nil {
		state.ctxErr = state.ctx.Err()
	}

	// Tasks left pending waited on a dependency that never succeeded.
	for _, id := range state.order {
		if _, ok := state.results[id]; !ok {
			state.skip(id, state.firstFailed)
		}
	}

	var err error
	if state.s.mode == FailFast && state.firstErr != nil {
		err = &domain.ExecutionError{Task: state.firstFailed, Err: state.firstErr}
	}
	if state.ctxErr != nil {
		err = errors.Join(err, state.ctxErr)
	}
	return state.results, err
}

func (state *runState) isDone() bool {
	return state.active == 0 && len(state.ready) == 0
}

func (state *runState) schedule() {
	for len(state.ready) > 0 && state.active < state.s.parallelism {
		if err := state.ctx.Err(); err != nil && !state.stopped.Load() {
			state.ctxErr = err
			state.stop(context.Cause(state.ctx))
		}
		if state.stopped.Load() {
			for _, id := range state.ready {
				state.skip(id, state.firstFailed)
			}
			state.ready = nil
			return
		}

		id := state.ready[0]
		state.ready = state.ready[1:]
		state.active++

		task, _ := state.s.graph.Task(id)
		go state.executeTask(task, state.dependencyResults(id))
	}
}

// dependencyResults collects the values of id's dependencies in registration order.
func (state *runState) dependencyResults(id domain.TaskID) []domain.TaskResult {
	deps := state.s.graph.Dependencies(id)
	values := make([]domain.TaskResult, len(deps))
	for i, dep := range deps {
		values[i] = state.results[dep].Value
	}
	return values
}

func (state *runState) executeTask(task domain.Task, deps []domain.TaskResult) {
	id := task.ID()
	if state.stopped.Load() {
		state.resultsCh <- result{id: id, skipped: true}
		return
	}

	started := time.Now()
	if state.s.listener != nil {
		state.s.listener.TaskStarted(id, started)
	}

	// The span must end before the result is sent so that renderers see the
	// completion before the run returns.
	res := func() result {
		ctx, span := state.startSpan(id)
		defer span.End()

		value, err := runTask(ctx, task, deps)
		if err != nil {
			span.RecordError(err)
		} else if c, ok := value.(domain.CacheReporter); ok && c.FromCache() {
			span.SetAttribute(ports.AttrCached, true)
		}
		return result{id: id, value: value, err: err, started: started}
	}()
	res.finished = time.Now()

	state.resultsCh <- res
}

func runTask(ctx context.Context, task domain.Task, deps []domain.TaskResult) (value domain.TaskResult, err error) {
	defer zerr.Defer(func(panicErr error) {
		value, err = nil, panicErr
	})
	return task.Run(ctx, deps)
}

func (state *runState) startSpan(id domain.TaskID) (context.Context, ports.Span) {
	if state.s.tracer == nil {
		ctx := contextWithOutput(state.taskCtx, discard{})
		return ctx, discard{}
	}
	ctx, span := state.s.tracer.Start(state.taskCtx, id.String(), ports.AsTask())
	return contextWithOutput(ctx, span), span
}

func (state *runState) handleResult(res result) {
	state.active--

	if res.skipped {
		state.skip(res.id, state.firstFailed)
		return
	}

	r := domain.Result{
		Value:    res.value,
		Started:  res.started,
		Finished: res.finished,
	}

	if res.err != nil {
		r.Status = domain.StatusFailed
		r.Err = domain.TaskFailure(res.id, res.err)
		state.finish(res.id, r)
		state.s.debugf("scheduler: %s failed", res.id)

		if state.firstErr == nil {
			state.firstErr = r.Err
			state.firstFailed = res.id
		}
		if state.s.mode == FailFast {
			state.stop(domain.ErrFailFast)
		} else {
			state.skipDependents(res.id)
		}
		return
	}

	r.Status = domain.StatusSucceeded
	state.finish(res.id, r)

	for _, dep := range state.s.graph.Dependents(res.id) {
		if !state.inRun[dep] {
			continue
		}
		state.inDegree[dep]--
		if state.inDegree[dep] == 0 {
			state.ready = append(state.ready, dep)
		}
	}
}

// skipDependents marks every task of the run that transitively depends on
// failed as skipped.
func (state *runState) skipDependents(failed domain.TaskID) {
	queue := state.s.graph.Dependents(failed)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if !state.inRun[id] {
			continue
		}
		if _, done := state.results[id]; done {
			continue
		}
		state.skip(id, failed)
		queue = append(queue, state.s.graph.Dependents(id)...)
	}
}

func (state *runState) stop(cause error) {
	if state.stopped.Swap(true) {
		return
	}
	state.s.debugf("scheduler: stopping run: %v", cause)
	state.cancelTasks(cause)
}

func (state *runState) skip(id, because domain.TaskID) {
	if _, done := state.results[id]; done {
		return
	}
	state.finish(id, domain.Result{Status: domain.StatusSkipped, SkippedBecause: because})
}

func (state *runState) finish(id domain.TaskID, r domain.Result) {
	state.results[id] = r
	if state.s.listener != nil {
		state.s.listener.TaskFinished(id, r)
	}
}
