package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/core/ports/mocks"
	"go.trai.ch/kiln/internal/engine/scheduler"
	"go.uber.org/mock/gomock"
)

// recorder collects the order in which tasks ran.
type recorder struct {
	mu  sync.Mutex
	ran []string
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ran = append(r.ran, name)
}

func (r *recorder) order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ran...)
}

type taskFunc func(ctx context.Context, deps []domain.TaskResult) (domain.TaskResult, error)

// echo returns a task function that records its run and returns its own name.
func echo(rec *recorder, name string) taskFunc {
	return func(context.Context, []domain.TaskResult) (domain.TaskResult, error) {
		rec.add(name)
		return name, nil
	}
}

type node struct {
	name string
	deps []string
	fn   taskFunc
}

func buildGraph(t *testing.T, nodes ...node) *domain.TaskGraph {
	t.Helper()
	b := domain.NewGraphBuilder()
	for _, s := range nodes {
		require.NoError(t, b.RegisterTask(
			domain.NewFuncTask(domain.NewTaskID(s.name), s.fn),
			domain.NewTaskIDs(s.deps)...,
		))
	}
	g, err := b.Build()
	require.NoError(t, err)
	return g
}

func ids(names ...string) []domain.TaskID {
	return domain.NewTaskIDs(names)
}

func TestScheduler_DiamondDependency(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		// A depends on B and C, which both depend on D.
		rec := &recorder{}
		var aDeps []domain.TaskResult
		g := buildGraph(t,
			node{name: "A", deps: []string{"B", "C"}, fn: func(_ context.Context, deps []domain.TaskResult) (domain.TaskResult, error) {
				rec.add("A")
				aDeps = deps
				return "A", nil
			}},
			node{name: "B", deps: []string{"D"}, fn: echo(rec, "B")},
			node{name: "C", deps: []string{"D"}, fn: echo(rec, "C")},
			node{name: "D", fn: echo(rec, "D")},
		)

		results, err := scheduler.New(g, scheduler.FailFast, scheduler.WithParallelism(4)).
			RunTasks(context.Background(), ids("A"))
		require.NoError(t, err)

		order := rec.order()
		require.Len(t, order, 4)
		assert.Equal(t, "D", order[0])
		assert.ElementsMatch(t, []string{"B", "C"}, order[1:3])
		assert.Equal(t, "A", order[3])

		assert.Equal(t, []domain.TaskResult{"B", "C"}, aDeps)
		assert.True(t, results.Succeeded())
		assert.Len(t, results, 4)
		assert.Equal(t, "A", results[domain.NewTaskID("A")].Value)
	})
}

func TestScheduler_DependencyResultsFollowRegistrationOrder(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		rec := &recorder{}
		var got []domain.TaskResult
		g := buildGraph(t,
			node{name: "A", deps: []string{"C", "B"}, fn: func(_ context.Context, deps []domain.TaskResult) (domain.TaskResult, error) {
				got = deps
				return nil, nil
			}},
			node{name: "B", fn: echo(rec, "B")},
			node{name: "C", fn: func(context.Context, []domain.TaskResult) (domain.TaskResult, error) {
				time.Sleep(time.Second)
				return "C", nil
			}},
		)

		_, err := scheduler.New(g, scheduler.FailFast).RunTasks(context.Background(), ids("A"))
		require.NoError(t, err)
		assert.Equal(t, []domain.TaskResult{"C", "B"}, got)
	})
}

func TestScheduler_RunsOnlyTheClosure(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		rec := &recorder{}
		g := buildGraph(t,
			node{name: "A", deps: []string{"B"}, fn: echo(rec, "A")},
			node{name: "B", fn: echo(rec, "B")},
			node{name: "unrelated", fn: echo(rec, "unrelated")},
		)

		results, err := scheduler.New(g, scheduler.FailFast).RunTasks(context.Background(), ids("A", "A"))
		require.NoError(t, err)
		assert.Equal(t, []string{"B", "A"}, rec.order())
		assert.NotContains(t, results, domain.NewTaskID("unrelated"))
	})
}

func TestScheduler_FailFast(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		// F fails while S is running. S sees the cancellation; X (after S)
		// and A (after F) never start.
		boom := errors.New("boom")
		var sCause error
		rec := &recorder{}
		g := buildGraph(t,
			node{name: "F", fn: func(context.Context, []domain.TaskResult) (domain.TaskResult, error) {
				time.Sleep(time.Second)
				return nil, boom
			}},
			node{name: "S", fn: func(ctx context.Context, _ []domain.TaskResult) (domain.TaskResult, error) {
				<-ctx.Done()
				sCause = context.Cause(ctx)
				return "S", nil
			}},
			node{name: "A", deps: []string{"F"}, fn: echo(rec, "A")},
			node{name: "X", deps: []string{"S"}, fn: echo(rec, "X")},
		)

		results, err := scheduler.New(g, scheduler.FailFast, scheduler.WithParallelism(2)).
			RunTasks(context.Background(), ids("A", "X"))
		require.Error(t, err)

		assert.ErrorIs(t, err, domain.ErrTaskExecutionFailed)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, "task 'F' failed: boom", err.Error())

		var execErr *domain.ExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, domain.NewTaskID("F"), execErr.Task)

		assert.ErrorIs(t, sCause, domain.ErrFailFast)
		assert.Empty(t, rec.order())

		assert.Equal(t, domain.StatusFailed, results[domain.NewTaskID("F")].Status)
		assert.Equal(t, domain.StatusSucceeded, results[domain.NewTaskID("S")].Status)
		assert.Equal(t, domain.StatusSkipped, results[domain.NewTaskID("A")].Status)
		assert.Equal(t, domain.StatusSkipped, results[domain.NewTaskID("X")].Status)
	})
}

func TestScheduler_KeepGoing(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		boom := errors.New("boom")
		rec := &recorder{}
		g := buildGraph(t,
			node{name: "A", deps: []string{"B"}, fn: echo(rec, "A")},
			node{name: "B", fn: func(context.Context, []domain.TaskResult) (domain.TaskResult, error) {
				return nil, boom
			}},
			node{name: "C", fn: func(context.Context, []domain.TaskResult) (domain.TaskResult, error) {
				time.Sleep(time.Second)
				rec.add("C")
				return "C", nil
			}},
			node{name: "D", deps: []string{"A", "C"}, fn: echo(rec, "D")},
			node{name: "E", deps: []string{"C"}, fn: echo(rec, "E")},
		)

		results, err := scheduler.New(g, scheduler.KeepGoing).RunTasks(context.Background(), ids("D", "E"))
		require.NoError(t, err)

		assert.Equal(t, []string{"C", "E"}, rec.order())
		assert.Equal(t, []domain.TaskID{domain.NewTaskID("B")}, results.WithStatus(domain.StatusFailed))
		assert.Equal(t, ids("A", "D"), results.WithStatus(domain.StatusSkipped))
		assert.Equal(t, ids("C", "E"), results.WithStatus(domain.StatusSucceeded))
		assert.Equal(t, domain.NewTaskID("B"), results[domain.NewTaskID("A")].SkippedBecause)

		summary := results.Err()
		require.Error(t, summary)
		assert.ErrorIs(t, summary, boom)
		assert.Contains(t, summary.Error(), "1 task(s) failed")
		assert.Contains(t, summary.Error(), "task 'B' failed: boom")
	})
}

func TestScheduler_CycleDetected(t *testing.T) {
	var ran atomic.Bool
	run := func(context.Context, []domain.TaskResult) (domain.TaskResult, error) {
		ran.Store(true)
		return nil, nil
	}
	g := buildGraph(t,
		node{name: "A", deps: []string{"B"}, fn: run},
		node{name: "B", deps: []string{"A"}, fn: run},
		node{name: "C", fn: run},
	)

	results, err := scheduler.New(g, scheduler.KeepGoing).RunTasks(context.Background(), ids("C", "A"))
	require.ErrorIs(t, err, domain.ErrCycleDetected)
	assert.Contains(t, err.Error(), "A -> B -> A")
	assert.Nil(t, results)
	assert.False(t, ran.Load())
}

func TestScheduler_UnknownTask(t *testing.T) {
	g := buildGraph(t,
		node{name: "build"},
		node{name: "app:build"},
		node{name: "test"},
	)

	_, err := scheduler.New(g, scheduler.FailFast).RunTasks(context.Background(), ids("Buil"))
	require.ErrorIs(t, err, domain.ErrTaskNotFound)
	assert.Contains(t, err.Error(), "Buil; maybe you meant one of: app:build, build")

	_, err = scheduler.New(g, scheduler.FailFast).RunTasks(context.Background(), ids("deploy"))
	require.ErrorIs(t, err, domain.ErrTaskNotFound)
	assert.NotContains(t, err.Error(), "maybe you meant")
}

func TestScheduler_NoTargets(t *testing.T) {
	g := buildGraph(t, node{name: "A"})

	results, err := scheduler.New(g, scheduler.FailFast).RunTasks(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestScheduler_ParallelismBound(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var active, peak atomic.Int32
		work := func(context.Context, []domain.TaskResult) (domain.TaskResult, error) {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Second)
			active.Add(-1)
			return nil, nil
		}

		nodes := make([]node, 0, 10)
		names := make([]string, 0, 10)
		for i := range 10 {
			name := fmt.Sprintf("t%d", i)
			nodes = append(nodes, node{name: name, fn: work})
			names = append(names, name)
		}
		g := buildGraph(t, nodes...)

		results, err := scheduler.New(g, scheduler.FailFast, scheduler.WithParallelism(3)).
			RunTasks(context.Background(), ids(names...))
		require.NoError(t, err)
		assert.True(t, results.Succeeded())
		assert.Equal(t, int32(3), peak.Load())
	})
}

func TestScheduler_DefaultParallelism(t *testing.T) {
	assert.Equal(t, runtime.GOMAXPROCS(0), scheduler.DefaultParallelism())
}

func TestScheduler_PanicBecomesFailure(t *testing.T) {
	g := buildGraph(t, node{name: "A", fn: func(context.Context, []domain.TaskResult) (domain.TaskResult, error) {
		panic("kaboom")
	}})

	results, err := scheduler.New(g, scheduler.KeepGoing).RunTasks(context.Background(), ids("A"))
	require.NoError(t, err)

	res := results[domain.NewTaskID("A")]
	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Contains(t, res.Err.Error(), "kaboom")
}

func TestScheduler_ContextCancellation(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		g := buildGraph(t,
			node{name: "A", fn: func(ctx context.Context, _ []domain.TaskResult) (domain.TaskResult, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}},
			node{name: "B", deps: []string{"A"}},
		)

		ctx, cancel := context.WithCancel(context.Background())
		type outcome struct {
			results domain.Results
			err     error
		}
		done := make(chan outcome, 1)
		go func() {
			results, err := scheduler.New(g, scheduler.KeepGoing).RunTasks(ctx, ids("B"))
			done <- outcome{results, err}
		}()

		synctest.Wait()
		cancel()

		out := <-done
		require.ErrorIs(t, out.err, context.Canceled)
		assert.Equal(t, domain.StatusFailed, out.results[domain.NewTaskID("A")].Status)
		assert.Equal(t, domain.StatusSkipped, out.results[domain.NewTaskID("B")].Status)
	})
}

func TestScheduler_CanceledBeforeStart(t *testing.T) {
	var started atomic.Int32
	run := func(context.Context, []domain.TaskResult) (domain.TaskResult, error) {
		started.Add(1)
		return nil, nil
	}
	g := buildGraph(t,
		node{name: "A", fn: run},
		node{name: "B", fn: run},
		node{name: "C", deps: []string{"A", "B"}, fn: run},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, mode := range []scheduler.Mode{scheduler.FailFast, scheduler.KeepGoing} {
		t.Run(mode.String(), func(t *testing.T) {
			results, err := scheduler.New(g, mode, scheduler.WithParallelism(4)).RunTasks(ctx, ids("C"))
			require.ErrorIs(t, err, context.Canceled)
			assert.Zero(t, started.Load())
			assert.ElementsMatch(t, ids("A", "B", "C"), results.WithStatus(domain.StatusSkipped))
		})
	}
}

func TestScheduler_ProgressListener(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)
		listener := mocks.NewMockProgressListener(ctrl)
		boom := errors.New("boom")

		g := buildGraph(t,
			node{name: "A", deps: []string{"B"}},
			node{name: "B", fn: func(context.Context, []domain.TaskResult) (domain.TaskResult, error) {
				return nil, boom
			}},
		)

		a, b := domain.NewTaskID("A"), domain.NewTaskID("B")
		gomock.InOrder(
			listener.EXPECT().TaskStarted(b, gomock.Any()),
			listener.EXPECT().TaskFinished(b, statusIs(domain.StatusFailed)),
			listener.EXPECT().TaskFinished(a, statusIs(domain.StatusSkipped)),
		)

		_, err := scheduler.New(g, scheduler.KeepGoing, scheduler.WithListener(listener)).
			RunTasks(context.Background(), ids("A"))
		require.NoError(t, err)
	})
}

func statusIs(s domain.TaskStatus) gomock.Matcher {
	return gomock.Cond(func(r domain.Result) bool { return r.Status == s })
}

type cachedResult struct{}

func (cachedResult) FromCache() bool { return true }

func TestScheduler_Tracing(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)
		tracer := mocks.NewMockTracer(ctrl)
		span := mocks.NewMockSpan(ctrl)

		g := buildGraph(t,
			node{name: "A", deps: []string{"B"}, fn: func(ctx context.Context, _ []domain.TaskResult) (domain.TaskResult, error) {
				_, _ = fmt.Fprint(scheduler.Output(ctx), "hello from A")
				return nil, nil
			}},
			node{name: "B", fn: func(context.Context, []domain.TaskResult) (domain.TaskResult, error) {
				return cachedResult{}, nil
			}},
		)

		tracer.EXPECT().EmitPlan(
			gomock.Any(),
			[]string{"B", "A"},
			map[string][]string{"A": {"B"}, "B": {}},
			[]string{"A"},
		)
		tracer.EXPECT().Start(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, _ string, opts ...ports.SpanOption) (context.Context, ports.Span) {
				cfg := ports.SpanConfig{}
				for _, opt := range opts {
					opt(&cfg)
				}
				assert.True(t, cfg.Task)
				return ctx, span
			},
		).Times(2)
		span.EXPECT().SetAttribute(ports.AttrCached, true)
		span.EXPECT().Write([]byte("hello from A")).Return(len("hello from A"), nil)
		span.EXPECT().End().Times(2)

		_, err := scheduler.New(g, scheduler.FailFast, scheduler.WithTracer(tracer)).
			RunTasks(context.Background(), ids("A"))
		require.NoError(t, err)
	})
}

func TestScheduler_PostRunHooks(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var calls []string
		hookErr := errors.New("cleanup failed")
		boom := errors.New("boom")

		g := buildGraph(t,
			node{name: "A", fn: func(ctx context.Context, _ []domain.TaskResult) (domain.TaskResult, error) {
				require.True(t, scheduler.AddPostRunHook(ctx, func(context.Context) error {
					calls = append(calls, "first")
					return nil
				}))
				require.True(t, scheduler.AddPostRunHook(ctx, func(context.Context) error {
					calls = append(calls, "second")
					return hookErr
				}))
				return nil, nil
			}},
			node{name: "B", deps: []string{"A"}, fn: func(context.Context, []domain.TaskResult) (domain.TaskResult, error) {
				return nil, boom
			}},
		)

		_, err := scheduler.New(g, scheduler.FailFast).RunTasks(context.Background(), ids("B"))
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.ErrorIs(t, err, domain.ErrPostRunHookFailed)
		assert.ErrorIs(t, err, hookErr)
		assert.Equal(t, []string{"first", "second"}, calls)
	})
}

func TestAddPostRunHook_OutsideRun(t *testing.T) {
	assert.False(t, scheduler.AddPostRunHook(context.Background(), func(context.Context) error { return nil }))
}

func TestOutput_OutsideRun(t *testing.T) {
	n, err := scheduler.Output(context.Background()).Write([]byte("dropped"))
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}
