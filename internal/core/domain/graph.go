package domain

import (
	"container/heap"
	"iter"
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

// TaskGraph is an immutable set of tasks and dependency edges.
// Tasks are stored in an arena and addressed by dense indices assigned at
// Build time, so every edge is known to be valid once a graph exists.
// Reads require no locking.
type TaskGraph struct {
	ids        []TaskID
	tasks      []Task
	index      map[TaskID]int
	deps       [][]int
	dependents [][]int
}

// Len returns the number of tasks.
func (g *TaskGraph) Len() int {
	return len(g.ids)
}

// Has reports whether id is registered.
func (g *TaskGraph) Has(id TaskID) bool {
	_, ok := g.index[id]
	return ok
}

// Task returns the task registered under id.
func (g *TaskGraph) Task(id TaskID) (Task, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return g.tasks[i], true
}

// IDs yields every task id in registration order.
func (g *TaskGraph) IDs() iter.Seq[TaskID] {
	return func(yield func(TaskID) bool) {
		for _, id := range g.ids {
			if !yield(id) {
				return
			}
		}
	}
}

// Dependencies returns the direct dependencies of id in registration order.
func (g *TaskGraph) Dependencies(id TaskID) []TaskID {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.resolve(g.deps[i])
}

// Dependents returns the tasks that directly depend on id.
func (g *TaskGraph) Dependents(id TaskID) []TaskID {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.resolve(g.dependents[i])
}

func (g *TaskGraph) resolve(idx []int) []TaskID {
	res := make([]TaskID, len(idx))
	for i, n := range idx {
		res[i] = g.ids[n]
	}
	return res
}

// Closure returns ids and every task they transitively depend on, in
// breadth-first order starting from ids. Unknown ids are skipped.
func (g *TaskGraph) Closure(ids []TaskID) []TaskID {
	visited := make([]bool, len(g.ids))
	queue := make([]int, 0, len(ids))

	for _, id := range ids {
		if i, ok := g.index[id]; ok && !visited[i] {
			visited[i] = true
			queue = append(queue, i)
		}
	}

	res := make([]TaskID, 0, len(queue))
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		res = append(res, g.ids[cur])

		for _, dep := range g.deps[cur] {
			if !visited[dep] {
				visited[dep] = true
				queue = append(queue, dep)
			}
		}
	}
	return res
}

// FindCycle searches the subgraph induced by ids for a cycle and returns
// its chain, first element repeated at the end (A, B, A). It returns nil
// when the subgraph is acyclic.
func (g *TaskGraph) FindCycle(ids []TaskID) []TaskID {
	in := make([]bool, len(g.ids))
	for _, id := range ids {
		if i, ok := g.index[id]; ok {
			in[i] = true
		}
	}

	state := make([]uint8, len(g.ids)) // 0: unvisited, 1: visiting, 2: visited
	var path []int
	var cycle []TaskID

	var visit func(u int) bool
	visit = func(u int) bool {
		state[u] = 1
		path = append(path, u)

		for _, dep := range g.deps[u] {
			if !in[dep] {
				continue
			}
			if state[dep] == 1 {
				start := slices.Index(path, dep)
				cycle = append(g.resolve(path[start:]), g.ids[dep])
				return true
			}
			if state[dep] == 0 && visit(dep) {
				return true
			}
		}

		state[u] = 2
		path = path[:len(path)-1]
		return false
	}

	for _, id := range ids {
		i, ok := g.index[id]
		if ok && state[i] == 0 && visit(i) {
			return cycle
		}
	}
	return nil
}

// Validate checks the whole graph for cycles.
func (g *TaskGraph) Validate() error {
	if cycle := g.FindCycle(g.ids); cycle != nil {
		return CycleError(cycle)
	}
	return nil
}

// CycleError builds the ErrCycleDetected error for a cycle chain.
func CycleError(cycle []TaskID) error {
	chain := strings.Join(TaskIDStrings(cycle), " -> ")
	return zerr.With(zerr.Wrap(ErrCycleDetected, chain), "cycle", chain)
}

// TopologicalOrder returns ids ordered so that every task follows its
// dependencies. Among ready tasks the earliest registered comes first.
// Tasks on a cycle are left out.
func (g *TaskGraph) TopologicalOrder(ids []TaskID) []TaskID {
	in := make(map[int]bool, len(ids))
	for _, id := range ids {
		if i, ok := g.index[id]; ok {
			in[i] = true
		}
	}

	inDegree := make(map[int]int, len(in))
	ready := make(indexHeap, 0, len(in))
	for i := range in {
		for _, dep := range g.deps[i] {
			if in[dep] {
				inDegree[i]++
			}
		}
		if inDegree[i] == 0 {
			ready = append(ready, i)
		}
	}
	heap.Init(&ready)

	order := make([]TaskID, 0, len(in))
	for ready.Len() > 0 {
		i := heap.Pop(&ready).(int)
		order = append(order, g.ids[i])
		for _, dependent := range g.dependents[i] {
			if !in[dependent] {
				continue
			}
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				heap.Push(&ready, dependent)
			}
		}
	}
	return order
}

// indexHeap is a min-heap of arena indices.
type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }

func (h *indexHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}
