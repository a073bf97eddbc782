package domain

import (
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

// GraphBuilder stages tasks and dependency edges for a TaskGraph.
// Dependencies may reference tasks that are registered later; every edge is
// validated by Build. A builder is not safe for concurrent use.
type GraphBuilder struct {
	order []TaskID
	tasks map[TaskID]Task
	deps  map[TaskID][]TaskID
	built bool
}

// NewGraphBuilder returns an empty builder.
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{
		tasks: make(map[TaskID]Task),
		deps:  make(map[TaskID][]TaskID),
	}
}

// RegisterTask adds task with the given dependencies.
// Registering the same id twice returns ErrTaskAlreadyExists.
func (b *GraphBuilder) RegisterTask(task Task, dependsOn ...TaskID) error {
	if b.built {
		return ErrGraphSealed
	}

	id := task.ID()
	if _, exists := b.tasks[id]; exists {
		return zerr.With(zerr.Wrap(ErrTaskAlreadyExists, id.String()), "task", id.String())
	}
	b.tasks[id] = task
	b.order = append(b.order, id)

	for _, dep := range dependsOn {
		if err := b.RegisterDependency(id, dep); err != nil {
			return err
		}
	}
	return nil
}

// RegisterDependency records that id depends on dependsOn.
// Either side may not be registered yet. Repeated edges are ignored.
func (b *GraphBuilder) RegisterDependency(id, dependsOn TaskID) error {
	if b.built {
		return ErrGraphSealed
	}
	if id == dependsOn {
		return zerr.With(zerr.Wrap(ErrSelfDependency, id.String()), "task", id.String())
	}
	if slices.Contains(b.deps[id], dependsOn) {
		return nil
	}
	b.deps[id] = append(b.deps[id], dependsOn)
	return nil
}

// Build validates the staged edges and returns the immutable graph.
// The builder cannot be used afterwards.
func (b *GraphBuilder) Build() (*TaskGraph, error) {
	if b.built {
		return nil, ErrGraphSealed
	}

	g := &TaskGraph{
		ids:        slices.Clone(b.order),
		tasks:      make([]Task, len(b.order)),
		index:      make(map[TaskID]int, len(b.order)),
		deps:       make([][]int, len(b.order)),
		dependents: make([][]int, len(b.order)),
	}
	for i, id := range g.ids {
		g.index[id] = i
		g.tasks[i] = b.tasks[id]
	}

	var dangling []string
	for _, id := range b.sortedEdgeOwners() {
		from, ok := g.index[id]
		if !ok {
			dangling = append(dangling, id.String())
			continue
		}
		for _, dep := range b.deps[id] {
			to, ok := g.index[dep]
			if !ok {
				dangling = append(dangling, id.String()+" -> "+dep.String())
				continue
			}
			g.deps[from] = append(g.deps[from], to)
			g.dependents[to] = append(g.dependents[to], from)
		}
	}

	if len(dangling) > 0 {
		return nil, zerr.With(zerr.Wrap(ErrMissingDependency, strings.Join(dangling, ", ")), "edges", dangling)
	}

	b.built = true
	return g, nil
}

// sortedEdgeOwners returns the ids that have outgoing edges, registered
// tasks first in registration order, then unknown ids sorted.
func (b *GraphBuilder) sortedEdgeOwners() []TaskID {
	owners := make([]TaskID, 0, len(b.deps))
	for _, id := range b.order {
		if _, ok := b.deps[id]; ok {
			owners = append(owners, id)
		}
	}

	var unknown []TaskID
	for id := range b.deps {
		if _, ok := b.tasks[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	slices.SortFunc(unknown, TaskID.Compare)

	return append(owners, unknown...)
}
