package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/engine/command"
	"go.trai.ch/zerr"
)

// Graph prints the tasks the targets would run in execution order, one per
// line, followed by their direct dependencies. No targets selects all.
func (a *App) Graph(_ context.Context, targetNames []string, filter Filter, w io.Writer) error {
	project, err := a.load()
	if err != nil {
		return err
	}
	if len(targetNames) == 0 {
		targetNames = []string{AllTasks}
	}
	targets, err := selectTargets(project.Tasks, targetNames, filter)
	if err != nil {
		return err
	}

	graph, err := command.BuildGraph(project.Tasks, &command.Runtime{})
	if err != nil {
		return err
	}

	var missing []string
	for _, id := range targets {
		if !graph.Has(id) {
			missing = append(missing, id.String())
		}
	}
	if len(missing) > 0 {
		err := zerr.Wrap(domain.ErrTaskNotFound, strings.Join(missing, ", "))
		return zerr.With(err, "tasks", missing)
	}

	closure := graph.Closure(targets)
	if cycle := graph.FindCycle(closure); cycle != nil {
		return domain.CycleError(cycle)
	}

	for _, id := range graph.TopologicalOrder(closure) {
		line := id.String()
		if deps := graph.Dependencies(id); len(deps) > 0 {
			line += " <- " + strings.Join(domain.TaskIDStrings(deps), ", ")
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
