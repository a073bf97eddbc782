package app

import (
	"slices"

	"go.trai.ch/kiln/internal/core/domain"
)

// AllTasks selects every configured task.
const AllTasks = "all"

// Filter narrows a selection by task metadata. Empty fields match anything.
type Filter struct {
	Kind     string
	Platform string
	Module   string
}

func (f Filter) matches(m domain.TaskMetadata) bool {
	return (f.Kind == "" || domain.TaskKind(f.Kind) == m.Kind) &&
		(f.Platform == "" || f.Platform == m.Platform) &&
		(f.Module == "" || f.Module == m.Module)
}

// selectTargets resolves command line names to task ids.
//
// "all" selects every task. In a workspace a bare name like "build" selects
// the task of that name in every project. Names matching nothing are kept
// so the scheduler can report them. The filter then drops known tasks whose
// metadata does not match.
func selectTargets(defs []domain.TaskDefinition, names []string, filter Filter) ([]domain.TaskID, error) {
	known := make(map[domain.TaskID]domain.TaskDefinition, len(defs))
	for _, def := range defs {
		known[def.ID] = def
	}

	var ids []domain.TaskID
	for _, name := range names {
		if name == AllTasks {
			for _, def := range defs {
				ids = append(ids, def.ID)
			}
			continue
		}

		id := domain.NewTaskID(name)
		if _, ok := known[id]; ok {
			ids = append(ids, id)
			continue
		}
		if expanded := byLocalName(defs, name); len(expanded) > 0 {
			ids = append(ids, expanded...)
			continue
		}
		ids = append(ids, id)
	}

	seen := make(map[domain.TaskID]bool, len(ids))
	ids = slices.DeleteFunc(ids, func(id domain.TaskID) bool {
		if seen[id] {
			return true
		}
		seen[id] = true
		def, ok := known[id]
		return ok && !filter.matches(def.Metadata)
	})

	if len(ids) == 0 {
		return nil, domain.Tag(domain.ErrNoTasksSelected, "targets", names)
	}
	return ids, nil
}

// byLocalName returns the namespaced tasks whose last segment is name.
func byLocalName(defs []domain.TaskDefinition, name string) []domain.TaskID {
	var ids []domain.TaskID
	for _, def := range defs {
		segments := def.ID.Segments()
		if len(segments) > 1 && segments[len(segments)-1] == name {
			ids = append(ids, def.ID)
		}
	}
	return ids
}
