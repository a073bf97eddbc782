package watcher

import (
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
)

type indexEntry struct {
	id      domain.TaskID
	inputs  []string
	ignored []string
}

// Index maps changed paths to the tasks that consume them.
type Index struct {
	entries []indexEntry
}

// NewIndex builds an index over the inputs of defs. Paths produced by a
// task, or excluded from it, never mark that task as affected.
func NewIndex(defs []domain.TaskDefinition) *Index {
	idx := &Index{entries: make([]indexEntry, 0, len(defs))}
	for _, def := range defs {
		if len(def.Inputs) == 0 {
			continue
		}
		e := indexEntry{id: def.ID}
		for _, in := range def.Inputs {
			e.inputs = append(e.inputs, filepath.Clean(in))
		}
		for _, p := range slices.Concat(def.Targets, def.Exclude) {
			e.ignored = append(e.ignored, filepath.Clean(p))
		}
		idx.entries = append(idx.entries, e)
	}
	return idx
}

// Affected returns the sorted ids of tasks with an input covering one of paths.
func (idx *Index) Affected(paths []string) []domain.TaskID {
	var ids []domain.TaskID
	for _, e := range idx.entries {
		if slices.ContainsFunc(paths, e.matches) {
			ids = append(ids, e.id)
		}
	}
	slices.SortFunc(ids, domain.TaskID.Compare)
	return ids
}

func (e indexEntry) matches(path string) bool {
	path = filepath.Clean(path)
	if slices.ContainsFunc(e.ignored, func(p string) bool { return covers(p, path) }) {
		return false
	}
	return slices.ContainsFunc(e.inputs, func(in string) bool { return covers(in, path) })
}

// covers reports whether path is pattern, lies below it, or has an ancestor
// matching it when pattern is a glob.
func covers(pattern, path string) bool {
	if path == pattern || strings.HasPrefix(path, pattern+string(filepath.Separator)) {
		return true
	}
	if !strings.ContainsAny(pattern, "*?[") {
		return false
	}
	for p := path; ; {
		if ok, _ := filepath.Match(pattern, p); ok {
			return true
		}
		parent := filepath.Dir(p)
		if parent == p {
			return false
		}
		p = parent
	}
}
