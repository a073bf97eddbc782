// Package domain contains the core types of the task engine.
package domain

import (
	"strings"
	"unique"
)

// TaskIDSeparator separates the segments of a hierarchical task id,
// e.g. "app:jvm:compile".
const TaskIDSeparator = ":"

// TaskID is the identity of a task in a TaskGraph.
// It wraps a unique.Handle[string] so ids compare in constant time and
// repeated ids share memory. The zero value is the empty id.
type TaskID struct {
	h unique.Handle[string]
}

// NewTaskID interns s as a TaskID.
func NewTaskID(s string) TaskID {
	return TaskID{h: unique.Make(s)}
}

// NewTaskIDs interns every string in s.
func NewTaskIDs(s []string) []TaskID {
	res := make([]TaskID, len(s))
	for i, v := range s {
		res[i] = NewTaskID(v)
	}
	return res
}

// String returns the underlying id.
func (id TaskID) String() string {
	if id.IsZero() {
		return ""
	}
	return id.h.Value()
}

// IsZero reports whether the id was never set.
func (id TaskID) IsZero() bool {
	return id == TaskID{}
}

// Segments splits the id on TaskIDSeparator.
func (id TaskID) Segments() []string {
	return strings.Split(id.String(), TaskIDSeparator)
}

// Compare orders ids lexically. It is suitable for slices.SortFunc.
func (id TaskID) Compare(other TaskID) int {
	return strings.Compare(id.String(), other.String())
}

// MarshalText implements encoding.TextMarshaler.
func (id TaskID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *TaskID) UnmarshalText(text []byte) error {
	id.h = unique.Make(string(text))
	return nil
}

// TaskIDStrings converts ids to their string form.
func TaskIDStrings(ids []TaskID) []string {
	res := make([]string, len(ids))
	for i, id := range ids {
		res[i] = id.String()
	}
	return res
}
