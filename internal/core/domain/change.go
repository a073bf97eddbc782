package domain

import (
	"cmp"
	"slices"
)

// ChangeKind classifies a difference between two file snapshots.
type ChangeKind string

const (
	// ChangeCreated marks a path present only in the newer snapshot.
	ChangeCreated ChangeKind = "Created"
	// ChangeModified marks a path whose state differs between snapshots.
	ChangeModified ChangeKind = "Modified"
	// ChangeDeleted marks a path present only in the older snapshot.
	ChangeDeleted ChangeKind = "Deleted"
)

// Change is a classified delta for one path.
type Change struct {
	Path string     `json:"path"`
	Kind ChangeKind `json:"kind"`
}

// DiffFileStates compares two snapshots and returns the changes sorted by path.
func DiffFileStates(previous, current FileStates) []Change {
	var changes []Change
	for path, state := range current {
		old, ok := previous[path]
		switch {
		case !ok:
			changes = append(changes, Change{Path: path, Kind: ChangeCreated})
		case old != state:
			changes = append(changes, Change{Path: path, Kind: ChangeModified})
		}
	}
	for path := range previous {
		if _, ok := current[path]; !ok {
			changes = append(changes, Change{Path: path, Kind: ChangeDeleted})
		}
	}

	slices.SortFunc(changes, func(a, b Change) int {
		return cmp.Compare(a.Path, b.Path)
	})
	return changes
}
