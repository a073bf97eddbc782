// Package fs provides file system adapters for walking, hashing and
// snapshotting task inputs and outputs.
package fs

import (
	"errors"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"

	"go.trai.ch/kiln/internal/core/domain"
)

// Entry is a path yielded by the Walker.
type Entry struct {
	Path string
	// EmptyDir is set for directories that have no entries at all.
	EmptyDir bool
	// Symlink is set for symbolic links, which are never followed.
	Symlink bool
}

// Walker provides file walking functionality.
type Walker struct{}

// NewWalker creates a new Walker.
func NewWalker() *Walker {
	return &Walker{}
}

// Walk yields the regular files, symlinks and empty directories below root
// in lexical order. VCS metadata and the kiln state directory are skipped, as
// is every path accepted by skip. Walk stops at the first I/O error and
// yields it.
func (w *Walker) Walk(root string, skip func(path string) bool) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if skip != nil && skip(path) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			switch {
			case d.IsDir():
				if path != root && w.shouldSkipDir(d.Name()) {
					return filepath.SkipDir
				}
				empty, err := isEmptyDir(path)
				if err != nil {
					return err
				}
				if empty && !yield(Entry{Path: path, EmptyDir: true}, nil) {
					return filepath.SkipAll
				}
			case d.Type()&fs.ModeSymlink != 0:
				if !yield(Entry{Path: path, Symlink: true}, nil) {
					return filepath.SkipAll
				}
			case d.Type().IsRegular():
				if !yield(Entry{Path: path}, nil) {
					return filepath.SkipAll
				}
			}
			return nil
		})
		if err != nil {
			yield(Entry{}, err)
		}
	}
}

// WalkFiles yields the regular files below root, ignoring walk errors.
func (w *Walker) WalkFiles(root string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for e, err := range w.Walk(root, nil) {
			if err != nil {
				return
			}
			if e.EmptyDir || e.Symlink {
				continue
			}
			if !yield(e.Path) {
				return
			}
		}
	}
}

func (w *Walker) shouldSkipDir(name string) bool {
	return name == ".git" || name == ".jj" || name == domain.KilnDirName
}

func isEmptyDir(path string) (bool, error) {
	f, err := os.Open(path) //nolint:gosec // Path comes from the directory walk
	if err != nil {
		return false, err
	}
	defer f.Close() //nolint:errcheck // Best effort close in defer

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}
