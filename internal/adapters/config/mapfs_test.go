package config

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// MapFSAdapter serves an fs.FS, typically an fstest.MapFS, as if it were
// mounted at Root.
type MapFSAdapter struct {
	FS   fs.FS
	Root string
}

// NewMapFSAdapter creates a new MapFSAdapter with the given root path and filesystem.
func NewMapFSAdapter(root string, fsys fs.FS) *MapFSAdapter {
	return &MapFSAdapter{FS: fsys, Root: root}
}

// Stat returns file info for the given path.
func (m *MapFSAdapter) Stat(path string) (fs.FileInfo, error) {
	return fs.Stat(m.FS, m.toRelPath(path))
}

// ReadFile reads the entire file at path.
func (m *MapFSAdapter) ReadFile(path string) ([]byte, error) {
	return fs.ReadFile(m.FS, m.toRelPath(path))
}

// Glob returns the absolute paths of entries matching pattern.
func (m *MapFSAdapter) Glob(pattern string) ([]string, error) {
	matches, err := fs.Glob(m.FS, m.toRelPath(pattern))
	if err != nil {
		return nil, err
	}
	for i, match := range matches {
		matches[i] = filepath.Join(m.Root, match)
	}
	return matches, nil
}

// toRelPath strips Root from absPath. Paths outside Root are returned
// unchanged, so lookups fail with fs.ErrNotExist or fs.ErrInvalid.
func (m *MapFSAdapter) toRelPath(absPath string) string {
	if !filepath.IsAbs(absPath) {
		return absPath
	}
	if absPath == m.Root {
		return "."
	}
	if rel, ok := strings.CutPrefix(absPath, m.Root+string(filepath.Separator)); ok {
		return rel
	}
	return absPath
}
