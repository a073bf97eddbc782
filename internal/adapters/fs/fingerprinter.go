package fs

import (
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

var _ ports.Fingerprinter = (*Fingerprinter)(nil)

// Fingerprinter hashes configurations and input files, and snapshots the
// state of output files.
type Fingerprinter struct {
	walker *Walker
	jobs   int
}

// NewFingerprinter creates a new Fingerprinter.
func NewFingerprinter(walker *Walker) *Fingerprinter {
	return &Fingerprinter{walker: walker, jobs: runtime.NumCPU()}
}

type pathState struct {
	path    string
	state   string
	symlink bool
}

// HashFile computes the XXHash of a file's content.
func (f *Fingerprinter) HashFile(path string) (uint64, error) {
	file, err := os.Open(path) //nolint:gosec // Path is controlled by caller
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, "failed to open file"), "path", path)
	}
	defer file.Close() //nolint:errcheck // Best effort close in defer

	digest := xxhash.New()
	if _, err := io.Copy(digest, file); err != nil {
		return 0, zerr.With(zerr.Wrap(err, "failed to hash file content"), "path", path)
	}
	return digest.Sum64(), nil
}

// Fingerprint computes a single hash over the configuration and the state
// of every input. Configuration keys are sorted; inputs are hashed in the
// order given.
func (f *Fingerprinter) Fingerprint(configuration map[string]string, inputs []string) (domain.Fingerprint, error) {
	digest := xxhash.New()
	hashConfiguration(configuration, digest)

	for _, input := range inputs {
		states, err := f.collect(input, nil, false)
		if err != nil {
			return "", err
		}

		_, _ = digest.WriteString(input)
		_, _ = digest.Write([]byte{0})
		for _, s := range states {
			_, _ = digest.WriteString(s.path)
			_, _ = digest.Write([]byte{0})
			_, _ = digest.WriteString(s.state)
			_, _ = digest.Write([]byte{0})
		}
		_, _ = digest.Write([]byte{0}) // Section separator
	}

	return domain.Fingerprint(fmt.Sprintf("%016x", digest.Sum64())), nil
}

// Snapshot records the state of every file below paths. Excluded paths and
// everything below them are left out.
func (f *Fingerprinter) Snapshot(paths, excluded []string, failOnMissing bool) (domain.FileStates, error) {
	skip := excludeFunc(excluded)
	res := make(domain.FileStates)

	for _, path := range paths {
		if skip(path) {
			continue
		}
		states, err := f.collect(path, skip, failOnMissing)
		if err != nil {
			return nil, err
		}
		for _, s := range states {
			res[s.path] = s.state
		}
	}
	return res, nil
}

// hashConfiguration hashes configuration entries in a deterministic order.
func hashConfiguration(configuration map[string]string, digest *xxhash.Digest) {
	keys := make([]string, 0, len(configuration))
	for k := range configuration {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		_, _ = digest.WriteString(k)
		_, _ = digest.Write([]byte{'='})
		_, _ = digest.WriteString(configuration[k])
		_, _ = digest.Write([]byte{0})
	}
	_, _ = digest.Write([]byte{0})
}

// collect lists the states below path in lexical order. A path that does
// not exist but contains glob metacharacters is expanded as a pattern; a
// pattern without matches counts as missing.
func (f *Fingerprinter) collect(path string, skip func(string) bool, failOnMissing bool) ([]pathState, error) {
	if isGlob(path) {
		if _, err := os.Lstat(path); errors.Is(err, iofs.ErrNotExist) {
			return f.expand(path, skip, failOnMissing)
		}
	}

	info, err := os.Stat(path)
	if errors.Is(err, iofs.ErrNotExist) {
		return missing(path, failOnMissing)
	}
	if err != nil {
		return nil, fingerprintError(path, err)
	}

	var states []pathState
	if info.IsDir() {
		for entry, err := range f.walker.Walk(path, skip) {
			if err != nil {
				return nil, fingerprintError(path, err)
			}
			switch {
			case entry.EmptyDir:
				states = append(states, pathState{path: entry.Path, state: domain.StateEmptyDir})
			case entry.Symlink:
				states = append(states, pathState{path: entry.Path, symlink: true})
			default:
				states = append(states, pathState{path: entry.Path})
			}
		}
	} else {
		states = append(states, pathState{path: path})
	}

	if err := f.resolveStates(states); err != nil {
		return nil, err
	}
	return states, nil
}

func (f *Fingerprinter) expand(pattern string, skip func(string) bool, failOnMissing bool) ([]pathState, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fingerprintError(pattern, err)
	}
	if len(matches) == 0 {
		return missing(pattern, failOnMissing)
	}
	var states []pathState
	for _, match := range matches {
		s, err := f.collect(match, skip, failOnMissing)
		if err != nil {
			return nil, err
		}
		states = append(states, s...)
	}
	return states, nil
}

// resolveStates fills in the state of every pending entry, hashing files
// concurrently.
func (f *Fingerprinter) resolveStates(states []pathState) error {
	var g errgroup.Group
	g.SetLimit(f.jobs)

	for i := range states {
		if states[i].state != "" {
			continue
		}
		g.Go(func() error {
			s, err := f.entryState(states[i])
			if err != nil {
				return fingerprintError(states[i].path, err)
			}
			states[i].state = s
			return nil
		})
	}
	return g.Wait()
}

func (f *Fingerprinter) entryState(s pathState) (string, error) {
	if s.symlink {
		target, err := os.Readlink(s.path)
		if err != nil {
			return "", err
		}
		return "symlink:" + target, nil
	}

	info, err := os.Stat(s.path)
	if err != nil {
		return "", err
	}
	sum, err := f.HashFile(s.path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("xxh64:%016x size:%d mode:%#o", sum, info.Size(), info.Mode().Perm()), nil
}

func missing(path string, failOnMissing bool) ([]pathState, error) {
	if failOnMissing {
		return nil, zerr.With(zerr.Wrap(domain.ErrOutputMissing, path), "path", path)
	}
	return []pathState{{path: path, state: domain.StateMissing}}, nil
}

func fingerprintError(path string, err error) error {
	return zerr.With(fmt.Errorf("%w: %w", domain.ErrFingerprintFailed, err), "path", path)
}

func isGlob(path string) bool {
	return strings.ContainsAny(path, "*?[")
}

// excludeFunc reports whether a path equals or lies below one of excluded.
func excludeFunc(excluded []string) func(string) bool {
	cleaned := make([]string, len(excluded))
	for i, e := range excluded {
		cleaned[i] = filepath.Clean(e)
	}
	return func(path string) bool {
		path = filepath.Clean(path)
		for _, e := range cleaned {
			if path == e || strings.HasPrefix(path, e+string(filepath.Separator)) {
				return true
			}
		}
		return false
	}
}
