package domain

import "maps"

// StateFormatVersion identifies the on-disk layout of a CacheEntry and the
// fingerprint algorithm. Changing either requires bumping it, which moves
// every entry to a new file name.
const StateFormatVersion = 1

// Fingerprint is a hash summarising a configuration and a list of input files.
type Fingerprint string

// File state markers recorded in FileStates.
const (
	// StateMissing is recorded for a path that does not exist.
	StateMissing = "MISSING"
	// StateEmptyDir is recorded for a directory without regular files.
	StateEmptyDir = "EMPTY DIR"
)

// FileStates maps a file path to a string describing its content.
type FileStates map[string]string

// Equal reports whether both snapshots hold the same paths and states.
func (s FileStates) Equal(other FileStates) bool {
	return maps.Equal(s, other)
}

// CacheEntry is the persisted record of one successful cache-miss execution.
type CacheEntry struct {
	FormatVersion       int               `json:"formatVersion"`
	Key                 string            `json:"key"`
	CodeVersion         string            `json:"codeVersion"`
	Configuration       map[string]string `json:"configuration"`
	InputFiles          []string          `json:"inputFiles"`
	InputFilesState     FileStates        `json:"inputFilesState"`
	Fingerprint         Fingerprint       `json:"fingerprint"`
	OutputFiles         []string          `json:"outputFiles"`
	OutputFilesState    FileStates        `json:"outputFilesState"`
	OutputValues        map[string]string `json:"outputValues"`
	ExcludedOutputFiles []string          `json:"excludedOutputFiles"`
}

// ExecutionResult is what a cached block produces.
type ExecutionResult struct {
	// OutputFiles are the files and directories created by the block.
	OutputFiles []string
	// OutputValues are key-value pairs produced by the block.
	OutputValues map[string]string
	// ExcludedOutputFiles are ignored when comparing output states.
	ExcludedOutputFiles []string
}

// IncrementalResult is the outcome of an incremental cache call.
type IncrementalResult struct {
	ExecutionResult
	// Changes lists output deltas against the previous run. It is empty on a cache hit.
	Changes []Change
	// CacheHit reports whether the block was skipped.
	CacheHit bool
}
