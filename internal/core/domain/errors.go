package domain

import "go.trai.ch/zerr"

var (
	// ErrTaskAlreadyExists is returned when a task id is registered twice.
	ErrTaskAlreadyExists = zerr.New("task already exists")

	// ErrMissingDependency is returned when a dependency edge references an unregistered task.
	ErrMissingDependency = zerr.New("missing dependency")

	// ErrSelfDependency is returned when a task is registered as depending on itself.
	ErrSelfDependency = zerr.New("task cannot depend on itself")

	// ErrGraphSealed is returned when the builder is used after Build.
	ErrGraphSealed = zerr.New("task graph is already built")

	// ErrCycleDetected is returned when a cycle is detected in the task dependency graph.
	ErrCycleDetected = zerr.New("cycle detected")

	// ErrTaskNotFound is returned when a requested task is not found in the graph.
	ErrTaskNotFound = zerr.New("task not found")

	// ErrNoTargetsSpecified is returned when no targets are specified for the run command.
	ErrNoTargetsSpecified = zerr.New("no targets specified")

	// ErrNoTasksSelected is returned when target filters match no task.
	ErrNoTasksSelected = zerr.New("no tasks match the selection")

	// ErrReservedTaskName is returned when a task uses a reserved name (e.g., "all").
	ErrReservedTaskName = zerr.New("task name 'all' is reserved")

	// ErrInvalidTaskName is returned when a task name contains invalid characters.
	ErrInvalidTaskName = zerr.New("invalid task name")

	// ErrInvalidTaskKind is returned when a task kind is not build, test or run.
	ErrInvalidTaskKind = zerr.New("invalid task kind, expected 'build', 'test' or 'run'")

	// ErrTaskExecutionFailed is returned when a task execution fails.
	ErrTaskExecutionFailed = zerr.New("task execution failed")

	// ErrFailFast is the cancellation cause handed to running tasks once a fail-fast run stops.
	ErrFailFast = zerr.New("run stopped after a task failure")

	// ErrBuildExecutionFailed is returned when the build execution fails.
	ErrBuildExecutionFailed = zerr.New("build execution failed")

	// ErrPostRunHookFailed is returned when a post-run hook fails.
	ErrPostRunHookFailed = zerr.New("post-run hook failed")

	// ErrFingerprintFailed is returned when an input cannot be fingerprinted.
	ErrFingerprintFailed = zerr.New("failed to compute fingerprint")

	// ErrOutputMissing is returned when a declared output does not exist after execution.
	ErrOutputMissing = zerr.New("declared output does not exist")

	// ErrInconsistentState is returned when a freshly written cache entry does not read back identically.
	ErrInconsistentState = zerr.New("cache state is inconsistent after write")

	// ErrValueDecodeFailed is returned when a cached value cannot be decoded.
	ErrValueDecodeFailed = zerr.New("failed to decode cached value")

	// ErrValueEncodeFailed is returned when a value cannot be encoded for the cache.
	ErrValueEncodeFailed = zerr.New("failed to encode value for cache")

	// ErrStoreCreateFailed is returned when the state directory cannot be created.
	ErrStoreCreateFailed = zerr.New("failed to create state directory")

	// ErrStoreReadFailed is returned when a cache entry cannot be read.
	ErrStoreReadFailed = zerr.New("failed to read cache entry")

	// ErrStoreUnmarshalFailed is returned when a cache entry cannot be unmarshaled.
	ErrStoreUnmarshalFailed = zerr.New("failed to unmarshal cache entry")

	// ErrStoreMarshalFailed is returned when a cache entry cannot be marshaled.
	ErrStoreMarshalFailed = zerr.New("failed to marshal cache entry")

	// ErrStoreWriteFailed is returned when a cache entry cannot be written.
	ErrStoreWriteFailed = zerr.New("failed to write cache entry")

	// ErrStoreDeleteFailed is returned when a cache entry cannot be removed.
	ErrStoreDeleteFailed = zerr.New("failed to delete cache entry")

	// ErrStoreLockFailed is returned when the lock for a cache key cannot be acquired.
	ErrStoreLockFailed = zerr.New("failed to lock cache entry")

	// ErrConfigReadFailed is returned when the config file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when the config file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrConfigNotFound is returned when the config file cannot be found.
	ErrConfigNotFound = zerr.New("could not find kiln.yaml")

	// ErrMissingProjectName is returned when a project inside a workspace has no name.
	ErrMissingProjectName = zerr.New("missing project name")

	// ErrInvalidProjectName is returned when a project name contains invalid characters.
	ErrInvalidProjectName = zerr.New("invalid project name")

	// ErrDuplicateProjectName is returned when two projects of a workspace share a name.
	ErrDuplicateProjectName = zerr.New("duplicate project name")

	// ErrFailedToGetRoot is returned when the project root path cannot be determined.
	ErrFailedToGetRoot = zerr.New("failed to get absolute path of project root")

	// ErrCommandFailed is returned when a task command exits unsuccessfully.
	ErrCommandFailed = zerr.New("command failed")

	// ErrCommandStartFailed is returned when a task command cannot be started.
	ErrCommandStartFailed = zerr.New("failed to start command")

	// ErrInvalidOutputMode is returned when an unknown output mode is requested.
	ErrInvalidOutputMode = zerr.New("invalid output mode, expected 'auto', 'tui', 'linear' or 'ci'")

	// ErrWatcherFailed is returned when the file watcher cannot be started.
	ErrWatcherFailed = zerr.New("failed to start file watcher")
)

// Tag attaches metadata to a sentinel error. zerr.With alone copies a
// *zerr.Error, after which errors.Is no longer matches the sentinel.
func Tag(sentinel error, key string, value any) error {
	return zerr.With(zerr.Wrap(sentinel, ""), key, value)
}
