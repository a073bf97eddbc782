package domain

import "path/filepath"

const (
	// KilnDirName is the name of the internal workspace directory.
	KilnDirName = ".kiln"

	// IncrementalDirName is the name of the incremental state directory.
	IncrementalDirName = "incremental"

	// KilnFileName is the name of the project configuration file.
	KilnFileName = "kiln.yaml"

	// WorkFileName is the name of the workspace configuration file.
	WorkFileName = "kiln.work.yaml"

	// DebugLogFile is the name of the debug log file.
	DebugLogFile = "debug.log"

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// FilePerm is the default permission for files (rw-r--r--).
	FilePerm = 0o644

	// PrivateFilePerm is the default permission for private files (rw-------).
	PrivateFilePerm = 0o600
)

// DefaultKilnPath returns the default root directory for kiln metadata.
func DefaultKilnPath() string {
	return KilnDirName
}

// DefaultStatePath returns the default path for incremental cache state.
// It joins .kiln and incremental.
func DefaultStatePath() string {
	return filepath.Join(KilnDirName, IncrementalDirName)
}

// DefaultDebugLogPath returns the default path for the debug log.
// It joins .kiln and debug.log.
func DefaultDebugLogPath() string {
	return filepath.Join(KilnDirName, DebugLogFile)
}
