// Package ports defines the core interfaces for the application.
package ports

import (
	"context"
	"io"
)

// Command is an external process invocation.
type Command struct {
	Args        []string
	Environment map[string]string
	WorkingDir  string
}

// CommandRunner defines the interface for running external commands.
//
//go:generate mockgen -source=executor.go -destination=mocks/mock_executor.go -package=mocks
type CommandRunner interface {
	// Run executes cmd and waits for it to complete.
	// Output is written to stdout; on a PTY stderr is merged into it.
	Run(ctx context.Context, cmd Command, stdout, stderr io.Writer) error
}
