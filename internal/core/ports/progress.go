package ports

import (
	"time"

	"go.trai.ch/kiln/internal/core/domain"
)

// ProgressListener observes task execution.
// Calls happen on scheduler goroutines and must not block for long.
//
//go:generate mockgen -source=progress.go -destination=mocks/mock_progress.go -package=mocks
type ProgressListener interface {
	// TaskStarted is called right before a task runs.
	TaskStarted(id domain.TaskID, at time.Time)
	// TaskFinished is called once a task reaches a terminal state,
	// including Skipped tasks that never started.
	TaskFinished(id domain.TaskID, result domain.Result)
}
