package domain

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"go.trai.ch/zerr"
)

// TaskStatus represents the state of a task within one executor run.
type TaskStatus string

const (
	// StatusPending indicates the task is waiting for its dependencies.
	StatusPending TaskStatus = "Pending"
	// StatusRunning indicates the task is currently executing.
	StatusRunning TaskStatus = "Running"
	// StatusSucceeded indicates the task finished successfully.
	StatusSucceeded TaskStatus = "Succeeded"
	// StatusFailed indicates the task returned an error.
	StatusFailed TaskStatus = "Failed"
	// StatusSkipped indicates the task never ran because of an upstream failure or a stopped run.
	StatusSkipped TaskStatus = "Skipped"
)

// Terminal reports whether s is a final state.
func (s TaskStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusSkipped
}

// Result is the outcome of one task in a run.
type Result struct {
	Status TaskStatus
	Value  TaskResult
	// Err is set for Failed tasks. It is the task's own error tagged with the task id.
	Err error
	// SkippedBecause names the failed task that caused a skip, when known.
	SkippedBecause TaskID
	Started        time.Time
	Finished       time.Time
}

// Duration returns how long the task ran.
func (r Result) Duration() time.Duration {
	if r.Started.IsZero() || r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// Results maps every task of a run to its outcome.
type Results map[TaskID]Result

// WithStatus returns the ids having status s, sorted.
func (r Results) WithStatus(s TaskStatus) []TaskID {
	var ids []TaskID
	for id, res := range r {
		if res.Status == s {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, TaskID.Compare)
	return ids
}

// Succeeded reports whether every task succeeded.
func (r Results) Succeeded() bool {
	for _, res := range r {
		if res.Status != StatusSucceeded {
			return false
		}
	}
	return true
}

// Err summarises the failed tasks as a single error, or returns nil.
func (r Results) Err() error {
	failed := r.WithStatus(StatusFailed)
	if len(failed) == 0 {
		return nil
	}

	errs := make([]error, 0, len(failed))
	for _, id := range failed {
		errs = append(errs, r[id].Err)
	}
	return zerr.With(
		zerr.Wrap(errors.Join(errs...), fmt.Sprintf("%d task(s) failed", len(failed))),
		"failed", TaskIDStrings(failed),
	)
}

// TaskFailure tags err with the task that produced it.
func TaskFailure(id TaskID, err error) error {
	return zerr.With(
		zerr.Wrap(err, fmt.Sprintf("task '%s' failed", id)),
		"task", id.String(),
	)
}

// ExecutionError reports the task failure that stopped a fail-fast run.
// It matches both ErrTaskExecutionFailed and the task's own error.
type ExecutionError struct {
	Task TaskID
	Err  error
}

func (e *ExecutionError) Error() string {
	return e.Err.Error()
}

// Unwrap implements multi-error unwrapping.
func (e *ExecutionError) Unwrap() []error {
	return []error{ErrTaskExecutionFailed, e.Err}
}
