package logger_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/kiln/internal/adapters/logger"
	"go.trai.ch/zerr"
)

func TestCollectErrorEntries(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		messages []string
		metadata []map[string]any
	}{
		{
			name:     "stdlib error",
			err:      errors.New("exit status 2"),
			messages: []string{"exit status 2"},
			metadata: []map[string]any{nil},
		},
		{
			name:     "zerr error",
			err:      zerr.New("configuration not found"),
			messages: []string{"configuration not found"},
			metadata: []map[string]any{{}},
		},
		{
			name: "wrapped chain ends in stdlib cause",
			err: zerr.Wrap(
				zerr.Wrap(errors.New("permission denied"), "failed to read kiln.yaml"),
				"failed to load configuration",
			),
			messages: []string{"failed to load configuration", "failed to read kiln.yaml", "permission denied"},
			metadata: []map[string]any{{}, {}, nil},
		},
		{
			name:     "metadata accumulates on one entry",
			err:      zerr.With(zerr.With(zerr.New("task not found"), "task", "build"), "attempt", 2),
			messages: []string{"task not found"},
			metadata: []map[string]any{{"task": "build", "attempt": 2}},
		},
		{
			name: "metadata stays with its layer",
			err: zerr.With(
				zerr.Wrap(zerr.With(zerr.New("lock timeout"), "key", "lib"), "cache failed"),
				"task", "lib",
			),
			messages: []string{"cache failed", "lock timeout"},
			metadata: []map[string]any{{"task": "lib"}, {"key": "lib"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := logger.CollectErrorEntriesExported(tt.err)
			if !assert.Len(t, entries, len(tt.messages)) {
				return
			}
			for i := range entries {
				assert.Equal(t, tt.messages[i], entries[i].Message, "entry %d", i)
				assert.Equal(t, tt.metadata[i], entries[i].Metadata, "entry %d", i)
			}
		})
	}

	assert.Empty(t, logger.CollectErrorEntriesExported(nil))
}

func TestFormatErrorEntries(t *testing.T) {
	tests := []struct {
		name    string
		entries []logger.ErrorEntry
		want    string
	}{
		{
			name:    "no entries",
			entries: nil,
			want:    "",
		},
		{
			name:    "single",
			entries: []logger.ErrorEntry{{Message: "no targets specified"}},
			want:    "Error: no targets specified",
		},
		{
			name: "causes",
			entries: []logger.ErrorEntry{
				{Message: "build failed"},
				{Message: "task 'lib' failed"},
				{Message: "exit status 1"},
			},
			want: "Error: build failed\n\n  Caused by:\n    → task 'lib' failed\n    → exit status 1",
		},
		{
			name: "metadata is sorted below the message",
			entries: []logger.ErrorEntry{{
				Message:  "invalid task name",
				Metadata: map[string]any{"task_name": "a b", "directory": "services/api"},
			}},
			want: "Error: invalid task name\n       directory: services/api\n       task_name: a b",
		},
		{
			name: "metadata on a cause",
			entries: []logger.ErrorEntry{
				{Message: "failed to load configuration"},
				{Message: "duplicate project name", Metadata: map[string]any{"project_name": "api"}},
			},
			want: "Error: failed to load configuration\n\n  Caused by:\n    → duplicate project name\n      project_name: api",
		},
		{
			name:    "multiline message",
			entries: []logger.ErrorEntry{{Message: "task not found: biuld\ndid you mean: build"}},
			want:    "Error: task not found: biuld\n       did you mean: build",
		},
		{
			name: "multiline cause",
			entries: []logger.ErrorEntry{
				{Message: "cycle detected"},
				{Message: "a -> b\nb -> a"},
			},
			want: "Error: cycle detected\n\n  Caused by:\n    → a -> b\n      b -> a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, logger.FormatErrorEntriesExported(tt.entries))
		})
	}
}

func TestCollectAndFormat(t *testing.T) {
	err := zerr.With(
		zerr.Wrap(zerr.With(zerr.New("store unmarshal failed"), "path", ".kiln/incremental/lib.json"), "cache lookup failed"),
		"task", "lib",
	)

	got := logger.FormatErrorEntriesExported(logger.CollectErrorEntriesExported(err))
	assert.Equal(t, "Error: cache lookup failed\n"+
		"       task: lib\n\n"+
		"  Caused by:\n"+
		"    → store unmarshal failed\n"+
		"      path: .kiln/incremental/lib.json", got)
}
