package watcher_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/kiln/internal/adapters/watcher"
	"go.trai.ch/kiln/internal/core/domain"
)

func TestIndex_Affected(t *testing.T) {
	defs := []domain.TaskDefinition{
		{
			ID:      domain.NewTaskID("build"),
			Inputs:  []string{"/repo/src", "/repo/go.mod"},
			Targets: []string{"/repo/src/gen"},
		},
		{
			ID:     domain.NewTaskID("lint"),
			Inputs: []string{"/repo/src/*.go"},
		},
		{
			ID:      domain.NewTaskID("docs"),
			Inputs:  []string{"/repo/docs"},
			Exclude: []string{"/repo/docs/tmp"},
		},
		{
			ID:     domain.NewTaskID("report"),
			Inputs: []string{"/repo/report[1].txt"},
		},
		{
			ID: domain.NewTaskID("noinputs"),
		},
	}
	idx := watcher.NewIndex(defs)

	tests := []struct {
		name  string
		paths []string
		want  []string
	}{
		{name: "exact file", paths: []string{"/repo/go.mod"}, want: []string{"build"}},
		{name: "file below input dir and glob", paths: []string{"/repo/src/main.go"}, want: []string{"build", "lint"}},
		{name: "nested path under glob match", paths: []string{"/repo/src/x.go/inner"}, want: []string{"build", "lint"}},
		{name: "own target is ignored", paths: []string{"/repo/src/gen/out.txt"}, want: nil},
		{name: "excluded path is ignored", paths: []string{"/repo/docs/tmp/a.md"}, want: nil},
		{name: "docs file", paths: []string{"/repo/docs/index.md"}, want: []string{"docs"}},
		{name: "sibling with shared prefix", paths: []string{"/repo/srcfoo/a.go"}, want: nil},
		{name: "unrelated", paths: []string{"/elsewhere"}, want: nil},
		{name: "several paths", paths: []string{"/repo/docs/a.md", "/repo/go.mod"}, want: []string{"build", "docs"}},
		{name: "literal path with glob characters", paths: []string{"/repo/report[1].txt"}, want: []string{"report"}},
		{name: "unclean path", paths: []string{"/repo/docs/../go.mod"}, want: []string{"build"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := domain.TaskIDStrings(idx.Affected(tt.paths))
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
