package config_test

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/config"
	"go.trai.ch/kiln/internal/core/domain"
)

func TestLoader_Load_MapFS(t *testing.T) {
	fsys := fstest.MapFS{
		"kiln.work.yaml": {Data: []byte("projects: [\"services/*\"]\n")},

		"services/api/kiln.yaml": {Data: []byte(`
project: api
tasks:
  build:
    cmd: [go, build]
    input: [.]
`)},
		"services/web/kiln.yaml": {Data: []byte(`
project: web
tasks:
  bundle:
    cmd: [npm, run, build]
    dependsOn: ["api:build"]
`)},
		"services/notes.txt": {Data: []byte("not a project")},
	}

	loader := newLoader(t)
	loader.FS = config.NewMapFSAdapter("/repo", fsys)

	project, err := loader.Load("/repo/services/web")
	require.NoError(t, err)

	assert.Equal(t, "/repo", project.Root)
	assert.Equal(t, []string{"api:build", "web:bundle"}, ids(project))
	assert.Equal(t, []string{"/repo/services/api"}, taskByID(t, project, "api:build").Inputs)
	assert.Equal(t, "/repo/services/web", taskByID(t, project, "web:bundle").WorkingDir)
}

func TestLoader_DiscoverRoot_MapFS(t *testing.T) {
	fsys := fstest.MapFS{
		"sub/kiln.yaml": {Data: []byte("root: ..\n")},
	}

	loader := newLoader(t)
	loader.FS = config.NewMapFSAdapter("/repo", fsys)

	root, err := loader.DiscoverRoot("/repo/sub")
	require.NoError(t, err)
	assert.Equal(t, "/repo", root)

	_, err = loader.DiscoverRoot("/elsewhere")
	require.ErrorIs(t, err, domain.ErrConfigNotFound)
}
