package shell_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/shell"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/core/ports/mocks"
	"go.trai.ch/zerr"
	"go.uber.org/mock/gomock"
)

func run(t *testing.T, cmd ports.Command) (string, error) {
	t.Helper()

	if cmd.WorkingDir == "" {
		cmd.WorkingDir = t.TempDir()
	}
	var stdout bytes.Buffer
	err := shell.NewRunner(nil).Run(t.Context(), cmd, &stdout, &stdout)
	return stdout.String(), err
}

func TestRunner_Run_MultiLineOutput(t *testing.T) {
	out, err := run(t, ports.Command{Args: []string{"sh", "-c", "echo line1; echo line2"}})
	require.NoError(t, err)
	assert.Contains(t, out, "line1")
	assert.Contains(t, out, "line2")
}

func TestRunner_Run_FragmentedOutput(t *testing.T) {
	out, err := run(t, ports.Command{Args: []string{"sh", "-c", "printf part1; sleep 0.1; echo part2"}})
	require.NoError(t, err)
	assert.Contains(t, out, "part1part2")
}

func TestRunner_Run_EnvironmentVariables(t *testing.T) {
	out, err := run(t, ports.Command{
		Args:        []string{"sh", "-c", "echo $MY_TEST_VAR"},
		Environment: map[string]string{"MY_TEST_VAR": "test-value-123"},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "test-value-123")
}

func TestRunner_Run_FiltersHostEnvironment(t *testing.T) {
	t.Setenv("KILN_SECRET_FOR_TEST", "leaked")

	out, err := run(t, ports.Command{Args: []string{"sh", "-c", "echo \"[$KILN_SECRET_FOR_TEST]\""}})
	require.NoError(t, err)
	assert.Contains(t, out, "[]")
	assert.NotContains(t, out, "leaked")
}

func TestRunner_Run_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("here"), domain.FilePerm))

	out, err := run(t, ports.Command{Args: []string{"cat", "marker.txt"}, WorkingDir: dir})
	require.NoError(t, err)
	assert.Contains(t, out, "here")
}

func TestRunner_Run_InvalidCommand(t *testing.T) {
	_, err := run(t, ports.Command{Args: []string{"nonexistent-command-xyz123"}})
	require.Error(t, err)
}

func TestRunner_Run_CommandFailure(t *testing.T) {
	_, err := run(t, ports.Command{Args: []string{"sh", "-c", "exit 42"}})
	require.ErrorIs(t, err, domain.ErrCommandFailed)

	var zErr *zerr.Error
	require.ErrorAs(t, err, &zErr)
	assert.Equal(t, 42, zErr.Metadata()["exit_code"])
}

func TestRunner_Run_EmptyCommand(t *testing.T) {
	_, err := run(t, ports.Command{})
	require.NoError(t, err)
}

func TestRunner_Run_AbsolutePath(t *testing.T) {
	out, err := run(t, ports.Command{Args: []string{"/bin/sh", "-c", "echo test"}})
	require.NoError(t, err)
	assert.Contains(t, out, "test")
}

func TestRunner_Run_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := shell.NewRunner(nil).Run(ctx, ports.Command{
		Args:       []string{"sh", "-c", "sleep 5"},
		WorkingDir: t.TempDir(),
	}, io.Discard, io.Discard)
	require.Error(t, err)
}

func TestRunner_Run_KeepsANSISequences(t *testing.T) {
	ansiRed := "\033[31m"
	ansiReset := "\033[0m"
	msg := "Hello Red World"

	out, err := run(t, ports.Command{Args: []string{"sh", "-c", "printf '" + ansiRed + msg + ansiReset + "'"}})
	require.NoError(t, err)
	assert.Contains(t, out, ansiRed+msg+ansiReset)
}

func TestRunner_Run_HermeticPath(t *testing.T) {
	binDir := t.TempDir()
	tool := filepath.Join(binDir, "my-hermetic-tool")
	//nolint:gosec // Test requires executable file
	require.NoError(t, os.WriteFile(tool, []byte("#!/bin/sh\necho success\n"), 0o700))

	out, err := run(t, ports.Command{
		Args:        []string{"my-hermetic-tool"},
		Environment: map[string]string{"PATH": binDir + string(os.PathListSeparator) + "/bin:/usr/bin"},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "success")
}

func TestRunner_Run_ForwardsLinesToLogger(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockLogger := mocks.NewMockLogger(ctrl)
	gomock.InOrder(
		mockLogger.EXPECT().Debug("first"),
		mockLogger.EXPECT().Debug("second"),
	)

	err := shell.NewRunner(mockLogger).Run(t.Context(), ports.Command{
		Args:       []string{"sh", "-c", "echo first; printf second"},
		WorkingDir: t.TempDir(),
	}, io.Discard, io.Discard)
	require.NoError(t, err)
}
