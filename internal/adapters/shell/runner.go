// Package shell runs task commands, inside a pseudo terminal where possible.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/creack/pty"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.CommandRunner = (*Runner)(nil)

// Process represents a running command.
type Process interface {
	Wait() error
	Resize(rows, cols int) error
}

type ptyProcess struct {
	cmd    *exec.Cmd
	ptmx   *os.File
	ioDone <-chan struct{}
}

func (p *ptyProcess) Wait() error {
	err := p.cmd.Wait()
	// The copy loop ends once the pty reports EOF after the process exits.
	<-p.ioDone
	return err
}

func (p *ptyProcess) Resize(rows, cols int) error {
	if rows > math.MaxUint16 || cols > math.MaxUint16 || rows < 0 || cols < 0 {
		return errors.New("terminal size out of bounds")
	}

	return pty.Setsize(p.ptmx, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
}

// pipeProcess is used when no pseudo terminal is available.
type pipeProcess struct {
	cmd   *exec.Cmd
	flush func()
}

func (p *pipeProcess) Wait() error {
	err := p.cmd.Wait()
	p.flush()
	return err
}

func (p *pipeProcess) Resize(_, _ int) error {
	return nil
}

// Runner implements ports.CommandRunner using os/exec and pty.
type Runner struct {
	logger ports.Logger
}

// NewRunner creates a new Runner. Command output is also sent to logger at
// debug level, one message per line.
func NewRunner(logger ports.Logger) *Runner {
	return &Runner{logger: logger}
}

// Start launches cmd in a PTY, falling back to plain pipes when the system
// has none. It returns nil for an empty command.
func (r *Runner) Start(ctx context.Context, cmd ports.Command, stdout, stderr io.Writer) (Process, error) {
	if len(cmd.Args) == 0 {
		return nil, nil
	}

	outLog := &logWriter{logger: r.logger}
	errLog := &logWriter{logger: r.logger}
	stdout = io.MultiWriter(outLog, stdout)
	stderr = io.MultiWriter(errLog, stderr)
	flush := func() {
		_ = outLog.Close()
		_ = errLog.Close()
	}

	name := cmd.Args[0]
	env := resolveEnvironment(os.Environ(), cmd.Environment)

	executable := name
	if !filepath.IsAbs(name) {
		if lp, err := lookPath(name, env); err == nil {
			executable = lp
		}
	}

	c := newCmd(ctx, executable, cmd, env)
	ptmx, err := pty.Start(c)
	if err == nil {
		ioDone := make(chan struct{})
		go func() {
			defer close(ioDone)
			defer func() { _ = ptmx.Close() }()
			defer flush()
			// A PTY merges stderr into stdout.
			_, _ = io.Copy(stdout, ptmx)
		}()
		return &ptyProcess{cmd: c, ptmx: ptmx, ioDone: ioDone}, nil
	}

	// exec.Cmd cannot be started twice, so the fallback gets a fresh one.
	c = newCmd(ctx, executable, cmd, env)
	c.Stdout = stdout
	c.Stderr = stderr
	if pipeErr := c.Start(); pipeErr != nil {
		return nil, zerr.With(fmt.Errorf("%w: %w", domain.ErrCommandStartFailed, pipeErr), "command", name)
	}
	return &pipeProcess{cmd: c, flush: flush}, nil
}

func newCmd(ctx context.Context, executable string, cmd ports.Command, env []string) *exec.Cmd {
	c := exec.CommandContext(ctx, executable, cmd.Args[1:]...) //nolint:gosec // user provided command
	c.Args[0] = cmd.Args[0]
	c.Dir = cmd.WorkingDir
	c.Env = env
	return c
}

// Run executes cmd and waits for it to complete.
func (r *Runner) Run(ctx context.Context, cmd ports.Command, stdout, stderr io.Writer) error {
	proc, err := r.Start(ctx, cmd, stdout, stderr)
	if err != nil {
		return err
	}
	if proc == nil {
		return nil
	}

	if err := proc.Wait(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return zerr.With(fmt.Errorf("%w: %w", domain.ErrCommandFailed, err), "exit_code", exitCode)
	}
	return nil
}

// logWriter forwards complete lines to the logger.
type logWriter struct {
	mu     sync.Mutex
	logger ports.Logger
	buf    []byte
}

func (w *logWriter) Write(p []byte) (int, error) {
	if w.logger == nil {
		return len(p), nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.logLine(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func (w *logWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.buf) > 0 {
		w.logLine(w.buf)
		w.buf = nil
	}
	return nil
}

func (w *logWriter) logLine(line []byte) {
	// PTYs terminate lines with \r\n.
	w.logger.Debug(strings.TrimSuffix(string(line), "\r"))
}

// allowListedEnvVars are the system environment variables inherited by
// commands. Everything else must be declared on the task.
var allowListedEnvVars = map[string]struct{}{
	"HOME": {},
	"TERM": {},
	"USER": {},
	"PATH": {},
}

// resolveEnvironment merges the allow-listed system environment with the
// task environment, which wins.
func resolveEnvironment(sysEnv []string, taskEnv map[string]string) []string {
	envMap := make(map[string]string)
	for _, entry := range sysEnv {
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if _, allowed := allowListedEnvVars[k]; allowed {
			envMap[k] = v
		}
	}

	for k, v := range taskEnv {
		envMap[k] = v
	}

	result := make([]string, 0, len(envMap))
	for k, v := range envMap {
		result = append(result, k+"="+v)
	}
	return result
}

// lookPath searches for an executable in the directories named by the PATH
// entry of env rather than the current process environment.
func lookPath(file string, env []string) (string, error) {
	var path string
	for _, e := range env {
		if p, ok := strings.CutPrefix(e, "PATH="); ok {
			path = p
			break
		}
	}

	if path == "" {
		return "", exec.ErrNotFound
	}

	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			// Unix shell semantics: path element "" means "."
			dir = "."
		}
		candidate := filepath.Join(dir, file)
		if err := findExecutable(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", exec.ErrNotFound
}

func findExecutable(file string) error {
	d, err := os.Stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0o111 != 0 {
		return nil
	}
	return os.ErrPermission
}
