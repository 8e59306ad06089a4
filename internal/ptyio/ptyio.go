// Package ptyio wraps github.com/creack/pty behind the opaque
// {spawn(config) -> handle{read, write, resize, kill, clone_reader}}
// capability. The daemon never looks inside a Handle beyond this
// contract.
package ptyio

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
)

// Config describes a process to spawn behind a PTY.
type Config struct {
	Command string
	Args    []string
	Dir     string
	Env     []string
	Cols    uint16
	Rows    uint16
}

const (
	DefaultCols = 80
	DefaultRows = 24
)

// DefaultShell returns $SHELL or a sane fallback.
func DefaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}

// Handle is a live PTY-backed process. Read/Write/Resize/Kill are safe for
// concurrent use; Read must only be called from a single reader goroutine
// at a time (the poller owns it).
type Handle struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	ptmx   *os.File
	closed bool
}

// Spawn starts cfg behind a new PTY.
func Spawn(cfg Config) (*Handle, error) {
	if cfg.Command == "" {
		cfg.Command = DefaultShell()
	}
	if cfg.Cols == 0 {
		cfg.Cols = DefaultCols
	}
	if cfg.Rows == 0 {
		cfg.Rows = DefaultRows
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir
	if len(cfg.Env) > 0 {
		cmd.Env = cfg.Env
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cfg.Cols, Rows: cfg.Rows})
	if err != nil {
		return nil, err
	}
	return &Handle{cmd: cmd, ptmx: ptmx}, nil
}

// Read reads raw PTY output. Returns io.EOF (or a wrapped read error) once
// the child has exited and the PTY master is drained.
func (h *Handle) Read(buf []byte) (int, error) {
	return h.ptmx.Read(buf)
}

// Write sends bytes to the PTY's stdin side.
func (h *Handle) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, io.ErrClosedPipe
	}
	return h.ptmx.Write(p)
}

// Resize changes the PTY window size.
func (h *Handle) Resize(cols, rows uint16) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return io.ErrClosedPipe
	}
	return pty.Setsize(h.ptmx, &pty.Winsize{Cols: cols, Rows: rows})
}

// Kill terminates the child process and releases the PTY master.
func (h *Handle) Kill() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	var errs []error
	if h.cmd.Process != nil {
		if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			errs = append(errs, err)
		}
	}
	if err := h.ptmx.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ExitCode blocks until the child exits and returns its exit code. Callers
// that already know the process has exited (EOF on Read) call this to
// retrieve the code for PaneState.Exited.
func (h *Handle) ExitCode() (int, error) {
	err := h.cmd.Wait()
	if err == nil {
		return h.cmd.ProcessState.ExitCode(), nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// Pid returns the child process id, used by internal/recovery's liveness
// checks and GetWorkerStatus.
func (h *Handle) Pid() int {
	if h.cmd.Process == nil {
		return -1
	}
	return h.cmd.Process.Pid
}

// CloneReader is trivial on Unix (a single os.File reader is already
// safe to hand off once); kept for parity with platforms that need a
// dup'd descriptor.
func (h *Handle) CloneReader() (io.Reader, error) {
	return h.ptmx, nil
}
