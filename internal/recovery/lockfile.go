// Package recovery implements startup crash detection and the
// checkpoint+WAL replay/restoration pipeline: lock-file detection, a pure reducer that folds WAL records onto a
// checkpoint's base state, and PTY-respawn restoration including the
// AI-agent resume recipe. github.com/mitchellh/go-ps tells whether a
// stale lock-file's PID is still running.
package recovery

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	ps "github.com/mitchellh/go-ps"
)

// LockFile tracks the daemon's own process-id marker file.
type LockFile struct {
	path string
}

// AcquireResult describes what Acquire found on disk before claiming the
// lock-file for this process.
type AcquireResult struct {
	// CleanShutdown is true when no lock-file existed (the common case:
	// the previous run exited normally and removed it).
	CleanShutdown bool
	// PriorPID is the pid recorded in a stale lock-file, 0 if none.
	PriorPID int
}

// ErrAlreadyRunning is returned when the lock-file's pid is still alive:
// a second daemon must not start against the same state directory.
type ErrAlreadyRunning struct{ PID int }

func (e *ErrAlreadyRunning) Error() string {
	return fmt.Sprintf("ccmux daemon already running with pid %d", e.PID)
}

// Acquire inspects path for a pre-existing lock-file. If one exists and
// its pid is still alive (per go-ps), it returns *ErrAlreadyRunning and
// leaves the file untouched. Otherwise it writes path with the current
// process's pid and returns whether the shutdown that left any stale
// file behind was unclean.
func Acquire(path string) (*LockFile, AcquireResult, error) {
	existing, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		if werr := writePID(path); werr != nil {
			return nil, AcquireResult{}, werr
		}
		return &LockFile{path: path}, AcquireResult{CleanShutdown: true}, nil
	case err != nil:
		return nil, AcquireResult{}, err
	}

	priorPID, perr := strconv.Atoi(strings.TrimSpace(string(existing)))
	if perr == nil && priorPID > 0 {
		if alive, _ := processAlive(priorPID); alive {
			return nil, AcquireResult{}, &ErrAlreadyRunning{PID: priorPID}
		}
	}

	if err := writePID(path); err != nil {
		return nil, AcquireResult{}, err
	}
	return &LockFile{path: path}, AcquireResult{CleanShutdown: false, PriorPID: priorPID}, nil
}

func writePID(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600)
}

func processAlive(pid int) (bool, error) {
	proc, err := ps.FindProcess(pid)
	if err != nil {
		return false, err
	}
	return proc != nil, nil
}

// ProcessAlive reports whether pid names a running process, via the
// same go-ps probe the lock-file check uses. GetWorkerStatus relies on
// it to cross-check a session's self-reported worker pid.
func ProcessAlive(pid int) bool {
	alive, err := processAlive(pid)
	return err == nil && alive
}

// Release removes the lock-file, marking this shutdown clean.
func (l *LockFile) Release() error {
	if l == nil {
		return nil
	}
	err := os.Remove(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
