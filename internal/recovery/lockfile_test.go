package recovery

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestAcquireOnFreshPathIsCleanShutdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ccmux.lock")
	lf, res, err := Acquire(path)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !res.CleanShutdown {
		t.Fatalf("expected clean shutdown on fresh path")
	}
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	if strconv.Itoa(os.Getpid()) != string(body) {
		t.Fatalf("expected lock file to contain our own pid")
	}
	if err := lf.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected lock file removed after release")
	}
}

func TestAcquireWithDeadPIDIsUncleanShutdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ccmux.lock")
	// PID 1 typically exists (init); use a PID vanishingly unlikely to be
	// alive instead, simulating a stale lock-file from a dead process.
	deadPID := 1 << 30
	if err := os.WriteFile(path, []byte(strconv.Itoa(deadPID)), 0o600); err != nil {
		t.Fatalf("seed lock file: %v", err)
	}

	_, res, err := Acquire(path)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if res.CleanShutdown {
		t.Fatalf("expected unclean shutdown when prior pid is dead")
	}
	if res.PriorPID != deadPID {
		t.Fatalf("expected prior pid %d, got %d", deadPID, res.PriorPID)
	}
}

func TestAcquireWithLivePIDFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ccmux.lock")
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		t.Fatalf("seed lock file: %v", err)
	}

	_, _, err := Acquire(path)
	var already *ErrAlreadyRunning
	if !errors.As(err, &already) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}
