package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ccmux/ccmux/internal/config"
	"github.com/ccmux/ccmux/internal/transport"
	"github.com/ccmux/ccmux/internal/wire"
)

// startDaemon runs the daemon against stateDir and waits for its socket
// to appear. The returned stop function cancels the daemon and waits
// for Run to return.
func startDaemon(t *testing.T, stateDir string) (config.Config, func()) {
	t.Helper()
	cfg := config.Defaults(stateDir)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, "") }()

	deadline := time.Now().Add(10 * time.Second)
	for {
		if _, err := os.Stat(cfg.SocketPath); err == nil {
			break
		}
		select {
		case err := <-done:
			t.Fatalf("daemon exited before socket appeared: %v", err)
		default:
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("socket %s never appeared", cfg.SocketPath)
		}
		time.Sleep(20 * time.Millisecond)
	}

	return cfg, func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run returned %v", err)
			}
		case <-time.After(15 * time.Second):
			t.Errorf("daemon did not stop")
		}
	}
}

func dialRetry(t *testing.T, socketPath string) *transport.Client {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		client, err := transport.Dial(socketPath, "other")
		if err == nil {
			return client
		}
		if time.Now().After(deadline) {
			t.Fatalf("Dial: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func listSessionNames(t *testing.T, socketPath string) []string {
	t.Helper()
	client := dialRetry(t, socketPath)
	defer client.Close()
	resp, err := client.Request(wire.TypeListSessions, wire.ListSessionsReq{}, 10*time.Second)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	var list wire.SessionListResp
	if err := resp.Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	names := make([]string, 0, len(list.Sessions))
	for _, s := range list.Sessions {
		names = append(names, s.Name)
	}
	return names
}

func TestRunServesAndShutsDownCleanly(t *testing.T) {
	stateDir := t.TempDir()
	cfg, stop := startDaemon(t, stateDir)

	client, err := transport.Dial(cfg.SocketPath, "tui")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	resp, err := client.Request(wire.TypeCreateSession, wire.CreateSessionReq{Name: "persist"}, 10*time.Second)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if resp.Type != wire.TypeSessionInfo {
		t.Fatalf("response type = %s", resp.Type)
	}
	client.Close()

	stop()

	// Clean shutdown removes the lock-file and leaves a final checkpoint.
	if _, err := os.Stat(filepath.Join(stateDir, ".lock")); !os.IsNotExist(err) {
		t.Fatalf("lock-file still present after clean shutdown")
	}
	entries, err := os.ReadDir(filepath.Join(stateDir, "checkpoints"))
	if err != nil || len(entries) == 0 {
		t.Fatalf("no checkpoint written: %v, %v", entries, err)
	}
}

func TestRunRestoresSessionsAcrossRestart(t *testing.T) {
	stateDir := t.TempDir()
	cfg, stop := startDaemon(t, stateDir)

	client, err := transport.Dial(cfg.SocketPath, "tui")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if _, err := client.Request(wire.TypeCreateSession, wire.CreateSessionReq{Name: "alpha"}, 10*time.Second); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := client.Request(wire.TypeCreateSession, wire.CreateSessionReq{Name: "beta"}, 10*time.Second); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	client.Close()
	stop()

	_, stop2 := startDaemon(t, stateDir)
	defer stop2()

	names := listSessionNames(t, cfg.SocketPath)
	found := map[string]bool{}
	for _, n := range names {
		found[n] = true
	}
	if !found["alpha"] || !found["beta"] {
		t.Fatalf("sessions not restored: %v", names)
	}
}
