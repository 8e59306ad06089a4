package poller

import (
	"sync"
	"testing"
	"time"

	"github.com/ccmux/ccmux/internal/graph"
	"github.com/ccmux/ccmux/internal/ptyio"
	"github.com/ccmux/ccmux/internal/sideband"
)

type fakeBroadcaster struct {
	mu   sync.Mutex
	msgs []any
}

func (f *fakeBroadcaster) BroadcastToSession(sessionID string, msg any) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return 1
}

func (f *fakeBroadcaster) BroadcastToAll(msg any) int {
	return f.BroadcastToSession("", msg)
}

func fixedClock() time.Time { return time.Unix(0, 0) }

func TestPollerIngestAndExit(t *testing.T) {
	g := graph.New(fixedClock)
	_, _, pane, err := g.CreateSession("dev")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	bc := &fakeBroadcaster{}
	p := New(g, bc, Options{})
	exec := sideband.NewExecutor(g, p, bc, sideband.Options{})
	p.SetExecutor(exec)

	handle, err := ptyio.Spawn(ptyio.Config{Command: "/bin/sh", Args: []string{"-c", "echo hello; exit 0"}})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	p.Track(pane.ID, pane.WindowID, handle)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, _, found, err := g.FindPane(pane.ID); err == nil && found.State.Kind == graph.PaneExited {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	_, _, found, err := g.FindPane(pane.ID)
	if err != nil {
		t.Fatalf("FindPane: %v", err)
	}
	if found.State.Kind != graph.PaneExited {
		t.Fatalf("pane state = %v, want exited", found.State.Kind)
	}

	scrollback, err := g.ReadScrollback(pane.ID)
	if err != nil {
		t.Fatalf("ReadScrollback: %v", err)
	}
	if len(scrollback) == 0 {
		t.Fatal("expected scrollback to contain echoed output")
	}
}
