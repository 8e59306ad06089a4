package handlers

import (
	"sync"
	"testing"
	"time"

	"github.com/ccmux/ccmux/internal/graph"
	"github.com/ccmux/ccmux/internal/ptyio"
	"github.com/ccmux/ccmux/internal/registry"
	"github.com/ccmux/ccmux/internal/wire"
)

// fakePTY is a no-op sideband.PTYPort: handler tests exercise graph/WAL/
// registry wiring, not real process spawning (that's poller's job, which
// already spawns real shells in its own tests).
type fakePTY struct {
	mu      sync.Mutex
	written map[string][][]byte
	failOn  string
}

func newFakePTY() *fakePTY {
	return &fakePTY{written: make(map[string][][]byte)}
}

func (f *fakePTY) Write(paneID string, data []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written[paneID] = append(f.written[paneID], append([]byte(nil), data...))
	return len(data), nil
}

func (f *fakePTY) Resize(paneID string, cols, rows uint16) error { return nil }

func (f *fakePTY) Spawn(paneID string, cfg ptyio.Config) error {
	if f.failOn != "" && paneID == f.failOn {
		return errSpawnFailed
	}
	return nil
}

func (f *fakePTY) Kill(paneID string) error { return nil }

type spawnFailErr struct{}

func (spawnFailErr) Error() string { return "fake spawn failure" }

var errSpawnFailed error = spawnFailErr{}

func fixedClock() time.Time { return time.Unix(1000, 0) }

func newTestDispatcher(t *testing.T) (*Dispatcher, *graph.Graph, *fakePTY) {
	t.Helper()
	g := graph.New(fixedClock)
	pty := newFakePTY()
	reg := registry.New(nil)
	d := New(Dependencies{
		Graph:    g,
		Registry: reg,
		PTY:      pty,
		Clock:    fixedClock,
	})
	return d, g, pty
}

func TestCreateWindowBootstrapsPane(t *testing.T) {
	d, g, _ := newTestDispatcher(t)
	session, _, _, err := g.CreateSession("dev")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	typ, body, werr := d.handleCreateWindow(clientCtx{clientID: "c1", typ: registry.ClientTUI}, wire.ClientMessage{Body: encode(t, wire.CreateWindowReq{SessionID: session.ID, Name: "extra"})})
	if werr != nil {
		t.Fatalf("handleCreateWindow: %v", werr)
	}
	if typ != wire.TypeWindowInfo {
		t.Fatalf("type = %s, want %s", typ, wire.TypeWindowInfo)
	}
	resp := body.(wire.WindowInfoResp)
	if len(resp.Window.Panes) != 1 {
		t.Fatalf("expected bootstrap pane, got %d panes", len(resp.Window.Panes))
	}
}

func TestRenameWindow(t *testing.T) {
	d, g, _ := newTestDispatcher(t)
	session, window, _, _ := g.CreateSession("dev")

	_, _, werr := d.handleRenameWindow(clientCtx{clientID: "c1", typ: registry.ClientTUI}, wire.ClientMessage{Body: encode(t, wire.RenameWindowReq{WindowID: window.ID, NewName: "renamed"})})
	if werr != nil {
		t.Fatalf("handleRenameWindow: %v", werr)
	}
	windows, err := g.ListWindows(session.ID)
	if err != nil {
		t.Fatalf("ListWindows: %v", err)
	}
	if windows[0].Name != "renamed" {
		t.Fatalf("window name = %q, want renamed", windows[0].Name)
	}
}

func TestSplitPaneAndClosePane(t *testing.T) {
	d, g, _ := newTestDispatcher(t)
	_, _, pane, _ := g.CreateSession("dev")

	typ, body, werr := d.handleSplitPane(clientCtx{clientID: "c1", typ: registry.ClientTUI}, wire.ClientMessage{
		Body: encode(t, wire.SplitPaneReq{PaneID: pane.ID, Direction: "vertical"}),
	})
	if werr != nil {
		t.Fatalf("handleSplitPane: %v", werr)
	}
	if typ != wire.TypePaneInfo {
		t.Fatalf("type = %s, want %s", typ, wire.TypePaneInfo)
	}
	newPaneID := body.(wire.PaneInfoResp).Pane.ID

	panes, err := g.ListAllPanes("")
	if err != nil {
		t.Fatalf("ListAllPanes: %v", err)
	}
	if len(panes) != 2 {
		t.Fatalf("expected 2 panes after split, got %d", len(panes))
	}

	_, _, werr = d.handleClosePane(clientCtx{clientID: "c1", typ: registry.ClientTUI}, wire.ClientMessage{
		Body: encode(t, wire.ClosePaneReq{PaneID: newPaneID}),
	})
	if werr != nil {
		t.Fatalf("handleClosePane: %v", werr)
	}
	panes, _ = g.ListAllPanes("")
	if len(panes) != 1 {
		t.Fatalf("expected 1 pane after close, got %d", len(panes))
	}
}

func TestFocusPaneDoesNotTouchGraphActivePane(t *testing.T) {
	d, g, _ := newTestDispatcher(t)
	session, window, pane, _ := g.CreateSession("dev")
	_, other, _ := g.CreatePane(window.ID)
	d.deps.Registry.Register("c1", registry.ClientTUI)

	_, _, werr := d.handleFocusPane(clientCtx{clientID: "c1", typ: registry.ClientTUI}, wire.ClientMessage{
		Body: encode(t, wire.FocusPaneReq{PaneID: other.ID}),
	})
	if werr != nil {
		t.Fatalf("handleFocusPane: %v", werr)
	}

	focus, ok := d.deps.Registry.GetFocus("c1")
	if !ok || focus.PaneID != other.ID {
		t.Fatalf("expected client focus to move to %s, got %+v", other.ID, focus)
	}

	refreshed, err := g.GetSession(session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if refreshed.Windows[0].ActivePaneID != pane.ID {
		t.Fatalf("FocusPane must not change the graph's active pane, got %s", refreshed.Windows[0].ActivePaneID)
	}
}

func TestSendInputTranslatesKeySymbol(t *testing.T) {
	d, g, pty := newTestDispatcher(t)
	_, _, pane, _ := g.CreateSession("dev")

	_, _, werr := d.handleSendInput(clientCtx{clientID: "c1", typ: registry.ClientTUI}, wire.ClientMessage{
		Body: encode(t, wire.SendInputReq{PaneID: pane.ID, Key: "Enter"}),
	})
	if werr != nil {
		t.Fatalf("handleSendInput: %v", werr)
	}
	got := pty.written[pane.ID]
	if len(got) != 1 || string(got[0]) != "\r" {
		t.Fatalf("expected translated Enter key (\\r), got %q", got)
	}
}

func TestCreateLayoutBuildsSplitTree(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	session, _, _, _ := d.deps.Graph.CreateSession("dev")

	req := wire.CreateLayoutReq{
		SessionID:  session.ID,
		WindowName: "layout",
		Root: wire.LayoutSpec{
			Direction: "vertical",
			Children: []wire.LayoutSpec{
				{Command: "left"},
				{
					Direction: "horizontal",
					Children: []wire.LayoutSpec{
						{Command: "top-right"},
						{Command: "bottom-right"},
					},
				},
			},
		},
	}
	typ, body, werr := d.handleCreateLayout(clientCtx{clientID: "c1", typ: registry.ClientTUI}, wire.ClientMessage{Body: encode(t, req)})
	if werr != nil {
		t.Fatalf("handleCreateLayout: %v", werr)
	}
	if typ != wire.TypeWindowInfo {
		t.Fatalf("type = %s, want %s", typ, wire.TypeWindowInfo)
	}
	resp := body.(wire.WindowInfoResp)
	if len(resp.Window.Panes) != 3 {
		t.Fatalf("expected 3 panes from a 3-leaf layout tree, got %d", len(resp.Window.Panes))
	}
}

func TestExpectMatchesExistingScrollback(t *testing.T) {
	d, g, _ := newTestDispatcher(t)
	_, _, pane, _ := g.CreateSession("dev")
	if err := g.PushOutput(pane.ID, []byte("build finished: OK\n")); err != nil {
		t.Fatalf("PushOutput: %v", err)
	}

	typ, body, werr := d.handleExpect(wire.ClientMessage{
		Body: encode(t, wire.ExpectReq{PaneID: pane.ID, Pattern: "build finished.*", TimeoutMs: 200}),
	})
	if werr != nil {
		t.Fatalf("handleExpect: %v", werr)
	}
	if typ != wire.TypeExpectMatch {
		t.Fatalf("type = %s, want %s", typ, wire.TypeExpectMatch)
	}
	if body.(wire.ExpectMatchResp).Line != "build finished: OK" {
		t.Fatalf("unexpected matched line: %q", body.(wire.ExpectMatchResp).Line)
	}
}

func TestExpectTimesOutWithoutMatch(t *testing.T) {
	d, g, _ := newTestDispatcher(t)
	_, _, pane, _ := g.CreateSession("dev")

	_, _, werr := d.handleExpect(wire.ClientMessage{
		Body: encode(t, wire.ExpectReq{PaneID: pane.ID, Pattern: "never-appears", TimeoutMs: 50}),
	})
	if werr == nil {
		t.Fatal("expected ResponseTimeout error")
	}
}

func TestExpectWakesOnNewOutput(t *testing.T) {
	d, g, _ := newTestDispatcher(t)
	_, _, pane, _ := g.CreateSession("dev")

	done := make(chan struct{})
	var matched string
	go func() {
		_, body, werr := d.handleExpect(wire.ClientMessage{
			Body: encode(t, wire.ExpectReq{PaneID: pane.ID, Pattern: "ready", TimeoutMs: 2000}),
		})
		if werr == nil {
			matched = body.(wire.ExpectMatchResp).Line
		}
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	if err := g.PushOutput(pane.ID, []byte("server ready\n")); err != nil {
		t.Fatalf("PushOutput: %v", err)
	}

	select {
	case <-done:
		if matched != "server ready" {
			t.Fatalf("matched = %q, want %q", matched, "server ready")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expect did not wake on new output")
	}
}

func TestRunPipelineStopsAtFirstFailure(t *testing.T) {
	d, g, _ := newTestDispatcher(t)
	session, _, pane, _ := g.CreateSession("dev")

	req := wire.RunPipelineReq{
		SessionID: session.ID,
		Steps: []wire.PipelineStep{
			{Kind: "input", PaneID: pane.ID, Data: []byte("ls\n")},
			{Kind: "expect", PaneID: pane.ID, Pattern: "never-appears", TimeoutMs: 30},
			{Kind: "input", PaneID: pane.ID, Data: []byte("this should not run\n")},
		},
	}
	typ, body, werr := d.handleRunPipeline(clientCtx{clientID: "c1", typ: registry.ClientTUI}, wire.ClientMessage{Body: encode(t, req)})
	if werr != nil {
		t.Fatalf("handleRunPipeline: %v", werr)
	}
	if typ != wire.TypePipelineResult {
		t.Fatalf("type = %s, want %s", typ, wire.TypePipelineResult)
	}
	resp := body.(wire.PipelineResultResp)
	if resp.Completed != 1 || resp.FailedStep != 2 {
		t.Fatalf("unexpected pipeline result: %+v", resp)
	}
}

func encode(t *testing.T, v any) []byte {
	t.Helper()
	msg, err := wire.EncodeClient(0, "", v)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return msg.Body
}
