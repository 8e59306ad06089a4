package sideband

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ccmux/ccmux/internal/graph"
	"github.com/ccmux/ccmux/internal/ptyio"
	"github.com/ccmux/ccmux/internal/wal"
	"github.com/ccmux/ccmux/internal/wire"
)

type fakePTY struct {
	mu      sync.Mutex
	spawned map[string]ptyio.Config
	written map[string][]byte
	resized map[string][2]uint16
	killed  []string
	failAll bool
}

func newFakePTY() *fakePTY {
	return &fakePTY{
		spawned: make(map[string]ptyio.Config),
		written: make(map[string][]byte),
		resized: make(map[string][2]uint16),
	}
}

func (f *fakePTY) Write(paneID string, data []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written[paneID] = append(f.written[paneID], data...)
	return len(data), nil
}

func (f *fakePTY) Resize(paneID string, cols, rows uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resized[paneID] = [2]uint16{cols, rows}
	return nil
}

func (f *fakePTY) Spawn(paneID string, cfg ptyio.Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errFake
	}
	f.spawned[paneID] = cfg
	return nil
}

func (f *fakePTY) Kill(paneID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, paneID)
	return nil
}

type fakeErr struct{}

func (fakeErr) Error() string { return "fake spawn error" }

var errFake error = fakeErr{}

type fakeBroadcaster struct {
	mu   sync.Mutex
	sent []any
}

func (f *fakeBroadcaster) BroadcastToSession(sessionID string, msg any) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return 1
}

func (f *fakeBroadcaster) BroadcastToAll(msg any) int {
	return f.BroadcastToSession("", msg)
}

func (f *fakeBroadcaster) messages() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.sent...)
}

type auditRecord struct {
	paneID, sessionID, command, attrs string
	bodyBytes                         int
}

type fakeAudit struct {
	mu      sync.Mutex
	records []auditRecord
}

func (f *fakeAudit) RecordSideband(paneID, sessionID, command, attrs string, bodyBytes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, auditRecord{paneID, sessionID, command, attrs, bodyBytes})
}

func testExecutor(t *testing.T, opts Options) (*Executor, *graph.Graph, *fakePTY, *fakeBroadcaster, *graph.Pane) {
	t.Helper()
	g := graph.New(func() time.Time { return time.Unix(5000, 0) })
	_, _, pane, err := g.CreateSession("work")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	pty := newFakePTY()
	bc := &fakeBroadcaster{}
	e := NewExecutor(g, pty, bc, opts)
	return e, g, pty, bc, pane
}

func TestSpawnCreatesPaneAndBroadcasts(t *testing.T) {
	e, g, pty, bc, src := testExecutor(t, Options{})

	e.Dispatch(src.ID, "", Command{
		Name:  CmdSpawn,
		Attrs: map[string]string{"direction": "vertical", "command": "echo hi"},
	})

	session, _, _, err := g.FindPane(src.ID)
	if err != nil {
		t.Fatalf("FindPane: %v", err)
	}
	count, _ := g.PaneCountInSession(session.ID)
	if count != 2 {
		t.Fatalf("pane count = %d, want 2", count)
	}

	var created *wire.PaneCreatedPush
	for _, m := range bc.messages() {
		if pc, ok := m.(wire.PaneCreatedPush); ok {
			created = &pc
		}
	}
	if created == nil {
		t.Fatalf("no PaneCreated broadcast: %v", bc.messages())
	}
	if created.Direction != "vertical" {
		t.Fatalf("direction = %s", created.Direction)
	}
	if created.Pane.WindowID != src.WindowID {
		t.Fatalf("new pane window = %s, want %s", created.Pane.WindowID, src.WindowID)
	}
	if created.ShouldFocus {
		t.Fatalf("sideband spawn must not steal focus")
	}

	cfg, ok := pty.spawned[created.Pane.ID]
	if !ok {
		t.Fatalf("pty not spawned for %s", created.Pane.ID)
	}
	if cfg.Command != "echo" || len(cfg.Args) != 1 || cfg.Args[0] != "hi" {
		t.Fatalf("command split = %q %v", cfg.Command, cfg.Args)
	}
	var foundPaneEnv bool
	for _, kv := range cfg.Env {
		if kv == "CCMUX_PANE_ID="+created.Pane.ID {
			foundPaneEnv = true
		}
	}
	if !foundPaneEnv {
		t.Fatalf("CCMUX_PANE_ID missing from env: %v", cfg.Env)
	}
}

func TestSpawnConfigEnvMergesIn(t *testing.T) {
	e, _, pty, bc, src := testExecutor(t, Options{})

	e.Dispatch(src.ID, "", Command{
		Name: CmdSpawn,
		Attrs: map[string]string{
			"command": "worker",
			"config":  `{"env":{"ROLE":"builder"}}`,
		},
	})

	var paneID string
	for _, m := range bc.messages() {
		if pc, ok := m.(wire.PaneCreatedPush); ok {
			paneID = pc.Pane.ID
		}
	}
	cfg, ok := pty.spawned[paneID]
	if !ok {
		t.Fatalf("no spawn recorded")
	}
	var found bool
	for _, kv := range cfg.Env {
		if kv == "ROLE=builder" {
			found = true
		}
	}
	if !found {
		t.Fatalf("config env not merged: %v", cfg.Env)
	}
}

func TestSpawnRefusedAtSessionPaneLimit(t *testing.T) {
	e, g, pty, bc, src := testExecutor(t, Options{MaxPanesPerSession: 1})

	e.Dispatch(src.ID, "", Command{Name: CmdSpawn, Attrs: map[string]string{"direction": "h"}})

	session, _, _, _ := g.FindPane(src.ID)
	count, _ := g.PaneCountInSession(session.ID)
	if count != 1 {
		t.Fatalf("pane count = %d, want 1 (no pane created)", count)
	}
	if len(pty.spawned) != 0 {
		t.Fatalf("pty spawned despite limit: %v", pty.spawned)
	}
	var notified bool
	for _, m := range bc.messages() {
		if n, ok := m.(wire.NotificationPush); ok && strings.Contains(n.Text, "max_panes_per_session") {
			notified = true
		}
	}
	if !notified {
		t.Fatalf("no limit notification: %v", bc.messages())
	}
}

func TestSpawnFailureRollsPaneBack(t *testing.T) {
	e, g, pty, bc, src := testExecutor(t, Options{})
	pty.failAll = true

	e.Dispatch(src.ID, "", Command{Name: CmdSpawn, Attrs: map[string]string{}})

	session, _, _, _ := g.FindPane(src.ID)
	count, _ := g.PaneCountInSession(session.ID)
	if count != 1 {
		t.Fatalf("pane count = %d after failed spawn, want 1", count)
	}
	for _, m := range bc.messages() {
		if _, ok := m.(wire.PaneCreatedPush); ok {
			t.Fatalf("PaneCreated broadcast despite spawn failure")
		}
	}
}

func TestInputWritesToSiblingByIndex(t *testing.T) {
	e, g, pty, _, src := testExecutor(t, Options{})
	_, _, sibling, err := g.SplitPane(src.ID, graph.SplitVertical, nil)
	if err != nil {
		t.Fatalf("SplitPane: %v", err)
	}

	e.Dispatch(src.ID, "", Command{
		Name:  CmdInput,
		Attrs: map[string]string{"pane": "1"},
		Body:  []byte("make test\n"),
	})

	if got := string(pty.written[sibling.ID]); got != "make test\n" {
		t.Fatalf("written = %q", got)
	}
}

func TestInputDefaultsToSourcePane(t *testing.T) {
	e, _, pty, _, src := testExecutor(t, Options{})

	e.Dispatch(src.ID, "", Command{Name: CmdInput, Attrs: map[string]string{}, Body: []byte("x")})

	if got := string(pty.written[src.ID]); got != "x" {
		t.Fatalf("written = %q", got)
	}
}

func TestInputRefusesMirrorPane(t *testing.T) {
	e, g, pty, _, src := testExecutor(t, Options{})

	// Rebuild the graph with the source pane flagged as a mirror;
	// mirrors are display-only (no PTY write path).
	snap := g.Snapshot(false)
	snap[0].Windows[0].Panes[0].IsMirror = true
	g.LoadSnapshot(snap)

	e.Dispatch(src.ID, "", Command{Name: CmdInput, Attrs: map[string]string{}, Body: []byte("x")})

	if len(pty.written[src.ID]) != 0 {
		t.Fatalf("mirror pane accepted input: %q", pty.written[src.ID])
	}
}

func TestControlResizeUpdatesGraphAndPTY(t *testing.T) {
	e, g, pty, _, src := testExecutor(t, Options{})

	e.Dispatch(src.ID, "", Command{
		Name:  CmdControl,
		Attrs: map[string]string{"action": "resize", "cols": "120", "rows": "48"},
	})

	_, _, pane, err := g.FindPane(src.ID)
	if err != nil {
		t.Fatalf("FindPane: %v", err)
	}
	if pane.Cols != 120 || pane.Rows != 48 {
		t.Fatalf("graph dims = %dx%d", pane.Cols, pane.Rows)
	}
	if pty.resized[src.ID] != [2]uint16{120, 48} {
		t.Fatalf("pty resize = %v", pty.resized[src.ID])
	}
}

func TestControlCloseRemovesPane(t *testing.T) {
	e, g, pty, bc, src := testExecutor(t, Options{})
	_, _, sibling, err := g.SplitPane(src.ID, graph.SplitVertical, nil)
	if err != nil {
		t.Fatalf("SplitPane: %v", err)
	}

	e.Dispatch(src.ID, "", Command{
		Name:  CmdControl,
		Attrs: map[string]string{"action": "close", "pane": sibling.ID},
	})

	if _, _, _, err := g.FindPane(sibling.ID); err == nil {
		t.Fatalf("pane still in graph after close")
	}
	if len(pty.killed) != 1 || pty.killed[0] != sibling.ID {
		t.Fatalf("killed = %v", pty.killed)
	}
	var closed bool
	for _, m := range bc.messages() {
		if pc, ok := m.(wire.PaneClosedPush); ok && pc.PaneID == sibling.ID {
			closed = true
		}
	}
	if !closed {
		t.Fatalf("no PaneClosed broadcast: %v", bc.messages())
	}
}

func TestCapabilitiesMergesPaneMetadata(t *testing.T) {
	e, g, _, _, src := testExecutor(t, Options{})

	e.Dispatch(src.ID, "", Command{
		Name: CmdCapabilities,
		Body: []byte(`{"supports_focus":"true","agent":"claude"}`),
	})

	_, _, pane, err := g.FindPane(src.ID)
	if err != nil {
		t.Fatalf("FindPane: %v", err)
	}
	if pane.Metadata["supports_focus"] != "true" || pane.Metadata["agent"] != "claude" {
		t.Fatalf("metadata = %v", pane.Metadata)
	}
}

func TestNotifyBroadcastsLevelAndBody(t *testing.T) {
	e, _, _, bc, src := testExecutor(t, Options{})

	e.Dispatch(src.ID, "", Command{
		Name:  CmdNotify,
		Attrs: map[string]string{"level": "error", "title": "build"},
		Body:  []byte("compilation failed"),
	})

	var n *wire.NotificationPush
	for _, m := range bc.messages() {
		if np, ok := m.(wire.NotificationPush); ok {
			n = &np
		}
	}
	if n == nil {
		t.Fatalf("no notification: %v", bc.messages())
	}
	if n.Level != "error" || n.Title != "build" || n.Text != "compilation failed" {
		t.Fatalf("notification = %+v", n)
	}
}

func TestScrollBroadcastsViewportDirective(t *testing.T) {
	e, _, _, bc, src := testExecutor(t, Options{})

	e.Dispatch(src.ID, "", Command{
		Name:  CmdScroll,
		Attrs: map[string]string{"lines": "-10"},
	})

	var sv *wire.ScrollViewportPush
	for _, m := range bc.messages() {
		if s, ok := m.(wire.ScrollViewportPush); ok {
			sv = &s
		}
	}
	if sv == nil {
		t.Fatalf("no scroll directive: %v", bc.messages())
	}
	if sv.PaneID != src.ID || sv.Lines != -10 {
		t.Fatalf("directive = %+v", sv)
	}
}

func TestDispatchRecordsAudit(t *testing.T) {
	audit := &fakeAudit{}
	e, _, _, _, src := testExecutor(t, Options{Audit: audit})

	e.Dispatch(src.ID, "", Command{
		Name:  CmdFocus,
		Attrs: map[string]string{"pane": "active"},
	})

	audit.mu.Lock()
	defer audit.mu.Unlock()
	if len(audit.records) != 1 {
		t.Fatalf("audit records = %v", audit.records)
	}
	rec := audit.records[0]
	if rec.paneID != src.ID || rec.command != CmdFocus {
		t.Fatalf("record = %+v", rec)
	}
	if rec.attrs != `pane="active"` {
		t.Fatalf("attrs = %q", rec.attrs)
	}
}

func TestSidebandMutationsReachWAL(t *testing.T) {
	walPath := filepath.Join(t.TempDir(), "wal.log")
	w, err := wal.Open(walPath, wal.Options{})
	if err != nil {
		t.Fatalf("wal.Open: %v", err)
	}
	defer w.Shutdown()

	e, _, _, bc, src := testExecutor(t, Options{WAL: w})

	e.Dispatch(src.ID, "", Command{
		Name:  CmdSpawn,
		Attrs: map[string]string{"direction": "vertical"},
	})
	var spawned wire.PaneCreatedPush
	for _, m := range bc.messages() {
		if pc, ok := m.(wire.PaneCreatedPush); ok {
			spawned = pc
		}
	}
	if spawned.Pane.ID == "" {
		t.Fatalf("no PaneCreated broadcast: %v", bc.messages())
	}

	e.Dispatch(src.ID, "", Command{
		Name:  CmdControl,
		Attrs: map[string]string{"action": "close", "pane": spawned.Pane.ID},
	})
	if err := w.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	records, err := wal.ReadAll(walPath, nil)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	var created *wal.PaneCreatedPayload
	var destroyed *wal.PaneDestroyedPayload
	for _, rec := range records {
		switch rec.Variant {
		case wal.PaneCreated:
			var p wal.PaneCreatedPayload
			if err := json.Unmarshal(rec.Payload, &p); err != nil {
				t.Fatalf("decode PaneCreated: %v", err)
			}
			created = &p
		case wal.PaneDestroyed:
			var p wal.PaneDestroyedPayload
			if err := json.Unmarshal(rec.Payload, &p); err != nil {
				t.Fatalf("decode PaneDestroyed: %v", err)
			}
			destroyed = &p
		}
	}
	if created == nil || created.PaneID != spawned.Pane.ID {
		t.Fatalf("PaneCreated record missing or wrong: %+v", created)
	}
	if created.Index != spawned.Pane.Index {
		t.Fatalf("PaneCreated index = %d, want %d", created.Index, spawned.Pane.Index)
	}
	if created.SourcePane != src.ID {
		t.Fatalf("PaneCreated source = %s, want %s", created.SourcePane, src.ID)
	}
	if destroyed == nil || destroyed.PaneID != spawned.Pane.ID {
		t.Fatalf("PaneDestroyed record missing or wrong: %+v", destroyed)
	}
}
