package graph

import "testing"

func newTestGraph() *Graph {
	return New(nil)
}

func TestCreateSessionRejectsNameCollision(t *testing.T) {
	g := newTestGraph()
	if _, _, _, err := g.CreateSession("alpha"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, _, err := g.CreateSession("alpha"); err != ErrSessionNameTaken {
		t.Fatalf("expected ErrSessionNameTaken, got %v", err)
	}
}

func TestDestroySessionFreesNameForReuse(t *testing.T) {
	g := newTestGraph()
	s, _, _, _ := g.CreateSession("alpha")

	if _, err := g.DestroySession(s.ID); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	// The name becomes available immediately after destruction.
	if _, _, _, err := g.CreateSession("alpha"); err != nil {
		t.Fatalf("expected name reuse to succeed, got %v", err)
	}
}

func TestActivePaneRebalancesOnRemoval(t *testing.T) {
	g := newTestGraph()
	s, w, p0, _ := g.CreateSession("alpha")

	_, _, p1, err := g.SplitPane(p0.ID, SplitVertical, nil)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	_, _, p2, err := g.SplitPane(p1.ID, SplitHorizontal, nil)
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	if err := g.SetActivePane(w.ID, p1.ID); err != nil {
		t.Fatalf("set active: %v", err)
	}

	if _, _, err := g.RemovePane(p1.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}

	windows, err := g.ListWindows(s.ID)
	if err != nil {
		t.Fatalf("list windows: %v", err)
	}
	win := windows[0]
	// The active reference must still resolve to a live sibling.
	found := false
	for _, p := range win.Panes {
		if p.ID == win.ActivePaneID {
			found = true
		}
	}
	if !found {
		t.Fatalf("active pane %q does not resolve to a live pane after removal", win.ActivePaneID)
	}
	if win.ActivePaneID == p1.ID {
		t.Fatalf("active pane still points at removed pane")
	}
	_ = p2
}

func TestWindowPersistsAfterLastPaneRemoved(t *testing.T) {
	g := newTestGraph()
	s, w, p0, _ := g.CreateSession("alpha")

	if _, _, err := g.RemovePane(p0.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}

	windows, err := g.ListWindows(s.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("expected window to persist with zero panes, got %d windows", len(windows))
	}
	if len(windows[0].Panes) != 0 {
		t.Fatalf("expected zero panes, got %d", len(windows[0].Panes))
	}
	_ = w
}

func TestSplitPaneCollapsesLayoutOnRemoval(t *testing.T) {
	g := newTestGraph()
	_, w, p0, _ := g.CreateSession("alpha")
	_, _, p1, _ := g.SplitPane(p0.ID, SplitVertical, nil)

	windows, _ := g.ListWindows(w.SessionID)
	layout := windows[0].Layout
	if layout.Kind != LayoutSplit {
		t.Fatalf("expected split root after SplitPane, got %v", layout.Kind)
	}

	if _, _, err := g.RemovePane(p1.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	windows, _ = g.ListWindows(w.SessionID)
	layout = windows[0].Layout
	// Collapsing a single-child split yields the surviving leaf.
	if layout.Kind != LayoutLeaf || layout.PaneID != p0.ID {
		t.Fatalf("expected collapsed leaf for %s, got %+v", p0.ID, layout)
	}
}

func TestFindPaneIsolatesCallerFromInternalState(t *testing.T) {
	g := newTestGraph()
	_, _, p0, _ := g.CreateSession("alpha")

	_, _, pane, err := g.FindPane(p0.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	pane.Metadata["mutated"] = "true"

	_, _, fresh, _ := g.FindPane(p0.ID)
	if _, ok := fresh.Metadata["mutated"]; ok {
		t.Fatalf("mutating a cloned pane must not affect internal state")
	}
}

func TestPaneCountInSessionTracksSplits(t *testing.T) {
	g := newTestGraph()
	s, _, p0, _ := g.CreateSession("alpha")
	n, _ := g.PaneCountInSession(s.ID)
	if n != 1 {
		t.Fatalf("expected 1 pane, got %d", n)
	}
	g.SplitPane(p0.ID, SplitVertical, nil)
	n, _ = g.PaneCountInSession(s.ID)
	if n != 2 {
		t.Fatalf("expected 2 panes after split, got %d", n)
	}
}
