package graph

import "testing"

func TestSnapshotAndLoadSnapshotRoundTrip(t *testing.T) {
	g := newTestGraph()
	s, _, p0, err := g.CreateSession("alpha")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := g.PushOutput(p0.ID, []byte("hello world\n")); err != nil {
		t.Fatalf("push output: %v", err)
	}
	if err := g.SetTags(s.ID, []string{"prod", "agent"}); err != nil {
		t.Fatalf("set tags: %v", err)
	}

	snaps := g.Snapshot(true)
	if len(snaps) != 1 {
		t.Fatalf("expected 1 session snapshot, got %d", len(snaps))
	}
	if len(snaps[0].Windows) != 1 || len(snaps[0].Windows[0].Panes) != 1 {
		t.Fatalf("unexpected snapshot shape: %+v", snaps[0])
	}
	if string(snaps[0].Windows[0].Panes[0].Scrollback) != "hello world\n" {
		t.Fatalf("expected scrollback bytes captured, got %q", snaps[0].Windows[0].Panes[0].Scrollback)
	}

	g2 := newTestGraph()
	g2.LoadSnapshot(snaps)

	restored, err := g2.GetSessionByName("alpha")
	if err != nil {
		t.Fatalf("get restored session: %v", err)
	}
	if restored.ID != s.ID {
		t.Fatalf("expected restored session to keep UUID %s, got %s", s.ID, restored.ID)
	}
	tags, err := g2.GetTags(restored.ID)
	if err != nil || len(tags) != 2 {
		t.Fatalf("expected 2 tags restored, got %v (err=%v)", tags, err)
	}

	sb, err := g2.ReadScrollback(p0.ID)
	if err != nil {
		t.Fatalf("read scrollback: %v", err)
	}
	if string(sb) != "hello world\n" {
		t.Fatalf("expected scrollback restored, got %q", sb)
	}

	// A fresh CreateSession after restore must still enforce name
	// uniqueness against
	// the restored name index.
	if _, _, _, err := g2.CreateSession("alpha"); err != ErrSessionNameTaken {
		t.Fatalf("expected restored byName index to reject collision, got %v", err)
	}
}

func TestSnapshotWithoutScrollbackOmitsBytes(t *testing.T) {
	g := newTestGraph()
	_, _, p0, _ := g.CreateSession("alpha")
	g.PushOutput(p0.ID, []byte("secret"))

	snaps := g.Snapshot(false)
	if snaps[0].Windows[0].Panes[0].Scrollback != nil {
		t.Fatalf("expected scrollback omitted when includeScrollback is false")
	}
	if snaps[0].Windows[0].Panes[0].ScrollCap == 0 {
		t.Fatalf("expected scrollback capacity still recorded for later ring sizing")
	}
}
