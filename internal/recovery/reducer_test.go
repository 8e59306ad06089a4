package recovery

import (
	"encoding/json"
	"testing"

	"github.com/ccmux/ccmux/internal/graph"
	"github.com/ccmux/ccmux/internal/wal"
)

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestApplyBuildsSessionFromScratch(t *testing.T) {
	var state []graph.SessionSnapshot

	state, w := Apply(state, wal.Record{
		Sequence: 1, Variant: wal.SessionCreated,
		Payload: mustJSON(t, wal.SessionCreatedPayload{SessionID: "s1", Name: "alpha"}),
	})
	if w != "" {
		t.Fatalf("unexpected warning: %s", w)
	}
	state, w = Apply(state, wal.Record{
		Sequence: 2, Variant: wal.WindowCreated,
		Payload: mustJSON(t, wal.WindowCreatedPayload{SessionID: "s1", WindowID: "w1", Name: "0"}),
	})
	if w != "" {
		t.Fatalf("unexpected warning: %s", w)
	}
	state, w = Apply(state, wal.Record{
		Sequence: 3, Variant: wal.PaneCreated,
		Payload: mustJSON(t, wal.PaneCreatedPayload{WindowID: "w1", PaneID: "p1", Cols: 80, Rows: 24}),
	})
	if w != "" {
		t.Fatalf("unexpected warning: %s", w)
	}

	if len(state) != 1 || len(state[0].Windows) != 1 || len(state[0].Windows[0].Panes) != 1 {
		t.Fatalf("unexpected state shape: %+v", state)
	}
	if state[0].Windows[0].Panes[0].ID != "p1" {
		t.Fatalf("expected pane p1, got %+v", state[0].Windows[0].Panes[0])
	}
}

func TestApplyRestoresIndicesAndNextCounters(t *testing.T) {
	var state []graph.SessionSnapshot

	state, _ = Apply(state, wal.Record{
		Sequence: 1, Variant: wal.SessionCreated,
		Payload: mustJSON(t, wal.SessionCreatedPayload{SessionID: "s1", Name: "alpha"}),
	})
	state, _ = Apply(state, wal.Record{
		Sequence: 2, Variant: wal.WindowCreated,
		Payload: mustJSON(t, wal.WindowCreatedPayload{SessionID: "s1", WindowID: "w1", Index: 2, Name: "2"}),
	})
	state, _ = Apply(state, wal.Record{
		Sequence: 3, Variant: wal.PaneCreated,
		Payload: mustJSON(t, wal.PaneCreatedPayload{WindowID: "w1", PaneID: "p1", Index: 3, Cols: 80, Rows: 24}),
	})

	if got := state[0].Windows[0].Index; got != 2 {
		t.Fatalf("window index = %d, want 2", got)
	}
	if got := state[0].Windows[0].Panes[0].Index; got != 3 {
		t.Fatalf("pane index = %d, want 3", got)
	}
	if got := state[0].NextWindowIndex; got != 3 {
		t.Fatalf("next window index = %d, want 3", got)
	}
	if got := state[0].Windows[0].NextPaneIndex; got != 4 {
		t.Fatalf("next pane index = %d, want 4", got)
	}

	// A graph rebuilt from this state must not reuse the replayed
	// indices for fresh windows/panes.
	g := graph.New(nil)
	g.LoadSnapshot(state)
	window, err := g.CreateWindow("s1", "")
	if err != nil {
		t.Fatalf("CreateWindow: %v", err)
	}
	if window.Index != 3 {
		t.Fatalf("post-recovery window index = %d, want 3", window.Index)
	}
	_, pane, err := g.CreatePane("w1")
	if err != nil {
		t.Fatalf("CreatePane: %v", err)
	}
	if pane.Index != 4 {
		t.Fatalf("post-recovery pane index = %d, want 4", pane.Index)
	}
}

func TestApplyUnknownVariantWarnsAndSkips(t *testing.T) {
	state := []graph.SessionSnapshot{{ID: "s1", Name: "alpha"}}
	next, w := Apply(state, wal.Record{Sequence: 9, Variant: "NotARealVariant"})
	if w == "" {
		t.Fatalf("expected a warning for an unknown variant")
	}
	if len(next) != 1 {
		t.Fatalf("expected state to pass through unchanged, got %+v", next)
	}
}

func TestApplyReferencingMissingPaneWarnsAndSkips(t *testing.T) {
	state := []graph.SessionSnapshot{{ID: "s1", Name: "alpha"}}
	next, w := Apply(state, wal.Record{
		Sequence: 9, Variant: wal.PaneResized,
		Payload: mustJSON(t, wal.PaneResizedPayload{PaneID: "ghost", Cols: 1, Rows: 1}),
	})
	if w == "" {
		t.Fatalf("expected a warning for a reference to a nonexistent pane")
	}
	if len(next) != 1 {
		t.Fatalf("expected state unchanged, got %+v", next)
	}
}

func TestReplayAllAppliesInOrderAndCollectsWarnings(t *testing.T) {
	records := []wal.Record{
		{Sequence: 1, Variant: wal.SessionCreated, Payload: mustJSON(t, wal.SessionCreatedPayload{SessionID: "s1", Name: "a"})},
		{Sequence: 2, Variant: "Bogus"},
		{Sequence: 3, Variant: wal.SessionRenamed, Payload: mustJSON(t, wal.SessionRenamedPayload{SessionID: "s1", NewName: "b"})},
	}
	state, warnings := ReplayAll(nil, records, nil)
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", warnings)
	}
	if len(state) != 1 || state[0].Name != "b" {
		t.Fatalf("expected session renamed to b, got %+v", state)
	}
}

func TestApplyPaneStateChangedDecodesNestedState(t *testing.T) {
	state := []graph.SessionSnapshot{{
		ID: "s1", Windows: []graph.WindowSnapshot{{
			ID: "w1", Panes: []graph.PaneSnapshot{{ID: "p1", State: graph.NormalState()}},
		}},
	}}
	sid := "xyz"
	newState := graph.PaneState{Kind: graph.PaneAgent, AgentType: "claude", AgentSessionID: &sid}
	state, w := Apply(state, wal.Record{
		Sequence: 1, Variant: wal.PaneStateChanged,
		Payload: mustJSON(t, wal.PaneStateChangedPayload{PaneID: "p1", State: mustJSON(t, newState)}),
	})
	if w != "" {
		t.Fatalf("unexpected warning: %s", w)
	}
	got := state[0].Windows[0].Panes[0].State
	if got.Kind != graph.PaneAgent || got.AgentType != "claude" || got.AgentSessionID == nil || *got.AgentSessionID != "xyz" {
		t.Fatalf("unexpected pane state: %+v", got)
	}
}
