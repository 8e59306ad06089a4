package recovery

import (
	"testing"

	"github.com/ccmux/ccmux/internal/graph"
	"github.com/ccmux/ccmux/internal/ptyio"
)

func TestRestoreSkipsExitedPanes(t *testing.T) {
	g := graph.New(nil)
	code := 0
	state := State{Sessions: []graph.SessionSnapshot{{
		ID: "s1", Name: "alpha",
		Windows: []graph.WindowSnapshot{{ID: "w1", Panes: []graph.PaneSnapshot{
			{ID: "p1", WindowID: "w1", State: graph.ExitedState(&code)},
		}}},
	}}}

	var spawned int
	results := Restore(g, state, t.TempDir(), func(cfg ptyio.Config) (*ptyio.Handle, error) {
		spawned++
		return nil, nil
	})

	if spawned != 0 {
		t.Fatalf("expected no spawn for an exited pane, got %d", spawned)
	}
	if len(results) != 1 || !results[0].Skipped {
		t.Fatalf("expected the exited pane to be reported as skipped, got %+v", results)
	}
}

func TestRestoreClaimsAgentResumeRecipe(t *testing.T) {
	g := graph.New(nil)
	sid := "abc-123"
	state := State{Sessions: []graph.SessionSnapshot{{
		ID: "s1", Name: "alpha",
		Windows: []graph.WindowSnapshot{{ID: "w1", Panes: []graph.PaneSnapshot{
			{ID: "p1", WindowID: "w1", Cols: 80, Rows: 24, State: graph.PaneState{
				Kind: graph.PaneAgent, AgentType: "claude", AgentSessionID: &sid,
			}},
		}}},
	}}}

	var gotCfg ptyio.Config
	_ = Restore(g, state, t.TempDir(), func(cfg ptyio.Config) (*ptyio.Handle, error) {
		gotCfg = cfg
		return nil, nil
	})

	if gotCfg.Command != "claude" {
		t.Fatalf("expected resume command 'claude', got %q", gotCfg.Command)
	}
	if len(gotCfg.Args) != 2 || gotCfg.Args[0] != "--resume" || gotCfg.Args[1] != sid {
		t.Fatalf("expected --resume %s, got %v", sid, gotCfg.Args)
	}
	foundEnv := false
	for _, e := range gotCfg.Env {
		if e == "CCMUX_PANE_ID=p1" {
			foundEnv = true
		}
	}
	if !foundEnv {
		t.Fatalf("expected standard env tuple to include CCMUX_PANE_ID, got %v", gotCfg.Env)
	}
}

func TestRestoreSpawnFailureIsRecordedNotFatal(t *testing.T) {
	g := graph.New(nil)
	state := State{Sessions: []graph.SessionSnapshot{{
		ID: "s1", Name: "alpha",
		Windows: []graph.WindowSnapshot{{ID: "w1", Panes: []graph.PaneSnapshot{
			{ID: "p1", WindowID: "w1", Cols: 80, Rows: 24, State: graph.NormalState()},
			{ID: "p2", WindowID: "w1", Cols: 80, Rows: 24, State: graph.NormalState()},
		}}},
	}}}

	results := Restore(g, state, t.TempDir(), func(cfg ptyio.Config) (*ptyio.Handle, error) {
		if true {
			return nil, errSpawnBoom
		}
		return nil, nil
	})

	if len(results) != 2 {
		t.Fatalf("expected both panes reported, got %d", len(results))
	}
	for _, r := range results {
		if r.Err == nil {
			t.Fatalf("expected spawn error recorded for pane %s", r.PaneID)
		}
	}

	// The graph must still contain both panes even though neither PTY spawned.
	panes, err := g.ListAllPanes("s1")
	if err != nil || len(panes) != 2 {
		t.Fatalf("expected graph to retain both panes after spawn failure, got %d (err=%v)", len(panes), err)
	}
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

const errSpawnBoom = fakeErr("boom")
