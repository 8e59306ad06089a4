package handlers

import (
	"github.com/ccmux/ccmux/internal/graph"
	"github.com/ccmux/ccmux/internal/ptyio"
	"github.com/ccmux/ccmux/internal/recovery"
	"github.com/ccmux/ccmux/internal/wire"
)

// spawnConfig bundles a CreatePane/SplitPane/CreateLayout leaf's desired
// process into the shape spawnPane needs, independent of which request
// type produced it.
type spawnConfig struct {
	command string
	args    []string
	cwd     string
	agent   *wire.AgentOptions
}

// spawnPane starts cfg's process behind pane's PTY, seeding the
// environment from the owning session plus the well-known CCMUX_*
// variables. On success, pane's state is left Normal (or Agent, if
// cfg.agent is set) and tracked by the poller; on failure the pane is
// removed from the graph and the error returned.
func (d *Dispatcher) spawnPane(session *graph.Session, pane *graph.Pane, cfg spawnConfig) error {
	command := cfg.command
	if command == "" {
		command = ptyio.DefaultShell()
	}

	ptyCfg := ptyio.Config{
		Command: command,
		Args:    cfg.args,
		Dir:     cfg.cwd,
		Cols:    pane.Cols,
		Rows:    pane.Rows,
		Env:     standardPaneEnv(session, pane),
	}

	if d.deps.IsolationRoot != "" {
		if dir, err := recovery.EnsureIsolationDir(d.deps.IsolationRoot, pane.ID); err == nil {
			ptyCfg.Env = append(ptyCfg.Env, recovery.AgentConfigDirEnv+"="+dir)
		}
	}

	if err := d.deps.PTY.Spawn(pane.ID, ptyCfg); err != nil {
		_, _, _ = d.deps.Graph.RemovePane(pane.ID)
		return err
	}

	if cfg.agent != nil {
		state := graph.PaneState{
			Kind:      graph.PaneAgent,
			AgentType: cfg.agent.AgentType,
			Activity:  graph.ActivityIdle,
		}
		if cfg.agent.AgentSessionID != "" {
			state.AgentSessionID = &cfg.agent.AgentSessionID
		}
		if cfg.agent.Model != "" {
			state.Model = &cfg.agent.Model
		}
		_ = d.deps.Graph.SetPaneState(pane.ID, state)
	}
	return nil
}

func standardPaneEnv(session *graph.Session, pane *graph.Pane) []string {
	env := []string{
		"CCMUX_SESSION_ID=" + session.ID,
		"CCMUX_SESSION_NAME=" + session.Name,
		"CCMUX_WINDOW_ID=" + pane.WindowID,
		"CCMUX_PANE_ID=" + pane.ID,
	}
	for k, v := range session.Environment {
		env = append(env, k+"="+v)
	}
	return env
}
