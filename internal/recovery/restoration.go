package recovery

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ccmux/ccmux/internal/graph"
	"github.com/ccmux/ccmux/internal/ptyio"
)

// AgentConfigDirEnv is the environment variable injected into an
// AI-agent pane's restored process pointing at its private, per-pane
// isolation directory ("inject a config-dir environment
// variable").
const AgentConfigDirEnv = "CCMUX_AGENT_CONFIG_DIR"

// Spawner creates a PTY for a restored pane. Production code wires this
// to ptyio.Spawn; tests substitute a fake to assert on the constructed
// Config without touching a real PTY.
type Spawner func(cfg ptyio.Config) (*ptyio.Handle, error)

// Result records the outcome of restoring one pane.
type Result struct {
	PaneID  string
	Handle  *ptyio.Handle
	Skipped bool // true for panes whose state doesn't warrant a process
	Err     error
}

// Restore loads state into g (replacing its entire contents) and spawns a
// PTY for every pane whose state warrants one, applying the AI-agent
// resume recipe and isolation isolationRoot is the
// directory under which per-pane agent config directories are created.
// PTY-spawn failures are recorded in the returned []Result but never
// abort the pass: the pane simply remains in the graph without a PTY.
func Restore(g *graph.Graph, state State, isolationRoot string, spawn Spawner) []Result {
	g.LoadSnapshot(state.Sessions)

	var results []Result
	for _, s := range state.Sessions {
		for _, w := range s.Windows {
			for _, p := range w.Panes {
				if !p.State.HasPTY() {
					results = append(results, Result{PaneID: p.ID, Skipped: true})
					continue
				}
				cfg, err := buildConfig(s, p, isolationRoot)
				if err != nil {
					results = append(results, Result{PaneID: p.ID, Err: err})
					continue
				}
				handle, err := spawn(cfg)
				results = append(results, Result{PaneID: p.ID, Handle: handle, Err: err})
			}
		}
	}
	return results
}

// buildConfig constructs the PTY configuration for restoring pane p,
// including the standard environment context tuple, per-session
// environment, and (for agent panes) isolation + the resume recipe.
func buildConfig(session graph.SessionSnapshot, p graph.PaneSnapshot, isolationRoot string) (ptyio.Config, error) {
	cfg := ptyio.Config{
		Cols: p.Cols,
		Rows: p.Rows,
	}
	if p.Cwd != nil {
		if _, err := os.Stat(*p.Cwd); err == nil {
			cfg.Dir = *p.Cwd
		}
		// If the cwd no longer exists, fall back to the default working
		// directory (ptyio.Spawn's zero-value Dir) rather than failing
		// the restore outright.
	}

	cfg.Env = standardEnvironment(session, p)
	for k, v := range session.Environment {
		cfg.Env = append(cfg.Env, fmt.Sprintf("%s=%s", k, v))
	}

	command, args, err := resumeRecipe(p, isolationRoot, &cfg)
	if err != nil {
		return ptyio.Config{}, err
	}
	cfg.Command = command
	cfg.Args = args
	return cfg, nil
}

// resumeRecipe is the only content-aware part of restoration: an Agent
// pane whose agent_type is "claude" and whose
// agent_session_id is known resumes via `claude --resume <sid>` instead
// of respawning a plain shell. Everything else gets $SHELL.
func resumeRecipe(p graph.PaneSnapshot, isolationRoot string, cfg *ptyio.Config) (command string, args []string, err error) {
	if p.State.Kind != graph.PaneAgent {
		return ptyio.DefaultShell(), nil, nil
	}

	dir, err := EnsureIsolationDir(isolationRoot, p.ID)
	if err != nil {
		return "", nil, err
	}
	cfg.Env = append(cfg.Env, fmt.Sprintf("%s=%s", AgentConfigDirEnv, dir))

	if p.State.AgentType == "claude" && p.State.AgentSessionID != nil {
		return "claude", []string{"--resume", *p.State.AgentSessionID}, nil
	}
	return ptyio.DefaultShell(), nil, nil
}

// EnsureIsolationDir creates (if missing) and returns the per-pane agent
// config directory under root, shared by restoration and the sideband
// spawn pipeline so both paths inject
// CCMUX_AGENT_CONFIG_DIR consistently.
func EnsureIsolationDir(root, paneID string) (string, error) {
	dir := filepath.Join(root, paneID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create isolation dir for pane %s: %w", paneID, err)
	}
	return dir, nil
}

// RemoveIsolationDir deletes a pane's isolation directory, if any. A
// missing directory is not an error.
func RemoveIsolationDir(root, paneID string) error {
	if root == "" {
		return nil
	}
	return os.RemoveAll(filepath.Join(root, paneID))
}

// standardEnvironment returns the CCMUX_* context tuple every restored
// pane receives, regardless of agent type.
func standardEnvironment(session graph.SessionSnapshot, p graph.PaneSnapshot) []string {
	return []string{
		fmt.Sprintf("CCMUX_SESSION_ID=%s", session.ID),
		fmt.Sprintf("CCMUX_SESSION_NAME=%s", session.Name),
		fmt.Sprintf("CCMUX_WINDOW_ID=%s", p.WindowID),
		fmt.Sprintf("CCMUX_PANE_ID=%s", p.ID),
	}
}
