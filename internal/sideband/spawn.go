package sideband

import (
	"strconv"
	"time"

	"github.com/ccmux/ccmux/internal/graph"
	"github.com/ccmux/ccmux/internal/ptyio"
	"github.com/ccmux/ccmux/internal/recovery"
	"github.com/ccmux/ccmux/internal/wal"
	"github.com/ccmux/ccmux/internal/wire"
	"github.com/tidwall/gjson"
)

// DefaultMaxPanesPerSession is the spawn-limit default,
// overridable via config.sideband.max_panes_per_session.
const DefaultMaxPanesPerSession = 50

// handleSpawn implements the `spawn` command: split a new pane off
// sourcePaneID, build its PTY config from the `command` and `config`
// attributes, spawn it, and broadcast PaneCreated. A spawn refused by the
// pane limit is reported as a Notification broadcast to the session; an
// unparseable `config` is ignored, and split or PTY spawn failures are
// only logged. None of these aborts the caller's read loop (a malformed
// spawn never tears down the pane that issued it).
func (e *Executor) handleSpawn(sourcePaneID string, cmd Command) {
	session, _, _, err := e.graph.FindPane(sourcePaneID)
	if err != nil {
		e.warnf("spawn: source pane %s not found: %v", sourcePaneID, err)
		return
	}

	limit := int(e.maxPanes.Load())
	if limit <= 0 {
		limit = DefaultMaxPanesPerSession
	}
	count, err := e.graph.PaneCountInSession(session.ID)
	if err != nil {
		e.warnf("spawn: %v", err)
		return
	}
	if count >= limit {
		e.notify(session.ID, "spawn rejected: session at max_panes_per_session limit ("+strconv.Itoa(limit)+")")
		return
	}

	// "h" is the documented shorthand for horizontal.
	direction := graph.SplitDirection(cmd.Attrs["direction"])
	if direction == "" || direction == "h" {
		direction = graph.SplitHorizontal
	}
	var cwd *string
	if v, ok := cmd.Attrs["cwd"]; ok && v != "" {
		cwd = &v
	}

	sessID, windowID, pane, err := e.graph.SplitPane(sourcePaneID, direction, cwd)
	if err != nil {
		e.warnf("spawn: split failed: %v", err)
		return
	}

	spawnCfg := parseSpawnConfig(cmd.Attrs["config"])
	command, args := splitCommand(cmd.Attrs["command"])
	ptyCfg := ptyio.Config{
		Command: command,
		Args:    args,
		Cols:    pane.Cols,
		Rows:    pane.Rows,
		Dir:     deref(cwd, ""),
	}
	if ptyCfg.Command == "" {
		ptyCfg.Command = ptyio.DefaultShell()
	}
	ptyCfg.Env = mergeEnv(standardEnv(session, pane), spawnCfg.env)

	if e.isolationRoot != "" {
		dir, derr := recovery.EnsureIsolationDir(e.isolationRoot, pane.ID)
		if derr == nil {
			ptyCfg.Env = append(ptyCfg.Env, recovery.AgentConfigDirEnv+"="+dir)
		}
	}

	if err := e.pty.Spawn(pane.ID, ptyCfg); err != nil {
		// Explicit splits are strict: roll back by destroying the empty
		// pane rather than leaving a PTY-less pane behind.
		_, _, _ = e.graph.RemovePane(pane.ID)
		e.warnf("spawn: pty spawn failed for pane %s: %v", pane.ID, err)
		return
	}

	e.appendWAL(wal.PaneCreated, wal.PaneCreatedPayload{
		WindowID:   windowID,
		PaneID:     pane.ID,
		Index:      pane.Index,
		SourcePane: sourcePaneID,
		Cols:       pane.Cols,
		Rows:       pane.Rows,
		Cwd:        deref(cwd, ""),
	})

	e.broadcast.BroadcastToSession(sessID, wire.PaneCreatedPush{
		SessionID: sessID,
		Pane:      wire.FromPane(pane),
		Direction: string(direction),
	})

	if spawnCfg.timeoutSecs > 0 {
		go e.killAfter(sessID, pane.ID, time.Duration(spawnCfg.timeoutSecs)*time.Second)
	}
}

// killAfter implements the `spawn` command's optional timeout_secs: kill
// the PTY, remove the pane and its isolation directory, and broadcast
// PaneClosed.
func (e *Executor) killAfter(sessionID, paneID string, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	<-t.C

	_ = e.pty.Kill(paneID)
	_, _, _ = e.graph.RemovePane(paneID)
	e.appendWAL(wal.PaneDestroyed, wal.PaneDestroyedPayload{PaneID: paneID})
	if e.isolationRoot != "" {
		_ = recovery.RemoveIsolationDir(e.isolationRoot, paneID)
	}
	e.broadcast.BroadcastToSession(sessionID, wire.PaneClosedPush{SessionID: sessionID, PaneID: paneID})
}

type spawnConfig struct {
	env         map[string]string
	timeoutSecs int
}

// parseSpawnConfig reads the `spawn` command's optional `config` attribute
// value ({env:{K:V}, timeout_secs?, sandbox?}) with tidwall/gjson, the
// library already used across this repo's JSON-blob parsing, in place
// of encoding/json+structs for payloads whose shape is agent-supplied
// and only partially trusted.
func parseSpawnConfig(raw string) spawnConfig {
	var out spawnConfig
	if raw == "" || !gjson.Valid(raw) {
		return out
	}
	root := gjson.Parse(raw)
	if env := root.Get("env"); env.Exists() {
		out.env = make(map[string]string)
		env.ForEach(func(k, v gjson.Result) bool {
			out.env[k.String()] = v.String()
			return true
		})
	}
	out.timeoutSecs = int(root.Get("timeout_secs").Int())
	return out
}

// splitCommand parses the `spawn` command's `command` attribute
// (whitespace-separated argv[0] + args) into a PTY command and
// argument list.
func splitCommand(raw string) (command string, args []string) {
	fields := tokenizeHeader([]byte(raw))
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

func standardEnv(session *graph.Session, pane *graph.Pane) []string {
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

func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	out := append([]string(nil), base...)
	for k, v := range overrides {
		out = append(out, k+"="+v)
	}
	return out
}

func deref(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}
