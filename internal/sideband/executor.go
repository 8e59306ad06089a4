package sideband

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/ccmux/ccmux/internal/graph"
	"github.com/ccmux/ccmux/internal/recovery"
	"github.com/ccmux/ccmux/internal/wal"
	"github.com/ccmux/ccmux/internal/wire"
)

// Executor dispatches parsed Commands against the object graph, the live
// PTY table, and the client registry. One Executor is shared by every
// pane poller; all graph/registry access it performs is
// already safe for concurrent use, so Executor itself holds no lock.
type Executor struct {
	graph         *graph.Graph
	pty           PTYPort
	broadcast     Broadcaster
	audit         AuditSink
	wal           *wal.WAL
	log           *slog.Logger
	isolationRoot string
	maxPanes      atomic.Int64
}

// Options configures an Executor.
type Options struct {
	IsolationRoot      string
	MaxPanesPerSession int
	Audit              AuditSink
	WAL                *wal.WAL // nil disables WAL persistence (e.g. in tests)
	Log                *slog.Logger
}

// NewExecutor builds an Executor. log may be nil.
func NewExecutor(g *graph.Graph, pty PTYPort, broadcast Broadcaster, opts Options) *Executor {
	e := &Executor{
		graph:         g,
		pty:           pty,
		broadcast:     broadcast,
		audit:         opts.Audit,
		wal:           opts.WAL,
		log:           opts.Log,
		isolationRoot: opts.IsolationRoot,
	}
	e.maxPanes.Store(int64(opts.MaxPanesPerSession))
	return e
}

// SetMaxPanesPerSession updates the spawn limit at runtime (config
// live-reload). Zero or negative falls back to the default.
func (e *Executor) SetMaxPanesPerSession(n int) {
	e.maxPanes.Store(int64(n))
}

// Dispatch executes one command extracted from sourcePaneID's output
// stream. originatingClientID is passed through to handleScroll, which
// does not use it (the scroll directive is broadcast to the pane's
// session); callers pass "" when there is none.
// Dispatch never returns an error: a malformed or failing command is
// logged and otherwise ignored, matching the "a sideband
// command failure never interrupts the PTY byte stream" requirement.
func (e *Executor) Dispatch(sourcePaneID, originatingClientID string, cmd Command) {
	if e.audit != nil {
		sessionID := ""
		if session, _, _, err := e.graph.FindPane(sourcePaneID); err == nil {
			sessionID = session.ID
		}
		e.audit.RecordSideband(sourcePaneID, sessionID, cmd.Name, formatAttrs(cmd.Attrs), len(cmd.Body))
	}
	switch cmd.Name {
	case CmdSpawn:
		e.handleSpawn(sourcePaneID, cmd)
	case CmdFocus:
		e.handleFocus(sourcePaneID, cmd)
	case CmdInput:
		e.handleInput(sourcePaneID, cmd)
	case CmdScroll:
		e.handleScroll(sourcePaneID, originatingClientID, cmd)
	case CmdNotify:
		e.handleNotify(sourcePaneID, cmd)
	case CmdMail:
		e.handleMail(sourcePaneID, cmd)
	case CmdControl:
		e.handleControl(sourcePaneID, cmd)
	case CmdCapabilities:
		e.handleCapabilities(sourcePaneID, cmd)
	default:
		e.warnf("dispatch: unreachable unknown command %q", cmd.Name)
	}
}

func (e *Executor) warnf(format string, args ...any) {
	if e.log != nil {
		e.log.Warn("sideband executor: " + fmt.Sprintf(format, args...))
	}
}

// appendWAL persists a topology change made from the sideband path.
// Sideband commands have no requesting client to fail, so an append
// error is logged rather than surfaced; the next checkpoint still
// captures the state.
func (e *Executor) appendWAL(variant wal.Variant, payload any) {
	if e.wal == nil {
		return
	}
	if _, err := e.wal.Append(variant, payload); err != nil {
		e.warnf("wal append %s failed: %v", variant, err)
	}
}

// formatAttrs renders an attribute map as `k="v"` pairs in key order,
// matching the on-wire attribute syntax so audit rows read like the
// frame that produced them.
func formatAttrs(attrs map[string]string) string {
	if len(attrs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, attrs[k]))
	}
	return strings.Join(parts, " ")
}

// resolvePaneRef implements the "Pane references" rule:
// `"active"` or omitted resolves to sourcePaneID; an integer resolves to
// a sibling pane by index within sourcePaneID's own window; anything
// else is tried as a UUID, resolved globally.
func (e *Executor) resolvePaneRef(sourcePaneID, ref string) (string, error) {
	if ref == "" || ref == "active" {
		return sourcePaneID, nil
	}
	if index, err := strconv.Atoi(ref); err == nil {
		_, window, _, ferr := e.graph.FindPane(sourcePaneID)
		if ferr != nil {
			return "", ferr
		}
		for _, p := range window.Panes {
			if int(p.Index) == index {
				return p.ID, nil
			}
		}
		return "", fmt.Errorf("no pane at index %d in window %s", index, window.ID)
	}
	if _, _, _, err := e.graph.FindPane(ref); err != nil {
		return "", err
	}
	return ref, nil
}

// handleFocus updates the global active-window/active-pane references:
// `focus pane="..."`, resolved per resolvePaneRef.
func (e *Executor) handleFocus(sourcePaneID string, cmd Command) {
	target, err := e.resolvePaneRef(sourcePaneID, cmd.Attrs["pane"])
	if err != nil {
		e.warnf("focus: %v", err)
		return
	}
	_, window, _, err := e.graph.FindPane(target)
	if err != nil {
		e.warnf("focus: %v", err)
		return
	}
	if err := e.graph.SetActiveWindow(window.SessionID, window.ID); err != nil {
		e.warnf("focus: %v", err)
		return
	}
	e.appendWAL(wal.ActiveWindowChanged, wal.ActiveWindowChangedPayload{SessionID: window.SessionID, WindowID: window.ID})
	if err := e.graph.SetActivePane(window.ID, target); err != nil {
		e.warnf("focus: %v", err)
		return
	}
	e.appendWAL(wal.ActivePaneChanged, wal.ActivePaneChangedPayload{WindowID: window.ID, PaneID: target})
}

// handleInput writes cmd.Body to another pane's PTY (`input pane="..."`,
// body = raw bytes to deliver), used by an agent driving a sibling pane
// without owning it directly. Mirror panes are display-only and refuse
// the write.
func (e *Executor) handleInput(sourcePaneID string, cmd Command) {
	target, err := e.resolvePaneRef(sourcePaneID, cmd.Attrs["pane"])
	if err != nil {
		e.warnf("input: %v", err)
		return
	}
	_, _, pane, err := e.graph.FindPane(target)
	if err != nil {
		e.warnf("input: %v", err)
		return
	}
	if pane.IsMirror {
		e.warnf("input: refusing write to mirror pane %s", target)
		return
	}
	if _, err := e.pty.Write(target, cmd.Body); err != nil {
		e.warnf("input: write to pane %s failed: %v", target, err)
	}
}

// handleScroll broadcasts a ScrollViewport directive to every client
// attached to the source pane's session. originatingClientID
// is accepted for symmetry with the other handlers but unused: a
// sideband command is sourced from PTY bytes, not a specific client
// request, so there is no single client to single out.
func (e *Executor) handleScroll(sourcePaneID, originatingClientID string, cmd Command) {
	target, err := e.resolvePaneRef(sourcePaneID, cmd.Attrs["pane"])
	if err != nil {
		e.warnf("scroll: %v", err)
		return
	}
	session, _, _, err := e.graph.FindPane(target)
	if err != nil {
		e.warnf("scroll: %v", err)
		return
	}
	lines, _ := strconv.Atoi(cmd.Attrs["lines"])
	e.broadcast.BroadcastToSession(session.ID, wire.ScrollViewportPush{PaneID: target, Lines: lines})
}

// handleNotify broadcasts a Notification to every client attached to the
// source pane's session.
func (e *Executor) handleNotify(sourcePaneID string, cmd Command) {
	session, _, _, err := e.graph.FindPane(sourcePaneID)
	if err != nil {
		e.warnf("notify: %v", err)
		return
	}
	level := cmd.Attrs["level"]
	switch level {
	case "info", "warning", "error":
	default:
		level = "info"
	}
	e.broadcast.BroadcastToSession(session.ID, wire.NotificationPush{
		SessionID: session.ID,
		Level:     level,
		Title:     cmd.Attrs["title"],
		Text:      string(cmd.Body),
	})
}

func (e *Executor) notify(sessionID, text string) {
	e.broadcast.BroadcastToSession(sessionID, wire.NotificationPush{SessionID: sessionID, Level: "info", Text: text})
}

// handleMail broadcasts an inter-agent Mail message to the source pane's
// session. Distinct from SendOrchestration's polled inbox: this is a
// live push, for agents that want immediate delivery instead of waiting
// on PollMessages.
func (e *Executor) handleMail(sourcePaneID string, cmd Command) {
	session, _, pane, err := e.graph.FindPane(sourcePaneID)
	if err != nil {
		e.warnf("mail: %v", err)
		return
	}
	e.broadcast.BroadcastToSession(session.ID, wire.MailPush{
		SessionID: session.ID,
		From:      pane.ID,
		Summary:   cmd.Attrs["summary"],
		Priority:  cmd.Attrs["priority"],
		Body:      cmd.Body,
	})
}

// handleControl applies a pane control action to the
// referenced pane (default: the source pane) and, for resize, forwards it
// to the live PTY so the child process's ioctl(TIOCSWINSZ) stays in sync
// with the graph's record.
func (e *Executor) handleControl(sourcePaneID string, cmd Command) {
	target, err := e.resolvePaneRef(sourcePaneID, cmd.Attrs["pane"])
	if err != nil {
		e.warnf("control: %v", err)
		return
	}
	action := cmd.Attrs["action"]
	switch action {
	case "resize", "":
		cols, _ := strconv.Atoi(cmd.Attrs["cols"])
		rows, _ := strconv.Atoi(cmd.Attrs["rows"])
		if cols <= 0 || rows <= 0 {
			e.warnf("control: resize missing cols/rows")
			return
		}
		if err := e.graph.ResizePane(target, uint16(cols), uint16(rows)); err != nil {
			e.warnf("control: %v", err)
			return
		}
		e.appendWAL(wal.PaneResized, wal.PaneResizedPayload{PaneID: target, Cols: uint16(cols), Rows: uint16(rows)})
		if err := e.pty.Resize(target, uint16(cols), uint16(rows)); err != nil {
			e.warnf("control: pty resize failed: %v", err)
		}
	case "pin", "unpin":
		// Pinning is a client-side presentation concern (// layout/keybinding state lives in the TUI client); the daemon
		// only needs to record the flag so a reattaching client can
		// restore it.
		if err := e.graph.MergePaneMetadata(target, map[string]string{"pinned": strconv.FormatBool(action == "pin")}); err != nil {
			e.warnf("control: %v", err)
		}
	case "close":
		sessionID, _, err := e.graph.RemovePane(target)
		if err != nil {
			e.warnf("control: close: %v", err)
			return
		}
		e.appendWAL(wal.PaneDestroyed, wal.PaneDestroyedPayload{PaneID: target})
		_ = e.pty.Kill(target)
		if e.isolationRoot != "" {
			_ = recovery.RemoveIsolationDir(e.isolationRoot, target)
		}
		e.broadcast.BroadcastToSession(sessionID, wire.PaneClosedPush{SessionID: sessionID, PaneID: target})
	default:
		e.warnf("control: unknown action %q", action)
	}
}

// handleCapabilities merges the command's JSON body into the pane's
// metadata map, using gjson to walk an arbitrary flat object
// without requiring the agent to match a fixed schema.
func (e *Executor) handleCapabilities(sourcePaneID string, cmd Command) {
	kv := flattenJSONObject(cmd.Body)
	if len(kv) == 0 {
		return
	}
	if err := e.graph.MergePaneMetadata(sourcePaneID, kv); err != nil {
		e.warnf("capabilities: %v", err)
	}
}
