package handlers

import (
	"encoding/json"

	"github.com/ccmux/ccmux/internal/errs"
	"github.com/ccmux/ccmux/internal/graph"
	"github.com/ccmux/ccmux/internal/registry"
	"github.com/ccmux/ccmux/internal/wal"
	"github.com/ccmux/ccmux/internal/wire"
)

func (d *Dispatcher) handleCreatePane(cc clientCtx, msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.CreatePaneReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}
	sessionID, pane, err := d.deps.Graph.CreatePane(req.WindowID)
	if err != nil {
		return "", nil, errs.FromGraphError(err)
	}
	if werr := d.appendWAL(wal.PaneCreated, wal.PaneCreatedPayload{WindowID: req.WindowID, PaneID: pane.ID, Index: pane.Index, Cols: pane.Cols, Rows: pane.Rows, Cwd: req.Cwd}); werr != nil {
		return "", nil, werr
	}

	session, serr := d.deps.Graph.GetSession(sessionID)
	if serr != nil {
		return "", nil, errs.FromGraphError(serr)
	}
	if err := d.spawnPane(session, pane, spawnConfig{command: req.Command, args: req.Args, cwd: req.Cwd, agent: req.Agent}); err != nil {
		return "", nil, errs.New(errs.SpawnFailed, "pane failed to spawn: "+err.Error())
	}

	_, _, refreshedPane, ferr := d.deps.Graph.FindPane(pane.ID)
	if ferr != nil {
		return "", nil, errs.FromGraphError(ferr)
	}
	if req.Agent != nil {
		// The pane replays as Agent (with its resume id), not Normal.
		if raw, merr := json.Marshal(refreshedPane.State); merr == nil {
			if werr := d.appendWAL(wal.PaneStateChanged, wal.PaneStateChangedPayload{PaneID: pane.ID, State: raw}); werr != nil {
				return "", nil, werr
			}
		}
	}
	paneOut := wire.FromPane(refreshedPane)
	d.deps.Registry.BroadcastToSessionExcept(sessionID, cc.clientID, wire.PaneCreatedPush{SessionID: sessionID, Pane: paneOut, ShouldFocus: true})
	return wire.TypePaneInfo, wire.PaneInfoResp{SessionID: sessionID, Pane: paneOut}, nil
}

func (d *Dispatcher) handleSplitPane(cc clientCtx, msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.SplitPaneReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}
	if werr := d.checkArbiter(cc, resourceForPane(req.PaneID), "layout"); werr != nil {
		return "", nil, werr
	}

	direction := graph.SplitVertical
	if req.Direction == string(graph.SplitHorizontal) {
		direction = graph.SplitHorizontal
	}
	var cwd *string
	if req.Cwd != "" {
		cwd = &req.Cwd
	}

	sessionID, windowID, pane, err := d.deps.Graph.SplitPane(req.PaneID, direction, cwd)
	if err != nil {
		return "", nil, errs.FromGraphError(err)
	}
	if werr := d.appendWAL(wal.PaneCreated, wal.PaneCreatedPayload{WindowID: windowID, PaneID: pane.ID, Index: pane.Index, SourcePane: req.PaneID, Cols: pane.Cols, Rows: pane.Rows, Cwd: req.Cwd}); werr != nil {
		return "", nil, werr
	}

	session, serr := d.deps.Graph.GetSession(sessionID)
	if serr != nil {
		return "", nil, errs.FromGraphError(serr)
	}
	if err := d.spawnPane(session, pane, spawnConfig{cwd: req.Cwd}); err != nil {
		return "", nil, errs.New(errs.SpawnFailed, "split pane failed to spawn: "+err.Error())
	}

	_, _, refreshedPane, ferr := d.deps.Graph.FindPane(pane.ID)
	if ferr != nil {
		return "", nil, errs.FromGraphError(ferr)
	}
	paneOut := wire.FromPane(refreshedPane)
	d.deps.Registry.BroadcastToSessionExcept(sessionID, cc.clientID, wire.PaneCreatedPush{SessionID: sessionID, Pane: paneOut, Direction: req.Direction, ShouldFocus: true})
	return wire.TypePaneInfo, wire.PaneInfoResp{SessionID: sessionID, Pane: paneOut}, nil
}

func (d *Dispatcher) handleClosePane(cc clientCtx, msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.ClosePaneReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}
	if werr := d.checkArbiter(cc, resourceForPane(req.PaneID), "layout"); werr != nil {
		return "", nil, werr
	}

	sessionID, _, err := d.deps.Graph.RemovePane(req.PaneID)
	if err != nil {
		return "", nil, errs.FromGraphError(err)
	}
	if werr := d.appendWAL(wal.PaneDestroyed, wal.PaneDestroyedPayload{PaneID: req.PaneID}); werr != nil {
		return "", nil, werr
	}

	_ = d.deps.PTY.Kill(req.PaneID)
	if d.deps.IsolationRoot != "" {
		_ = removeIsolationDir(d.deps.IsolationRoot, req.PaneID)
	}

	d.deps.Registry.BroadcastToSessionExcept(sessionID, cc.clientID, wire.PaneClosedPush{SessionID: sessionID, PaneID: req.PaneID})
	return wire.TypeOK, wire.OKResp{}, nil
}

func (d *Dispatcher) handleResizePane(cc clientCtx, msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.ResizePaneReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}
	if err := d.deps.Graph.ResizePane(req.PaneID, req.Cols, req.Rows); err != nil {
		return "", nil, errs.FromGraphError(err)
	}
	_ = d.deps.PTY.Resize(req.PaneID, req.Cols, req.Rows)
	if werr := d.appendWAL(wal.PaneResized, wal.PaneResizedPayload{PaneID: req.PaneID, Cols: req.Cols, Rows: req.Rows}); werr != nil {
		return "", nil, werr
	}
	return wire.TypeOK, wire.OKResp{}, nil
}

// handleFocusPane updates only the requesting client's own Focus tuple
// ("updating focus never implicitly changes the graph's
// active_* fields"). The graph-global active window/pane is only ever
// changed by SelectWindow or by a sideband `focus` command issued from
// inside a pane, never by a plain client-side FocusPane request.
func (d *Dispatcher) handleFocusPane(cc clientCtx, msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.FocusPaneReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}
	session, window, _, err := d.deps.Graph.FindPane(req.PaneID)
	if err != nil {
		return "", nil, errs.FromGraphError(err)
	}
	d.deps.Registry.SetFocus(cc.clientID, registry.Focus{SessionID: session.ID, WindowID: window.ID, PaneID: req.PaneID})
	return wire.TypeOK, wire.OKResp{}, nil
}

// handleRenamePane has no WAL entry: wal.Variant has no pane-name variant
// (only PaneTitleChanged/PaneCwdChanged), and a pane's user-facing name is
// reconstructible from nothing on recovery anyway — it is re-entered by
// whoever cares, the same as session auto-names.
func (d *Dispatcher) handleRenamePane(msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.RenamePaneReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}
	if err := d.deps.Graph.SetPaneName(req.PaneID, req.Name); err != nil {
		return "", nil, errs.FromGraphError(err)
	}
	return wire.TypeOK, wire.OKResp{}, nil
}

func (d *Dispatcher) handleSendInput(cc clientCtx, msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.SendInputReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}
	if _, _, pane, err := d.deps.Graph.FindPane(req.PaneID); err == nil && pane.IsMirror {
		return "", nil, errs.New(errs.InvalidOperation, "pane "+req.PaneID+" is a mirror pane and accepts no input")
	}
	if werr := d.checkArbiter(cc, resourceForPane(req.PaneID), "input"); werr != nil {
		return "", nil, werr
	}

	data := req.Data
	if req.Key != "" {
		data = append(data, translateKeySymbol(req.Key)...)
	}
	if _, err := d.deps.PTY.Write(req.PaneID, data); err != nil {
		return "", nil, errs.New(errs.InvalidOperation, "write to pane failed: "+err.Error())
	}
	return wire.TypeOK, wire.OKResp{}, nil
}

func (d *Dispatcher) handleReadPane(msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.ReadPaneReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}
	data, err := d.deps.Graph.ReadScrollback(req.PaneID)
	if err != nil {
		return "", nil, errs.FromGraphError(err)
	}
	if req.Lines > 0 {
		data = lastLines(data, req.Lines)
	}
	if req.StripAnsi {
		data = stripAnsi(data)
	}
	return wire.TypeScrollbackLines, wire.ScrollbackLinesResp{PaneID: req.PaneID, Data: data}, nil
}

func (d *Dispatcher) handleGetPaneStatus(msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.GetPaneStatusReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}
	_, _, pane, err := d.deps.Graph.FindPane(req.PaneID)
	if err != nil {
		return "", nil, errs.FromGraphError(err)
	}
	return wire.TypePaneStatus, wire.PaneStatusResp{Pane: wire.FromPane(pane)}, nil
}

func (d *Dispatcher) handleListAllPanes(msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.ListAllPanesReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}
	panes, err := d.deps.Graph.ListAllPanes(req.SessionID)
	if err != nil {
		return "", nil, errs.FromGraphError(err)
	}
	out := make([]wire.Pane, 0, len(panes))
	for _, p := range panes {
		out = append(out, wire.FromPane(p))
	}
	return wire.TypePaneList, wire.PaneListResp{Panes: out}, nil
}

// lastLines returns the last n newline-delimited lines of data, or all of
// data if it contains fewer than n.
func lastLines(data []byte, n int) []byte {
	if n <= 0 || len(data) == 0 {
		return data
	}
	count := 0
	for i := len(data) - 1; i >= 0; i-- {
		if data[i] == '\n' {
			count++
			if count > n {
				return data[i+1:]
			}
		}
	}
	return data
}

// stripAnsi removes CSI/OSC escape sequences from data, a display
// convenience for ReadPane's strip_ansi option. It does
// not attempt to be a complete terminal-emulator state machine: it only
// recognizes the ESC-prefixed sequences a real shell actually emits.
func stripAnsi(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != 0x1b {
			out = append(out, data[i])
			continue
		}
		if i+1 >= len(data) {
			break
		}
		switch data[i+1] {
		case '[':
			j := i + 2
			for j < len(data) && !(data[j] >= 0x40 && data[j] <= 0x7e) {
				j++
			}
			i = j
		case ']':
			j := i + 2
			for j < len(data) && data[j] != 0x07 {
				if data[j] == 0x1b && j+1 < len(data) && data[j+1] == '\\' {
					j++
					break
				}
				j++
			}
			i = j
		default:
			i++
		}
	}
	return out
}
