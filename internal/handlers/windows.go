package handlers

import (
	"github.com/ccmux/ccmux/internal/errs"
	"github.com/ccmux/ccmux/internal/wal"
	"github.com/ccmux/ccmux/internal/wire"
)

// handleCreateWindow mirrors CreateSession's bootstrap shape: a window
// never exists without at least one pane, so this creates the window,
// then its first pane, then spawns a shell into it, tolerating a spawn
// failure (the window still exists, just without a live PTY in its
// only pane).
func (d *Dispatcher) handleCreateWindow(cc clientCtx, msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.CreateWindowReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}
	window, err := d.deps.Graph.CreateWindow(req.SessionID, req.Name)
	if err != nil {
		return "", nil, errs.FromGraphError(err)
	}
	if werr := d.appendWAL(wal.WindowCreated, wal.WindowCreatedPayload{SessionID: req.SessionID, WindowID: window.ID, Index: window.Index, Name: window.Name}); werr != nil {
		return "", nil, werr
	}

	sessionID, pane, perr := d.deps.Graph.CreatePane(window.ID)
	if perr != nil {
		return "", nil, errs.FromGraphError(perr)
	}
	if werr := d.appendWAL(wal.PaneCreated, wal.PaneCreatedPayload{WindowID: window.ID, PaneID: pane.ID, Index: pane.Index, Cols: pane.Cols, Rows: pane.Rows}); werr != nil {
		return "", nil, werr
	}

	session, serr := d.deps.Graph.GetSession(sessionID)
	if serr != nil {
		return "", nil, errs.FromGraphError(serr)
	}
	if err := d.spawnPane(session, pane, spawnConfig{}); err != nil {
		d.warnf("window bootstrap pane failed to spawn: %v", err)
	}

	_, refreshedWindow, _, ferr := d.deps.Graph.FindPane(pane.ID)
	if ferr != nil {
		return "", nil, errs.FromGraphError(ferr)
	}
	windowOut := wire.FromWindow(refreshedWindow)
	d.deps.Registry.BroadcastToSessionExcept(sessionID, cc.clientID, wire.WindowCreatedPush{SessionID: sessionID, Window: windowOut})
	return wire.TypeWindowInfo, wire.WindowInfoResp{Window: windowOut}, nil
}

func (d *Dispatcher) handleRenameWindow(cc clientCtx, msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.RenameWindowReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}
	if _, err := d.deps.Graph.RenameWindow(req.WindowID, req.NewName); err != nil {
		return "", nil, errs.FromGraphError(err)
	}
	if werr := d.appendWAL(wal.WindowRenamed, wal.WindowRenamedPayload{WindowID: req.WindowID, NewName: req.NewName}); werr != nil {
		return "", nil, werr
	}
	d.deps.Registry.BroadcastToAllExcept(cc.clientID, wire.WindowRenamedPush{WindowID: req.WindowID, NewName: req.NewName})
	return wire.TypeOK, wire.OKResp{}, nil
}

func (d *Dispatcher) handleSelectWindow(cc clientCtx, msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.SelectWindowReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}
	if werr := d.checkArbiter(cc, resourceForSession(req.SessionID), "layout"); werr != nil {
		return "", nil, werr
	}
	if err := d.deps.Graph.SetActiveWindow(req.SessionID, req.WindowID); err != nil {
		return "", nil, errs.FromGraphError(err)
	}
	if werr := d.appendWAL(wal.ActiveWindowChanged, wal.ActiveWindowChangedPayload{SessionID: req.SessionID, WindowID: req.WindowID}); werr != nil {
		return "", nil, werr
	}
	return wire.TypeOK, wire.OKResp{}, nil
}

func (d *Dispatcher) handleListWindows(msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.ListWindowsReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}
	windows, err := d.deps.Graph.ListWindows(req.SessionID)
	if err != nil {
		return "", nil, errs.FromGraphError(err)
	}
	out := make([]wire.Window, 0, len(windows))
	for _, w := range windows {
		out = append(out, wire.FromWindow(w))
	}
	return wire.TypeWindowList, wire.WindowListResp{Windows: out}, nil
}
