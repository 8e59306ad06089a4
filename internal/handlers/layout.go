package handlers

import (
	"github.com/ccmux/ccmux/internal/errs"
	"github.com/ccmux/ccmux/internal/graph"
	"github.com/ccmux/ccmux/internal/wal"
	"github.com/ccmux/ccmux/internal/wire"
)

// handleCreateLayout materializes a declarative split tree in one new
// window. The tree is built
// depth-first, mirroring graph.splitLayout's own recursion: the window's
// bootstrap pane stands in for the tree's leftmost leaf, and every split
// node carves its right subtree off into a freshly split pane before
// recursing into both children.
func (d *Dispatcher) handleCreateLayout(cc clientCtx, msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.CreateLayoutReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}

	window, err := d.deps.Graph.CreateWindow(req.SessionID, req.WindowName)
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

	if werr := d.buildLayoutNode(session, window.ID, pane, req.Root); werr != nil {
		return "", nil, werr
	}

	_, refreshedWindow, _, ferr := d.deps.Graph.FindPane(pane.ID)
	if ferr != nil {
		return "", nil, errs.FromGraphError(ferr)
	}
	windowOut := wire.FromWindow(refreshedWindow)
	d.deps.Registry.BroadcastToSessionExcept(sessionID, cc.clientID, wire.WindowCreatedPush{SessionID: sessionID, Window: windowOut})
	return wire.TypeWindowInfo, wire.WindowInfoResp{Window: windowOut}, nil
}

func (d *Dispatcher) buildLayoutNode(session *graph.Session, windowID string, pane *graph.Pane, node wire.LayoutSpec) *errs.Error {
	if node.Direction == "" {
		if err := d.spawnPane(session, pane, spawnConfig{command: node.Command, cwd: node.Cwd}); err != nil {
			return errs.New(errs.SpawnFailed, "layout leaf failed to spawn: "+err.Error())
		}
		return nil
	}

	direction := graph.SplitVertical
	if node.Direction == string(graph.SplitHorizontal) {
		direction = graph.SplitHorizontal
	}
	if len(node.Children) != 2 {
		return errs.New(errs.InvalidOperation, "split layout node must have exactly 2 children")
	}

	_, _, newPane, err := d.deps.Graph.SplitPane(pane.ID, direction, nil)
	if err != nil {
		return errs.FromGraphError(err)
	}
	if werr := d.appendWAL(wal.PaneCreated, wal.PaneCreatedPayload{WindowID: windowID, PaneID: newPane.ID, Index: newPane.Index, SourcePane: pane.ID, Cols: newPane.Cols, Rows: newPane.Rows}); werr != nil {
		return werr
	}

	if werr := d.buildLayoutNode(session, windowID, pane, node.Children[0]); werr != nil {
		return werr
	}
	return d.buildLayoutNode(session, windowID, newPane, node.Children[1])
}
