package handlers

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/ccmux/ccmux/internal/errs"
	"github.com/ccmux/ccmux/internal/graph"
	"github.com/ccmux/ccmux/internal/id"
	"github.com/ccmux/ccmux/internal/recovery"
	"github.com/ccmux/ccmux/internal/wal"
	"github.com/ccmux/ccmux/internal/wire"
)

func (d *Dispatcher) handleListSessions(msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.ListSessionsReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}
	sessions := d.deps.Graph.ListSessions(req.Tag)
	out := make([]wire.Session, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, wire.FromSession(s))
	}
	return wire.TypeSessionList, wire.SessionListResp{Sessions: out}, nil
}

func (d *Dispatcher) handleCreateSession(cc clientCtx, msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.CreateSessionReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}
	session, window, pane, err := d.deps.Graph.CreateSession(req.Name)
	if err != nil {
		return "", nil, errs.FromGraphError(err)
	}

	if werr := d.appendWAL(wal.SessionCreated, wal.SessionCreatedPayload{SessionID: session.ID, Name: session.Name}); werr != nil {
		return "", nil, werr
	}
	if werr := d.appendWAL(wal.WindowCreated, wal.WindowCreatedPayload{SessionID: session.ID, WindowID: window.ID, Index: window.Index, Name: window.Name}); werr != nil {
		return "", nil, werr
	}
	if werr := d.appendWAL(wal.PaneCreated, wal.PaneCreatedPayload{WindowID: window.ID, PaneID: pane.ID, Index: pane.Index, Cols: pane.Cols, Rows: pane.Rows}); werr != nil {
		return "", nil, werr
	}

	if err := d.spawnPane(session, pane, spawnConfig{}); err != nil {
		return "", nil, errs.New(errs.SpawnFailed, "session bootstrap pane failed to spawn: "+err.Error())
	}

	refreshed, _ := d.deps.Graph.GetSession(session.ID)
	d.deps.Registry.BroadcastToAllExcept(cc.clientID, wire.SessionCreatedPush{Session: wire.FromSession(refreshed)})
	return wire.TypeSessionInfo, wire.SessionInfoResp{Session: wire.FromSession(refreshed)}, nil
}

func (d *Dispatcher) handleAttachSession(cc clientCtx, msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.AttachSessionReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}

	var (
		session *graph.Session
		err     error
	)
	switch {
	case req.SessionID != "":
		session, err = d.deps.Graph.GetSession(req.SessionID)
	case req.Name != "":
		session, err = d.deps.Graph.GetSessionByName(req.Name)
	default:
		return "", nil, errs.New(errs.InvalidOperation, "attach requires session_id or name")
	}
	if err != nil {
		return "", nil, errs.FromGraphError(err)
	}

	d.deps.Registry.Attach(cc.clientID, session.ID)
	if session.ActiveWindowID != "" {
		focus := findFocusPane(session)
		d.deps.Registry.SetFocus(cc.clientID, focus)
	}

	var windows []wire.Window
	var panes []wire.Pane
	for _, w := range session.Windows {
		windows = append(windows, wire.FromWindow(w))
		for _, p := range w.Panes {
			panes = append(panes, wire.FromPane(p))
		}
	}
	return wire.TypeAttached, wire.AttachedResp{Session: wire.FromSession(session), Windows: windows, Panes: panes}, nil
}

func findFocusPane(session *graph.Session) struct {
	SessionID, WindowID, PaneID string
} {
	for _, w := range session.Windows {
		if w.ID == session.ActiveWindowID {
			return struct{ SessionID, WindowID, PaneID string }{session.ID, w.ID, w.ActivePaneID}
		}
	}
	return struct{ SessionID, WindowID, PaneID string }{SessionID: session.ID}
}

func (d *Dispatcher) handleDetachSession(cc clientCtx, msg wire.ClientMessage) (string, any, *errs.Error) {
	d.deps.Registry.Detach(cc.clientID)
	return wire.TypeOK, wire.OKResp{}, nil
}

func (d *Dispatcher) handleDestroySession(cc clientCtx, msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.DestroySessionReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}
	if werr := d.checkArbiter(cc, resourceForSession(req.SessionID), "layout"); werr != nil {
		return "", nil, werr
	}

	snapshot, err := d.deps.Graph.DestroySession(req.SessionID)
	if err != nil {
		return "", nil, errs.FromGraphError(err)
	}
	if werr := d.appendWAL(wal.SessionDestroyed, wal.SessionDestroyedPayload{SessionID: req.SessionID}); werr != nil {
		return "", nil, werr
	}

	for _, w := range snapshot.Windows {
		for _, p := range w.Panes {
			_ = d.deps.PTY.Kill(p.ID)
			if d.deps.IsolationRoot != "" {
				_ = removeIsolationDir(d.deps.IsolationRoot, p.ID)
			}
		}
	}

	d.deps.Registry.BroadcastToAllExcept(cc.clientID, wire.SessionDestroyedPush{SessionID: req.SessionID})
	return wire.TypeOK, wire.OKResp{}, nil
}

func (d *Dispatcher) handleRenameSession(cc clientCtx, msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.RenameSessionReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}
	if _, err := d.deps.Graph.RenameSession(req.SessionID, req.NewName); err != nil {
		return "", nil, errs.FromGraphError(err)
	}
	if werr := d.appendWAL(wal.SessionRenamed, wal.SessionRenamedPayload{SessionID: req.SessionID, NewName: req.NewName}); werr != nil {
		return "", nil, werr
	}
	d.deps.Registry.BroadcastToAllExcept(cc.clientID, wire.SessionRenamedPush{SessionID: req.SessionID, NewName: req.NewName})
	return wire.TypeOK, wire.OKResp{}, nil
}

func (d *Dispatcher) handleSetTags(msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.SetTagsReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}
	if err := d.deps.Graph.SetTags(req.SessionID, req.Tags); err != nil {
		return "", nil, errs.FromGraphError(err)
	}
	return wire.TypeOK, wire.OKResp{}, nil
}

func (d *Dispatcher) handleGetTags(msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.GetTagsReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}
	tags, err := d.deps.Graph.GetTags(req.SessionID)
	if err != nil {
		return "", nil, errs.FromGraphError(err)
	}
	return wire.TypeTagList, wire.TagListResp{Tags: tags}, nil
}

func (d *Dispatcher) handleSetMetadata(msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.SetMetadataReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}
	if err := d.deps.Graph.SetMetadata(req.SessionID, req.KV); err != nil {
		return "", nil, errs.FromGraphError(err)
	}
	if werr := d.appendWAL(wal.SessionMetadataSet, wal.SessionMetadataSetPayload{SessionID: req.SessionID, KV: req.KV}); werr != nil {
		return "", nil, werr
	}
	return wire.TypeOK, wire.OKResp{}, nil
}

func (d *Dispatcher) handleGetMetadata(msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.GetMetadataReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}
	kv, err := d.deps.Graph.GetMetadata(req.SessionID)
	if err != nil {
		return "", nil, errs.FromGraphError(err)
	}
	return wire.TypeMetadataMap, wire.MetadataMapResp{KV: kv}, nil
}

func (d *Dispatcher) handleSetEnvironment(msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.SetEnvironmentReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}
	if err := d.deps.Graph.SetEnvironment(req.SessionID, req.KV); err != nil {
		return "", nil, errs.FromGraphError(err)
	}
	if werr := d.appendWAL(wal.SessionEnvironmentSet, wal.SessionEnvironmentSetPayload{SessionID: req.SessionID, KV: req.KV}); werr != nil {
		return "", nil, werr
	}
	return wire.TypeOK, wire.OKResp{}, nil
}

func (d *Dispatcher) handleGetEnvironment(msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.GetEnvironmentReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}
	kv, err := d.deps.Graph.GetEnvironment(req.SessionID)
	if err != nil {
		return "", nil, errs.FromGraphError(err)
	}
	return wire.TypeEnvironmentMap, wire.EnvironmentMapResp{KV: kv}, nil
}

func (d *Dispatcher) handleSendOrchestration(msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.SendOrchestrationReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}
	if err := d.deps.Graph.SendOrchestration(req.FromSessionID, req.ToSessionID, req.Body, id.UnixMillis(d.deps.Clock())); err != nil {
		return "", nil, errs.FromGraphError(err)
	}
	return wire.TypeOK, wire.OKResp{}, nil
}

func (d *Dispatcher) handlePollMessages(msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.PollMessagesReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}
	msgs, err := d.deps.Graph.PollMessages(req.SessionID)
	if err != nil {
		return "", nil, errs.FromGraphError(err)
	}
	out := make([]wire.OrchestrationMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, wire.OrchestrationMessage{FromSessionID: m.FromSessionID, Body: m.Body, ReceivedAt: m.ReceivedAt})
	}
	return wire.TypeMessages, wire.MessagesResp{Messages: out}, nil
}

// handleGetWorkerStatus returns a session's self-reported status blob,
// cross-checked against process liveness when the payload names a pid:
// a worker that crashed without updating its status still shows
// alive=false to the orchestrator reading it.
func (d *Dispatcher) handleGetWorkerStatus(msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.GetWorkerStatusReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}
	session, err := d.deps.Graph.GetSession(req.SessionID)
	if err != nil {
		return "", nil, errs.FromGraphError(err)
	}
	resp := wire.WorkerStatusResp{SessionID: session.ID, Status: session.Status}
	if pid := gjson.GetBytes(session.Status, "pid"); pid.Exists() && pid.Int() > 0 {
		alive := recovery.ProcessAlive(int(pid.Int()))
		resp.Alive = &alive
		if annotated, serr := sjson.SetBytes(session.Status, "alive", alive); serr == nil {
			resp.Status = annotated
		}
	}
	return wire.TypeWorkerStatus, resp, nil
}

func (d *Dispatcher) handleUpdateWorkerStatus(msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.UpdateWorkerStatusReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}
	if err := d.deps.Graph.SetStatus(req.SessionID, req.Status); err != nil {
		return "", nil, errs.FromGraphError(err)
	}
	return wire.TypeOK, wire.OKResp{}, nil
}
