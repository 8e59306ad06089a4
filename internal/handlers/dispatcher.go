// Package handlers implements the request/response dispatch surface
// over every wire.ClientMessage.Type: decode the request, mutate the
// object graph (WAL-first for topology changes, so a crash after the
// response still replays to the state the client saw), broadcast the
// resulting topology event, and encode the response. Dispatch is a
// type switch over the envelope Type; each request decodes into its
// own struct, and the handlers are split one file per concern.
package handlers

import (
	"fmt"
	"log/slog"

	"github.com/ccmux/ccmux/internal/arbiter"
	"github.com/ccmux/ccmux/internal/errs"
	"github.com/ccmux/ccmux/internal/graph"
	"github.com/ccmux/ccmux/internal/id"
	"github.com/ccmux/ccmux/internal/registry"
	"github.com/ccmux/ccmux/internal/sideband"
	"github.com/ccmux/ccmux/internal/wal"
	"github.com/ccmux/ccmux/internal/wire"
)

// Dependencies wires a Dispatcher to the rest of the daemon.
type Dependencies struct {
	Graph         *graph.Graph
	Registry      *registry.Registry
	Arbiter       *arbiter.Arbiter
	WAL           *wal.WAL // nil disables WAL persistence (e.g. in tests)
	PTY           sideband.PTYPort
	Audit         AuditSink // nil disables the arbitration-denial audit index
	IsolationRoot string
	Clock         id.Clock
	Log           *slog.Logger
}

// Dispatcher decodes and executes one ClientMessage at a time. One
// Dispatcher is shared by every connected client (transport hands it each
// decoded frame); all state it touches is already safe for concurrent
// use.
type Dispatcher struct {
	deps Dependencies
}

// New builds a Dispatcher.
func New(deps Dependencies) *Dispatcher {
	if deps.Clock == nil {
		deps.Clock = id.Wall
	}
	return &Dispatcher{deps: deps}
}

// clientCtx bundles the identity of the requesting client, threaded
// through every handler so it can check arbitration, record focus, and
// address broadcasts-except-self.
type clientCtx struct {
	clientID string
	typ      registry.ClientType
}

// Handle decodes msg.Body per msg.Type, executes the request, and returns
// the ServerMessage to send back (echoing msg.ID) plus any follow-up
// messages owed to the same caller, in delivery order after the
// response. Only AttachSession produces follow-ups today: one Output
// per pane replaying its current scrollback, so a freshly attached client can
// render existing content without reading the WAL. Errors never panic:
// an unrecognized Type or a decode failure become an Error response with
// InvalidOperation
func (d *Dispatcher) Handle(clientID string, clientType registry.ClientType, msg wire.ClientMessage) (wire.ServerMessage, []wire.ServerMessage) {
	cc := clientCtx{clientID: clientID, typ: clientType}

	typ, body, werr := d.dispatch(cc, msg)
	if werr != nil {
		return d.errorResponse(msg.ID, werr), nil
	}
	resp, err := wire.EncodeServer(msg.ID, typ, body)
	if err != nil {
		return d.errorResponse(msg.ID, errs.New(errs.InternalError, err.Error())), nil
	}
	if typ == wire.TypeAttached {
		if attached, ok := body.(wire.AttachedResp); ok {
			return resp, d.attachFollowUps(attached)
		}
	}
	return resp, nil
}

// attachFollowUps builds the per-pane scrollback replay that follows an
// Attached response. Panes with empty scrollback are skipped.
func (d *Dispatcher) attachFollowUps(attached wire.AttachedResp) []wire.ServerMessage {
	var followUps []wire.ServerMessage
	for _, p := range attached.Panes {
		data, err := d.deps.Graph.ReadScrollback(p.ID)
		if err != nil || len(data) == 0 {
			continue
		}
		fu, err := wire.EncodeServer(0, wire.TypeOutput, wire.OutputPush{PaneID: p.ID, Data: data})
		if err != nil {
			d.warnf("attach replay for pane %s: %v", p.ID, err)
			continue
		}
		followUps = append(followUps, fu)
	}
	return followUps
}

func (d *Dispatcher) errorResponse(id uint64, werr *errs.Error) wire.ServerMessage {
	resp, err := wire.EncodeServer(id, wire.TypeError, werr)
	if err != nil {
		// Encoding a plain Error struct should never fail; fall back to an
		// empty body rather than propagate a second error.
		return wire.ServerMessage{ID: id, Type: wire.TypeError}
	}
	return resp
}

func (d *Dispatcher) dispatch(cc clientCtx, msg wire.ClientMessage) (string, any, *errs.Error) {
	switch msg.Type {
	case wire.TypeListSessions:
		return d.handleListSessions(msg)
	case wire.TypeCreateSession:
		return d.handleCreateSession(cc, msg)
	case wire.TypeAttachSession:
		return d.handleAttachSession(cc, msg)
	case wire.TypeDetachSession:
		return d.handleDetachSession(cc, msg)
	case wire.TypeDestroySession:
		return d.handleDestroySession(cc, msg)
	case wire.TypeRenameSession:
		return d.handleRenameSession(cc, msg)
	case wire.TypeCreateWindow:
		return d.handleCreateWindow(cc, msg)
	case wire.TypeRenameWindow:
		return d.handleRenameWindow(cc, msg)
	case wire.TypeSelectWindow:
		return d.handleSelectWindow(cc, msg)
	case wire.TypeCreatePane:
		return d.handleCreatePane(cc, msg)
	case wire.TypeSplitPane:
		return d.handleSplitPane(cc, msg)
	case wire.TypeClosePane:
		return d.handleClosePane(cc, msg)
	case wire.TypeResizePane:
		return d.handleResizePane(cc, msg)
	case wire.TypeFocusPane:
		return d.handleFocusPane(cc, msg)
	case wire.TypeRenamePane:
		return d.handleRenamePane(msg)
	case wire.TypeSendInput:
		return d.handleSendInput(cc, msg)
	case wire.TypeReadPane:
		return d.handleReadPane(msg)
	case wire.TypeGetPaneStatus:
		return d.handleGetPaneStatus(msg)
	case wire.TypeListAllPanes:
		return d.handleListAllPanes(msg)
	case wire.TypeListWindows:
		return d.handleListWindows(msg)
	case wire.TypeSetTags:
		return d.handleSetTags(msg)
	case wire.TypeGetTags:
		return d.handleGetTags(msg)
	case wire.TypeSetMetadata:
		return d.handleSetMetadata(msg)
	case wire.TypeGetMetadata:
		return d.handleGetMetadata(msg)
	case wire.TypeSetEnvironment:
		return d.handleSetEnvironment(msg)
	case wire.TypeGetEnvironment:
		return d.handleGetEnvironment(msg)
	case wire.TypeCreateLayout:
		return d.handleCreateLayout(cc, msg)
	case wire.TypeSendOrchestration:
		return d.handleSendOrchestration(msg)
	case wire.TypePollMessages:
		return d.handlePollMessages(msg)
	case wire.TypeGetWorkerStatus:
		return d.handleGetWorkerStatus(msg)
	case wire.TypeUpdateWorkerStatus:
		return d.handleUpdateWorkerStatus(msg)
	case wire.TypeExpect:
		return d.handleExpect(msg)
	case wire.TypeRunPipeline:
		return d.handleRunPipeline(cc, msg)
	default:
		return "", nil, errs.New(errs.InvalidOperation, "unrecognized request type "+msg.Type)
	}
}

func decodeErr(err error) *errs.Error {
	return errs.New(errs.InvalidOperation, "malformed request body: "+err.Error())
}

func (d *Dispatcher) warnf(format string, args ...any) {
	if d.deps.Log != nil {
		d.deps.Log.Warn("handlers: " + fmt.Sprintf(format, args...))
	}
}
