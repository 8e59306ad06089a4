package sideband

import "github.com/ccmux/ccmux/internal/ptyio"

// PTYPort abstracts the live PTY-handle table the executor needs to
// touch: internal/poller owns the actual pane_id -> *ptyio.Handle map
// (it has to, since it's also the component reading from those
// handles), and implements this interface so sideband never imports
// poller (poller already imports sideband to feed it bytes).
type PTYPort interface {
	Write(paneID string, data []byte) (int, error)
	Resize(paneID string, cols, rows uint16) error
	Spawn(paneID string, cfg ptyio.Config) error
	Kill(paneID string) error
}

// Broadcaster abstracts the subset of internal/registry the executor
// needs: fan-out to a session's attached clients and to every client.
type Broadcaster interface {
	BroadcastToSession(sessionID string, msg any) int
	BroadcastToAll(msg any) int
}

// AuditSink receives a record of every dispatched sideband command.
// internal/auditlog implements it; a nil sink disables auditing.
type AuditSink interface {
	RecordSideband(paneID, sessionID, command, attrs string, bodyBytes int)
}
