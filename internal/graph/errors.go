package graph

import "errors"

// Sentinel errors returned by Graph operations. internal/handlers maps
// these to wire.ErrorCode at the API boundary; internal packages never
// import internal/wire.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionNameTaken = errors.New("session name exists")
	ErrWindowNotFound   = errors.New("window not found")
	ErrPaneNotFound     = errors.New("pane not found")
	ErrInvalidOperation = errors.New("invalid operation")
)
