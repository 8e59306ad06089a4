// Package errs maps internal package errors (graph.ErrSessionNotFound and
// friends, plain fmt.Errorf from wal/checkpoint) to the wire-protocol
// ErrorCode taxonomy, at the single boundary internal packages never
// cross themselves: graph, wal, and checkpoint never import wire; the
// handler layer classifies what they return.
package errs

import (
	"errors"

	"github.com/ccmux/ccmux/internal/arbiter"
	"github.com/ccmux/ccmux/internal/graph"
)

// Code is the wire ErrorCode enumeration.
type Code string

const (
	SessionNotFound    Code = "SessionNotFound"
	SessionNameExists  Code = "SessionNameExists"
	WindowNotFound     Code = "WindowNotFound"
	PaneNotFound       Code = "PaneNotFound"
	InvalidOperation   Code = "InvalidOperation"
	InternalError      Code = "InternalError"
	UserPriorityActive Code = "UserPriorityActive"
	SpawnLimitExceeded Code = "SpawnLimitExceeded"
	SpawnFailed        Code = "SpawnFailed"
	NotConnected       Code = "NotConnected"
	ResponseTimeout    Code = "ResponseTimeout"
)

// Error is the typed error surfaced to a requesting client: a code, a
// human message, and optional structured details.
type Error struct {
	Code    Code           `msgpack:"code"`
	Message string         `msgpack:"message"`
	Details map[string]any `msgpack:"details,omitempty"`
}

func (e *Error) Error() string { return string(e.Code) + ": " + e.Message }

// New builds an Error with no details.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithDetails attaches structured details (e.g. remaining_ms) to a copy
// of e.
func (e *Error) WithDetails(details map[string]any) *Error {
	out := *e
	out.Details = details
	return &out
}

// FromGraphError classifies a graph-package sentinel error (or any other
// internal error) into a wire Error. Unrecognized errors become
// InternalError, matching the "persistence/catastrophic" class.
func FromGraphError(err error) *Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, graph.ErrSessionNotFound):
		return New(SessionNotFound, err.Error())
	case errors.Is(err, graph.ErrSessionNameTaken):
		return New(SessionNameExists, err.Error())
	case errors.Is(err, graph.ErrWindowNotFound):
		return New(WindowNotFound, err.Error())
	case errors.Is(err, graph.ErrPaneNotFound):
		return New(PaneNotFound, err.Error())
	case errors.Is(err, graph.ErrInvalidOperation):
		return New(InvalidOperation, err.Error())
	default:
		return New(InternalError, err.Error())
	}
}

// FromArbiterDecision converts a Blocked arbiter.Decision into the
// UserPriorityActive error agents receive, carrying the
// remaining-ms detail so the agent caller can back off intelligently.
// Callers are expected to have already checked Decision.Allowed.
func FromArbiterDecision(d arbiter.Decision) *Error {
	return New(UserPriorityActive, "a human client is actively using this resource").
		WithDetails(map[string]any{"remaining_ms": d.RemainingMs})
}
