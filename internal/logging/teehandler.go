package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"
)

// EntryCallback is invoked for every log record at or above the handler's
// capture threshold. group is the accumulated slog group name — daemon code
// opens a per-session group via (*slog.Logger).WithGroup(sessionID) so the
// callback can route the record to that session's audit file; an empty
// group means a daemon-wide record.
type EntryCallback func(ts time.Time, level slog.Level, msg string, group string)

// TeeHandler wraps a base slog.Handler and additionally invokes a callback
// for records at or above minLevel, without altering what reaches the base
// handler — delegate first, then notify. The callback routes by group
// name, which is how per-session audit files get their records.
type TeeHandler struct {
	base     slog.Handler
	callback EntryCallback
	minLevel slog.Level
	group    string
}

// NewTeeHandler creates a TeeHandler delegating to base and invoking
// callback for every record whose level is >= minLevel. A nil callback is
// safe; the handler then just delegates to base.
func NewTeeHandler(base slog.Handler, minLevel slog.Level, callback EntryCallback) *TeeHandler {
	return &TeeHandler{base: base, callback: callback, minLevel: minLevel}
}

// Enabled defers entirely to the base handler; minLevel only gates the tee.
func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

// Handle forwards the record to the base handler, then — if the level
// clears minLevel — invokes the callback. The callback is invoked even if
// the base handler errored: the audit trail should not depend on, say, a
// stderr write failing.
func (h *TeeHandler) Handle(ctx context.Context, record slog.Record) error {
	err := h.base.Handle(ctx, record)

	if h.callback != nil && record.Level >= h.minLevel {
		func() {
			defer func() {
				if r := recover(); r != nil {
					fmt.Fprintf(os.Stderr, "[audit] tee callback panicked: %v\n%s\n", r, debug.Stack())
				}
			}()
			h.callback(record.Time, record.Level, record.Message, h.group)
		}()
	}

	return err
}

// WithAttrs returns a new TeeHandler whose base handler carries attrs.
func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return &TeeHandler{base: h.base.WithAttrs(attrs), callback: h.callback, minLevel: h.minLevel, group: h.group}
}

// WithGroup returns a new TeeHandler whose accumulated group name gains
// name. Daemon code calls this with a session ID to tag every subsequent
// record on the returned logger as belonging to that session.
func (h *TeeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	newGroup := name
	if h.group != "" {
		newGroup = h.group + "." + name
	}
	return &TeeHandler{base: h.base.WithGroup(name), callback: h.callback, minLevel: h.minLevel, group: newGroup}
}
