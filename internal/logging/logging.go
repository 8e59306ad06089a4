// Package logging wires the daemon's structured logging: a JSON
// log/slog logger writing daemon-wide events to log/system.jsonl, plus
// a TeeHandler that additionally routes records tagged with a session
// ID to an append-only log/<session_uuid>/audit.jsonl file (never rotated).
package logging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// auditEntry is one line of a per-session audit.jsonl file.
type auditEntry struct {
	Seq     uint64 `json:"seq"`
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// SessionAudit manages the lazily-opened per-session audit files under
// <root>/<session_uuid>/audit.jsonl. One SessionAudit is shared by every
// session for the daemon's lifetime; files are opened on first write and
// kept open until Close(sessionID) or CloseAll().
type SessionAudit struct {
	root string

	mu    sync.Mutex
	files map[string]*os.File
	seq   map[string]uint64
}

// NewSessionAudit roots per-session audit trails at filepath.Join(stateDir, "log").
func NewSessionAudit(stateDir string) *SessionAudit {
	return &SessionAudit{
		root:  filepath.Join(stateDir, "log"),
		files: make(map[string]*os.File),
		seq:   make(map[string]uint64),
	}
}

func (s *SessionAudit) file(sessionID string) (*os.File, error) {
	if f, ok := s.files[sessionID]; ok {
		return f, nil
	}
	dir := filepath.Join(s.root, sessionID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("session audit: mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, "audit.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("session audit: open %s: %w", path, err)
	}
	s.files[sessionID] = f
	return f, nil
}

// Write appends one audit entry for sessionID. Failures are swallowed into
// stderr: the audit trail is a diagnostic aid, never load-bearing for
// correctness, so it must not be allowed to propagate an error back
// into the slog pipeline that called it.
func (s *SessionAudit) Write(sessionID string, ts time.Time, level slog.Level, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.file(sessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[audit] %v\n", err)
		return
	}
	s.seq[sessionID]++
	entry := auditEntry{
		Seq:     s.seq[sessionID],
		Time:    ts.UTC().Format(time.RFC3339Nano),
		Level:   level.String(),
		Message: msg,
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[audit] marshal: %v\n", err)
		return
	}
	raw = append(raw, '\n')
	if _, err := f.Write(raw); err != nil {
		fmt.Fprintf(os.Stderr, "[audit] write: %v\n", err)
	}
}

// Close flushes and closes sessionID's audit file, if open. Called once a
// session is destroyed so its file descriptor isn't held indefinitely.
func (s *SessionAudit) Close(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[sessionID]
	if !ok {
		return nil
	}
	delete(s.files, sessionID)
	delete(s.seq, sessionID)
	return f.Close()
}

// CloseAll closes every open audit file, used during daemon shutdown.
func (s *SessionAudit) CloseAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for id, f := range s.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
		delete(s.files, id)
		delete(s.seq, id)
	}
	return first
}

// Logger bundles the daemon's slog.Logger together with the resources its
// handler owns, so callers have one thing to pass around and one thing to
// close at shutdown.
type Logger struct {
	*slog.Logger

	audit      *SessionAudit
	systemFile *os.File
}

// Setup builds the daemon's logger: JSON records at debug level to
// log/system.jsonl under stateDir (nothing is written to stderr), teed so
// that any record produced by `logger.WithGroup(sessionID).Warn(...)` (or
// higher) is additionally appended to that session's
// log/<sessionID>/audit.jsonl. The returned Logger owns the SessionAudit
// (release one session's file with CloseSession on DestroySession); call
// Close when the daemon shuts down.
func Setup(stateDir string) (*Logger, error) {
	logDir := filepath.Join(stateDir, "log")
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return nil, fmt.Errorf("logging: mkdir %s: %w", logDir, err)
	}
	systemPath := filepath.Join(logDir, "system.jsonl")
	systemFile, err := os.OpenFile(systemPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("logging: open %s: %w", systemPath, err)
	}

	base := slog.NewJSONHandler(systemFile, &slog.HandlerOptions{Level: slog.LevelDebug})
	audit := NewSessionAudit(stateDir)
	tee := NewTeeHandler(base, slog.LevelWarn, func(ts time.Time, level slog.Level, msg string, group string) {
		if group == "" {
			return
		}
		audit.Write(group, ts, level, msg)
	})

	return &Logger{
		Logger:     slog.New(tee),
		audit:      audit,
		systemFile: systemFile,
	}, nil
}

// Session returns a logger whose records (at Warn level or above) are also
// appended to sessionID's audit.jsonl, via WithGroup per TeeHandler's group
// routing.
func (l *Logger) Session(sessionID string) *slog.Logger {
	return l.Logger.WithGroup(sessionID)
}

// CloseSession releases sessionID's open audit file. Safe to call even if
// the session never produced a Warn+ record (no file was ever opened).
func (l *Logger) CloseSession(sessionID string) error {
	return l.audit.Close(sessionID)
}

// Close flushes and closes every resource the logger owns: all open
// per-session audit files and the daemon-wide system.jsonl file.
func (l *Logger) Close() error {
	err := l.audit.CloseAll()
	if cerr := l.systemFile.Close(); err == nil {
		err = cerr
	}
	return err
}
