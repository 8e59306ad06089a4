// Package wal implements the write-ahead log: an append-only file of
// length-prefixed, checksummed records, with group-commit batching and
// a checkpoint-aware reader. The framing is hand-rolled on
// encoding/binary + hash/crc32; the record format is simple enough
// that a log library would cost more in ceremony than it saves.
package wal

import "encoding/json"

// Variant enumerates the WAL record kinds.
type Variant string

const (
	SessionCreated        Variant = "SessionCreated"
	SessionDestroyed      Variant = "SessionDestroyed"
	SessionRenamed        Variant = "SessionRenamed"
	WindowCreated         Variant = "WindowCreated"
	WindowDestroyed       Variant = "WindowDestroyed"
	WindowRenamed         Variant = "WindowRenamed"
	PaneCreated           Variant = "PaneCreated"
	PaneDestroyed         Variant = "PaneDestroyed"
	PaneResized           Variant = "PaneResized"
	PaneStateChanged      Variant = "PaneStateChanged"
	PaneTitleChanged      Variant = "PaneTitleChanged"
	PaneCwdChanged        Variant = "PaneCwdChanged"
	ActiveWindowChanged   Variant = "ActiveWindowChanged"
	ActivePaneChanged     Variant = "ActivePaneChanged"
	PaneOutput            Variant = "PaneOutput"
	SessionMetadataSet    Variant = "SessionMetadataSet"
	SessionEnvironmentSet Variant = "SessionEnvironmentSet"
	CheckpointMarker      Variant = "CheckpointMarker"
)

// Record is one WAL entry as read back from disk: sequence and timestamp
// from the frame header, Variant identifying how to interpret Payload
// (raw JSON, decoded by recovery's reducer).
type Record struct {
	Sequence  uint64
	Timestamp uint64
	Variant   Variant
	Payload   []byte
}

// Payload shapes. These are marshaled to JSON and stored verbatim in
// Record.Payload; recovery's reducer unmarshals based on Variant.

type SessionCreatedPayload struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
}

type SessionDestroyedPayload struct {
	SessionID string `json:"session_id"`
}

type SessionRenamedPayload struct {
	SessionID string `json:"session_id"`
	NewName   string `json:"new_name"`
}

type WindowCreatedPayload struct {
	SessionID string `json:"session_id"`
	WindowID  string `json:"window_id"`
	Index     uint32 `json:"index"`
	Name      string `json:"name"`
}

type WindowDestroyedPayload struct {
	WindowID string `json:"window_id"`
}

type WindowRenamedPayload struct {
	WindowID string `json:"window_id"`
	NewName  string `json:"new_name"`
}

type PaneCreatedPayload struct {
	WindowID   string `json:"window_id"`
	PaneID     string `json:"pane_id"`
	Index      uint32 `json:"index"`
	SourcePane string `json:"source_pane,omitempty"`
	Cols       uint16 `json:"cols"`
	Rows       uint16 `json:"rows"`
	Cwd        string `json:"cwd,omitempty"`
}

type PaneDestroyedPayload struct {
	PaneID string `json:"pane_id"`
}

type PaneResizedPayload struct {
	PaneID string `json:"pane_id"`
	Cols   uint16 `json:"cols"`
	Rows   uint16 `json:"rows"`
}

type PaneStateChangedPayload struct {
	PaneID string          `json:"pane_id"`
	State  json.RawMessage `json:"state"`
}

type PaneTitleChangedPayload struct {
	PaneID string `json:"pane_id"`
	Title  string `json:"title"`
}

type PaneCwdChangedPayload struct {
	PaneID string `json:"pane_id"`
	Cwd    string `json:"cwd"`
}

type ActiveWindowChangedPayload struct {
	SessionID string `json:"session_id"`
	WindowID  string `json:"window_id"`
}

type ActivePaneChangedPayload struct {
	WindowID string `json:"window_id"`
	PaneID   string `json:"pane_id"`
}

type PaneOutputPayload struct {
	PaneID string `json:"pane_id"`
	Data   []byte `json:"data"`
}

type SessionMetadataSetPayload struct {
	SessionID string            `json:"session_id"`
	KV        map[string]string `json:"kv"`
}

type SessionEnvironmentSetPayload struct {
	SessionID string            `json:"session_id"`
	KV        map[string]string `json:"kv"`
}

type CheckpointMarkerPayload struct {
	Sequence       uint64 `json:"sequence"`
	CheckpointPath string `json:"checkpoint_path"`
}
