// Package graph implements the mutable session/window/pane object
// graph. All structural invariants are enforced here; callers outside
// this package only ever see UUIDs, never bare pointers, which keeps
// the graph acyclic and trivially serializable. A single RWMutex owns
// the structure, a secondary pane index gives O(1) lookup, and reads
// hand out defensive copies so callers never touch live state without
// the lock.
package graph

import "encoding/json"

// PaneStateKind tags the PaneState union.
type PaneStateKind string

const (
	PaneNormal PaneStateKind = "normal"
	PaneAgent  PaneStateKind = "agent"
	PaneExited PaneStateKind = "exited"
	PaneStatus PaneStateKind = "status"
)

// AgentActivity enumerates AgentActivity.
type AgentActivity string

const (
	ActivityIdle            AgentActivity = "idle"
	ActivityProcessing      AgentActivity = "processing"
	ActivityGenerating      AgentActivity = "generating"
	ActivityToolUse         AgentActivity = "tool_use"
	ActivityAwaitingConfirm AgentActivity = "awaiting_confirmation"
	// ActivityCustomPrefix + label forms a Custom(String) activity value.
	ActivityCustomPrefix AgentActivity = "custom:"
)

// PaneState is a tagged union. Only the fields relevant to Kind are
// meaningful; the zero value is PaneNormal.
type PaneState struct {
	Kind AgentOrPlain `json:"kind"`

	// Agent fields, valid when Kind == PaneAgent.
	AgentType      string        `json:"agent_type,omitempty"`
	Activity       AgentActivity `json:"activity,omitempty"`
	AgentSessionID *string       `json:"agent_session_id,omitempty"`
	Model          *string       `json:"model,omitempty"`

	// Exited fields, valid when Kind == PaneExited.
	ExitCode *int `json:"exit_code,omitempty"`
}

// AgentOrPlain is PaneStateKind; named separately only so field ordering in
// the struct literal above reads naturally. Kept as an alias, not a new
// type, so callers compare directly against the PaneNormal/... constants.
type AgentOrPlain = PaneStateKind

// NormalState is the default state for a freshly spawned pane.
func NormalState() PaneState { return PaneState{Kind: PaneNormal} }

// StatusState marks a virtual status-display pane; it owns no PTY.
func StatusState() PaneState { return PaneState{Kind: PaneStatus} }

// ExitedState marks a pane whose PTY process has terminated.
func ExitedState(code *int) PaneState {
	return PaneState{Kind: PaneExited, ExitCode: code}
}

// WorktreeInfo records the worktree a session was created for, if any.
type WorktreeInfo struct {
	Path string `json:"path"`
}

// OrchestrationMessage is one entry of Session.inbox.
type OrchestrationMessage struct {
	FromSessionID string          `json:"from_session_id"`
	Body          json.RawMessage `json:"body"`
	ReceivedAt    uint64          `json:"received_at"`
}

// Session is the Session entity.
type Session struct {
	ID              string
	Name            string
	CreatedAt       uint64
	Windows         []*Window
	ActiveWindowID  string // "" means None
	Tags            map[string]struct{}
	Metadata        map[string]string
	Environment     map[string]string
	Status          json.RawMessage
	Inbox           []OrchestrationMessage
	Worktree        *WorktreeInfo
	nextWindowIndex uint32
}

// Window is the Window entity.
type Window struct {
	ID            string
	SessionID     string
	Index         uint32
	Name          string
	CreatedAt     uint64
	Panes         []*Pane
	ActivePaneID  string // "" means None
	Layout        *LayoutNode
	nextPaneIndex uint32
}

// Pane is the Pane entity.
type Pane struct {
	ID         string
	WindowID   string
	Index      uint32
	Cols       uint16
	Rows       uint16
	State      PaneState
	Name       *string
	Title      *string
	Cwd        *string
	CreatedAt  uint64
	Scrollback *Scrollback
	Metadata   map[string]string
	IsMirror   bool
}

// HasPTY reports whether a pane in this state owns a live PTY handle.
func (s PaneState) HasPTY() bool {
	return s.Kind == PaneNormal || s.Kind == PaneAgent
}
