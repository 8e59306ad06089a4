package wire

// ClientMessage.Type values.
const (
	TypeHello              = "Hello"
	TypeListSessions       = "ListSessions"
	TypeCreateSession      = "CreateSession"
	TypeAttachSession      = "AttachSession"
	TypeDetachSession      = "DetachSession"
	TypeDestroySession     = "DestroySession"
	TypeRenameSession      = "RenameSession"
	TypeCreateWindow       = "CreateWindow"
	TypeRenameWindow       = "RenameWindow"
	TypeSelectWindow       = "SelectWindow"
	TypeCreatePane         = "CreatePane"
	TypeSplitPane          = "SplitPane"
	TypeClosePane          = "ClosePane"
	TypeResizePane         = "ResizePane"
	TypeFocusPane          = "FocusPane"
	TypeRenamePane         = "RenamePane"
	TypeSendInput          = "SendInput"
	TypeReadPane           = "ReadPane"
	TypeGetPaneStatus      = "GetPaneStatus"
	TypeListAllPanes       = "ListAllPanes"
	TypeListWindows        = "ListWindows"
	TypeSetTags            = "SetTags"
	TypeGetTags            = "GetTags"
	TypeSetMetadata        = "SetMetadata"
	TypeGetMetadata        = "GetMetadata"
	TypeSetEnvironment     = "SetEnvironment"
	TypeGetEnvironment     = "GetEnvironment"
	TypeCreateLayout       = "CreateLayout"
	TypeSendOrchestration  = "SendOrchestration"
	TypePollMessages       = "PollMessages"
	TypeGetWorkerStatus    = "GetWorkerStatus"
	TypeUpdateWorkerStatus = "UpdateWorkerStatus"
	TypeExpect             = "Expect"
	TypeRunPipeline        = "RunPipeline"
)

// ServerMessage.Type values: one Result/Ack/info variant per request
// above, plus the unsolicited push types.
const (
	TypeWelcome         = "Welcome"
	TypeSessionList     = "SessionList"
	TypeSessionInfo     = "SessionInfo"
	TypeAttached        = "Attached"
	TypeOK              = "OK"
	TypeWindowInfo      = "WindowInfo"
	TypeWindowList      = "WindowList"
	TypePaneInfo        = "PaneInfo"
	TypePaneList        = "PaneList"
	TypePaneStatus      = "PaneStatus"
	TypeScrollbackLines = "ScrollbackLines"
	TypeTagList         = "TagList"
	TypeMetadataMap     = "MetadataMap"
	TypeEnvironmentMap  = "EnvironmentMap"
	TypeMessages        = "Messages"
	TypeWorkerStatus    = "WorkerStatus"
	TypeExpectMatch     = "ExpectMatch"
	TypePipelineResult  = "PipelineResult"
	TypeError           = "Error"

	TypeSessionCreated   = "SessionCreated"
	TypeSessionDestroyed = "SessionDestroyed"
	TypeSessionRenamed   = "SessionRenamed"
	TypeWindowCreated    = "WindowCreated"
	TypeWindowDestroyed  = "WindowDestroyed"
	TypeWindowRenamed    = "WindowRenamed"
	TypePaneCreated      = "PaneCreated"
	TypePaneClosed       = "PaneClosed"
	TypeOutput           = "Output"
	TypeScrollViewport   = "ScrollViewport"
	TypeNotification     = "Notification"
	TypeMail             = "Mail"
)

// -- Entity wire shapes --------------------------------------------------

// PaneState mirrors graph.PaneState for wire transmission (graph never
// imports wire, so its callers translate at the boundary).
type PaneState struct {
	Kind           string `msgpack:"kind"`
	AgentType      string `msgpack:"agent_type,omitempty"`
	Activity       string `msgpack:"activity,omitempty"`
	AgentSessionID string `msgpack:"agent_session_id,omitempty"`
	Model          string `msgpack:"model,omitempty"`
	ExitCode       *int   `msgpack:"exit_code,omitempty"`
}

type Pane struct {
	ID        string            `msgpack:"id"`
	WindowID  string            `msgpack:"window_id"`
	Index     uint32            `msgpack:"index"`
	Cols      uint16            `msgpack:"cols"`
	Rows      uint16            `msgpack:"rows"`
	State     PaneState         `msgpack:"state"`
	Name      string            `msgpack:"name,omitempty"`
	Title     string            `msgpack:"title,omitempty"`
	Cwd       string            `msgpack:"cwd,omitempty"`
	CreatedAt uint64            `msgpack:"created_at"`
	Metadata  map[string]string `msgpack:"metadata,omitempty"`
	IsMirror  bool              `msgpack:"is_mirror"`
}

type Window struct {
	ID           string `msgpack:"id"`
	SessionID    string `msgpack:"session_id"`
	Index        uint32 `msgpack:"index"`
	Name         string `msgpack:"name"`
	CreatedAt    uint64 `msgpack:"created_at"`
	Panes        []Pane `msgpack:"panes"`
	ActivePaneID string `msgpack:"active_pane_id,omitempty"`
}

type Session struct {
	ID             string            `msgpack:"id"`
	Name           string            `msgpack:"name"`
	CreatedAt      uint64            `msgpack:"created_at"`
	Windows        []Window          `msgpack:"windows"`
	ActiveWindowID string            `msgpack:"active_window_id,omitempty"`
	Tags           []string          `msgpack:"tags,omitempty"`
	Metadata       map[string]string `msgpack:"metadata,omitempty"`
	Environment    map[string]string `msgpack:"environment,omitempty"`
	Status         []byte            `msgpack:"status,omitempty"`
}

// -- Request payloads -----------------------------------------------------

// HelloReq is the first frame every client sends after connecting: it
// declares the client's type (tui, mcp, or other) so the daemon can
// apply the arbitration rule to everything the client does afterwards.
// The transport layer consumes it directly; it never reaches the
// dispatcher.
type HelloReq struct {
	ClientType string `msgpack:"client_type"`
}

type ListSessionsReq struct {
	Tag string `msgpack:"tag,omitempty"`
}

type CreateSessionReq struct {
	Name string `msgpack:"name,omitempty"`
}

type AttachSessionReq struct {
	SessionID string `msgpack:"session_id,omitempty"`
	Name      string `msgpack:"name,omitempty"`
}

type DestroySessionReq struct {
	SessionID string `msgpack:"session_id"`
}

type RenameSessionReq struct {
	SessionID string `msgpack:"session_id"`
	NewName   string `msgpack:"new_name"`
}

type CreateWindowReq struct {
	SessionID string `msgpack:"session_id"`
	Name      string `msgpack:"name,omitempty"`
}

type RenameWindowReq struct {
	WindowID string `msgpack:"window_id"`
	NewName  string `msgpack:"new_name"`
}

type SelectWindowReq struct {
	SessionID string `msgpack:"session_id"`
	WindowID  string `msgpack:"window_id"`
}

type CreatePaneReq struct {
	WindowID string        `msgpack:"window_id"`
	Command  string        `msgpack:"command,omitempty"`
	Args     []string      `msgpack:"args,omitempty"`
	Cwd      string        `msgpack:"cwd,omitempty"`
	Agent    *AgentOptions `msgpack:"agent,omitempty"`
}

// AgentOptions requests that CreatePane bootstrap the new pane
// directly into PaneState.Agent instead of PaneState.Normal.
type AgentOptions struct {
	AgentType      string `msgpack:"agent_type"`
	AgentSessionID string `msgpack:"agent_session_id,omitempty"`
	Model          string `msgpack:"model,omitempty"`
}

type SplitPaneReq struct {
	PaneID    string `msgpack:"pane_id"`
	Direction string `msgpack:"direction,omitempty"`
	Cwd       string `msgpack:"cwd,omitempty"`
}

type ClosePaneReq struct {
	PaneID string `msgpack:"pane_id"`
}

type ResizePaneReq struct {
	PaneID string `msgpack:"pane_id"`
	Cols   uint16 `msgpack:"cols"`
	Rows   uint16 `msgpack:"rows"`
}

type FocusPaneReq struct {
	PaneID string `msgpack:"pane_id"`
}

type RenamePaneReq struct {
	PaneID string `msgpack:"pane_id"`
	Name   string `msgpack:"name"`
}

type SendInputReq struct {
	PaneID string `msgpack:"pane_id"`
	Data   []byte `msgpack:"data,omitempty"`
	Key    string `msgpack:"key,omitempty"`
}

type ReadPaneReq struct {
	PaneID    string `msgpack:"pane_id"`
	Lines     int    `msgpack:"lines,omitempty"`
	StripAnsi bool   `msgpack:"strip_ansi,omitempty"`
}

type GetPaneStatusReq struct {
	PaneID string `msgpack:"pane_id"`
}

type ListAllPanesReq struct {
	SessionID string `msgpack:"session_id,omitempty"`
}

type ListWindowsReq struct {
	SessionID string `msgpack:"session_id"`
}

type SetTagsReq struct {
	SessionID string   `msgpack:"session_id"`
	Tags      []string `msgpack:"tags"`
}

type GetTagsReq struct {
	SessionID string `msgpack:"session_id"`
}

type SetMetadataReq struct {
	SessionID string            `msgpack:"session_id"`
	KV        map[string]string `msgpack:"kv"`
}

type GetMetadataReq struct {
	SessionID string `msgpack:"session_id"`
}

type SetEnvironmentReq struct {
	SessionID string            `msgpack:"session_id"`
	KV        map[string]string `msgpack:"kv"`
}

type GetEnvironmentReq struct {
	SessionID string `msgpack:"session_id"`
}

// CreateLayoutReq carries a declarative layout tree.
type CreateLayoutReq struct {
	SessionID  string     `msgpack:"session_id"`
	WindowName string     `msgpack:"window_name,omitempty"`
	Root       LayoutSpec `msgpack:"root"`
}

type LayoutSpec struct {
	Direction string       `msgpack:"direction,omitempty"` // "" for a leaf
	Command   string       `msgpack:"command,omitempty"`
	Cwd       string       `msgpack:"cwd,omitempty"`
	Children  []LayoutSpec `msgpack:"children,omitempty"`
}

type SendOrchestrationReq struct {
	FromSessionID string `msgpack:"from_session_id"`
	ToSessionID   string `msgpack:"to_session_id"`
	Body          []byte `msgpack:"body"`
}

type PollMessagesReq struct {
	SessionID string `msgpack:"session_id"`
}

type GetWorkerStatusReq struct {
	SessionID string `msgpack:"session_id"`
}

// UpdateWorkerStatusReq lets a worker session publish its own status
// payload (an opaque JSON blob from the orchestration protocol) for
// GetWorkerStatus readers.
type UpdateWorkerStatusReq struct {
	SessionID string `msgpack:"session_id"`
	Status    []byte `msgpack:"status"`
}

type ExpectReq struct {
	PaneID    string `msgpack:"pane_id"`
	Pattern   string `msgpack:"pattern"`
	TimeoutMs uint64 `msgpack:"timeout_ms,omitempty"`
}

// PipelineStep is one step of a RunPipeline request. Kind is one of "spawn", "input", "expect",
// "sleep"; the other fields are interpreted per-kind.
type PipelineStep struct {
	Kind      string `msgpack:"kind"`
	PaneID    string `msgpack:"pane_id,omitempty"`
	Command   string `msgpack:"command,omitempty"`
	Cwd       string `msgpack:"cwd,omitempty"`
	Direction string `msgpack:"direction,omitempty"`
	Data      []byte `msgpack:"data,omitempty"`
	Pattern   string `msgpack:"pattern,omitempty"`
	TimeoutMs uint64 `msgpack:"timeout_ms,omitempty"`
	Millis    uint64 `msgpack:"millis,omitempty"`
}

type RunPipelineReq struct {
	SessionID string         `msgpack:"session_id"`
	Steps     []PipelineStep `msgpack:"steps"`
}

// -- Response payloads ------------------------------------------------------

// WelcomeResp acknowledges a HelloReq and hands the client its
// daemon-assigned identifier.
type WelcomeResp struct {
	ClientID string `msgpack:"client_id"`
}

type SessionListResp struct {
	Sessions []Session `msgpack:"sessions"`
}

type SessionInfoResp struct {
	Session Session `msgpack:"session"`
}

type AttachedResp struct {
	Session Session  `msgpack:"session"`
	Windows []Window `msgpack:"windows"`
	Panes   []Pane   `msgpack:"panes"`
}

type OKResp struct {
	Detail string `msgpack:"detail,omitempty"`
}

type WindowInfoResp struct {
	Window Window `msgpack:"window"`
}

type WindowListResp struct {
	Windows []Window `msgpack:"windows"`
}

type PaneInfoResp struct {
	SessionID string `msgpack:"session_id"`
	Pane      Pane   `msgpack:"pane"`
}

type PaneListResp struct {
	Panes []Pane `msgpack:"panes"`
}

type PaneStatusResp struct {
	Pane Pane `msgpack:"pane"`
}

type ScrollbackLinesResp struct {
	PaneID string `msgpack:"pane_id"`
	Data   []byte `msgpack:"data"`
}

type TagListResp struct {
	Tags []string `msgpack:"tags"`
}

type MetadataMapResp struct {
	KV map[string]string `msgpack:"kv"`
}

type EnvironmentMapResp struct {
	KV map[string]string `msgpack:"kv"`
}

type OrchestrationMessage struct {
	FromSessionID string `msgpack:"from_session_id"`
	Body          []byte `msgpack:"body"`
	ReceivedAt    uint64 `msgpack:"received_at"`
}

type MessagesResp struct {
	Messages []OrchestrationMessage `msgpack:"messages"`
}

type WorkerStatusResp struct {
	SessionID string `msgpack:"session_id"`
	Status    []byte `msgpack:"status,omitempty"`
	Alive     *bool  `msgpack:"alive,omitempty"`
}

type ExpectMatchResp struct {
	PaneID string `msgpack:"pane_id"`
	Line   string `msgpack:"line"`
}

type PipelineResultResp struct {
	Completed  int    `msgpack:"completed"`
	FailedStep int    `msgpack:"failed_step,omitempty"`
	Error      string `msgpack:"error,omitempty"`
}

// -- Push (unsolicited) payloads --------------------------------------------

type SessionCreatedPush struct {
	Session Session `msgpack:"session"`
}

type SessionDestroyedPush struct {
	SessionID string `msgpack:"session_id"`
}

type SessionRenamedPush struct {
	SessionID string `msgpack:"session_id"`
	NewName   string `msgpack:"new_name"`
}

type WindowCreatedPush struct {
	SessionID string `msgpack:"session_id"`
	Window    Window `msgpack:"window"`
}

type WindowDestroyedPush struct {
	SessionID string `msgpack:"session_id"`
	WindowID  string `msgpack:"window_id"`
}

type WindowRenamedPush struct {
	WindowID string `msgpack:"window_id"`
	NewName  string `msgpack:"new_name"`
}

type PaneCreatedPush struct {
	SessionID   string `msgpack:"session_id"`
	Pane        Pane   `msgpack:"pane"`
	Direction   string `msgpack:"direction,omitempty"`
	ShouldFocus bool   `msgpack:"should_focus"`
}

type PaneClosedPush struct {
	SessionID string `msgpack:"session_id"`
	PaneID    string `msgpack:"pane_id"`
	ExitCode  *int   `msgpack:"exit_code,omitempty"`
}

type OutputPush struct {
	PaneID string `msgpack:"pane_id"`
	Data   []byte `msgpack:"data"`
}

type ScrollViewportPush struct {
	PaneID string `msgpack:"pane_id"`
	Lines  int    `msgpack:"lines"`
}

type NotificationPush struct {
	SessionID string `msgpack:"session_id"`
	Level     string `msgpack:"level"`
	Title     string `msgpack:"title,omitempty"`
	Text      string `msgpack:"text"`
}

type MailPush struct {
	SessionID string `msgpack:"session_id"`
	From      string `msgpack:"from"`
	Summary   string `msgpack:"summary,omitempty"`
	Priority  string `msgpack:"priority,omitempty"`
	Body      []byte `msgpack:"body,omitempty"`
}

// Pushable is implemented by every unsolicited (ID-less) push payload so
// internal/transport's per-client writer can wrap it into a ServerMessage
// without a type-switch over every concrete struct.
type Pushable interface {
	WireType() string
}

func (SessionCreatedPush) WireType() string   { return TypeSessionCreated }
func (SessionDestroyedPush) WireType() string { return TypeSessionDestroyed }
func (SessionRenamedPush) WireType() string   { return TypeSessionRenamed }
func (WindowCreatedPush) WireType() string    { return TypeWindowCreated }
func (WindowDestroyedPush) WireType() string  { return TypeWindowDestroyed }
func (WindowRenamedPush) WireType() string    { return TypeWindowRenamed }
func (PaneCreatedPush) WireType() string      { return TypePaneCreated }
func (PaneClosedPush) WireType() string       { return TypePaneClosed }
func (OutputPush) WireType() string           { return TypeOutput }
func (ScrollViewportPush) WireType() string   { return TypeScrollViewport }
func (NotificationPush) WireType() string     { return TypeNotification }
func (MailPush) WireType() string             { return TypeMail }
