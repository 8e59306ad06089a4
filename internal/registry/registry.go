// Package registry implements the client registry and broadcast
// fabric: per-client outbox channels, a session-attachment reverse
// index, and focus tuples.
//
// An RWMutex guards the connection-state maps; broadcasts snapshot
// their targets under the read lock and deliver outside it, so one
// slow client never stalls the registry for everyone else.
package registry

import (
	"log/slog"
	"sync"
)

// ClientType distinguishes a human terminal client from an AI-agent
// client for arbitration purposes.
type ClientType string

const (
	ClientTUI   ClientType = "tui"
	ClientMCP   ClientType = "mcp"
	ClientOther ClientType = "other"
)

// ParseClientType maps a wire-level client-type string onto the closed
// ClientType set; anything unrecognized registers as ClientOther (which
// arbitration treats like an agent: never granted human priority).
func ParseClientType(s string) ClientType {
	switch ClientType(s) {
	case ClientTUI:
		return ClientTUI
	case ClientMCP:
		return ClientMCP
	default:
		return ClientOther
	}
}

// Focus is a client's default session/window/pane resolution, used by
// handlers when a request omits these. Updating focus
// never touches the graph's own active_* fields.
type Focus struct {
	SessionID string
	WindowID  string
	PaneID    string
}

// entry is the registry's internal per-client bookkeeping.
type entry struct {
	id       string
	typ      ClientType
	outbox   chan any
	done     chan struct{}
	doneOnce sync.Once

	mu              sync.RWMutex
	attachedSession string
	focus           Focus
}

func (e *entry) closeDone() {
	e.doneOnce.Do(func() { close(e.done) })
}

// send blocks until msg is delivered or the client is closed.
func (e *entry) send(msg any) bool {
	select {
	case e.outbox <- msg:
		return true
	case <-e.done:
		return false
	}
}

// trySend never blocks: a full outbox is reported as "full" (drop +
// warn), a closed client as "closed".
func (e *entry) trySend(msg any) (ok bool, reason string) {
	select {
	case e.outbox <- msg:
		return true, ""
	case <-e.done:
		return false, "closed"
	default:
		return false, "full"
	}
}

// Registry is the single owned client table shared by every transport
// connection handler and by internal/handlers's broadcast calls.
type Registry struct {
	log *slog.Logger

	mu        sync.RWMutex
	clients   map[string]*entry
	bySession map[string]map[string]struct{} // session_id -> set of client ids
}

// New creates an empty Registry. log may be nil.
func New(log *slog.Logger) *Registry {
	return &Registry{
		log:       log,
		clients:   make(map[string]*entry),
		bySession: make(map[string]map[string]struct{}),
	}
}

// defaultOutboxCapacity bounds how far a slow client can lag before
// try_send starts dropping broadcasts to it.
const defaultOutboxCapacity = 256

// Register creates a new client entry and returns its outbox channel for
// the transport layer to drain.
func (r *Registry) Register(clientID string, typ ClientType) <-chan any {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := &entry{
		id:     clientID,
		typ:    typ,
		outbox: make(chan any, defaultOutboxCapacity),
		done:   make(chan struct{}),
	}
	r.clients[clientID] = e
	return e.outbox
}

// Unregister removes a client and wakes any goroutine blocked in send.
// Safe to call more than once.
func (r *Registry) Unregister(clientID string) {
	r.mu.Lock()
	e, ok := r.clients[clientID]
	if ok {
		delete(r.clients, clientID)
		if e.attachedSession != "" {
			if set, ok := r.bySession[e.attachedSession]; ok {
				delete(set, clientID)
				if len(set) == 0 {
					delete(r.bySession, e.attachedSession)
				}
			}
		}
	}
	r.mu.Unlock()

	if ok {
		e.closeDone()
	}
}

// Attach records that clientID is now attached to sessionID, updating
// the reverse index. A client may be attached to at most one session at
// a time; attaching to a new session implicitly detaches from the old
// one.
func (r *Registry) Attach(clientID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.clients[clientID]
	if !ok {
		return
	}
	if e.attachedSession != "" {
		if set, ok := r.bySession[e.attachedSession]; ok {
			delete(set, clientID)
			if len(set) == 0 {
				delete(r.bySession, e.attachedSession)
			}
		}
	}
	e.attachedSession = sessionID
	if r.bySession[sessionID] == nil {
		r.bySession[sessionID] = make(map[string]struct{})
	}
	r.bySession[sessionID][clientID] = struct{}{}
}

// Detach removes clientID from its attached session, if any.
func (r *Registry) Detach(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.clients[clientID]
	if !ok || e.attachedSession == "" {
		return
	}
	if set, ok := r.bySession[e.attachedSession]; ok {
		delete(set, clientID)
		if len(set) == 0 {
			delete(r.bySession, e.attachedSession)
		}
	}
	e.attachedSession = ""
}

// SetFocus updates a client's default session/window/pane resolution.
func (r *Registry) SetFocus(clientID string, f Focus) {
	r.mu.RLock()
	e, ok := r.clients[clientID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	e.mu.Lock()
	e.focus = f
	e.mu.Unlock()
}

// GetFocus returns a client's current focus tuple.
func (r *Registry) GetFocus(clientID string) (Focus, bool) {
	r.mu.RLock()
	e, ok := r.clients[clientID]
	r.mu.RUnlock()
	if !ok {
		return Focus{}, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.focus, true
}

// ClientType reports the registered type of clientID.
func (r *Registry) ClientType(clientID string) (ClientType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.clients[clientID]
	if !ok {
		return "", false
	}
	return e.typ, true
}

// Send delivers msg to clientID, blocking until the outbox has capacity.
// A closed (unregistered) client auto-cleans up and returns false.
func (r *Registry) Send(clientID string, msg any) bool {
	r.mu.RLock()
	e, ok := r.clients[clientID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if ok := e.send(msg); !ok {
		r.Unregister(clientID)
		return false
	}
	return true
}

// TrySend delivers msg without blocking. A full outbox is dropped and
// logged; a closed client auto-unregisters.
func (r *Registry) TrySend(clientID string, msg any) bool {
	r.mu.RLock()
	e, ok := r.clients[clientID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	ok, reason := e.trySend(msg)
	switch reason {
	case "closed":
		r.Unregister(clientID)
	case "full":
		if r.log != nil {
			r.log.Warn("registry: dropping message to slow client", "client_id", clientID)
		}
	}
	return ok
}

func (r *Registry) sessionMembers(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.bySession[sessionID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

func (r *Registry) allMembers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.clients))
	for id := range r.clients {
		out = append(out, id)
	}
	return out
}

// BroadcastToSession delivers msg to every client attached to sessionID,
// via the blocking Send primitive, one client at a time: a client whose
// outbox is full delays delivery to the clients after it, though no
// registry lock is held while waiting. Returns the number of successful
// deliveries.
func (r *Registry) BroadcastToSession(sessionID string, msg any) int {
	return r.broadcast(r.sessionMembers(sessionID), "", msg, r.Send)
}

// BroadcastToSessionExcept is BroadcastToSession, skipping exceptClientID
// (used so a client doesn't receive an echo of its own request).
func (r *Registry) BroadcastToSessionExcept(sessionID, exceptClientID string, msg any) int {
	return r.broadcast(r.sessionMembers(sessionID), exceptClientID, msg, r.Send)
}

// BroadcastToAll delivers msg to every registered client, non-blocking
// (used for topology changes that must reach every client
// regardless of session attachment).
func (r *Registry) BroadcastToAll(msg any) int {
	return r.broadcast(r.allMembers(), "", msg, r.TrySend)
}

// BroadcastToAllExcept is BroadcastToAll, skipping exceptClientID.
func (r *Registry) BroadcastToAllExcept(exceptClientID string, msg any) int {
	return r.broadcast(r.allMembers(), exceptClientID, msg, r.TrySend)
}

func (r *Registry) broadcast(targets []string, except string, msg any, deliver func(string, any) bool) int {
	count := 0
	for _, id := range targets {
		if id == except {
			continue
		}
		if deliver(id, msg) {
			count++
		}
	}
	return count
}
