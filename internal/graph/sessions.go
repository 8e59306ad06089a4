package graph

import (
	"sort"
	"strconv"

	"github.com/ccmux/ccmux/internal/id"
)

// CreateSession creates a session bootstrapped with one window and one
// pane, so attach always has something to show. Rejects name
// collisions. An empty name auto-assigns the next free decimal name.
func (g *Graph) CreateSession(name string) (*Session, *Window, *Pane, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if name == "" {
		name = g.nextAutoNameLocked()
	}
	if _, exists := g.byName[name]; exists {
		return nil, nil, nil, ErrSessionNameTaken
	}

	now := g.nowMillis()
	session := &Session{
		ID:          id.New(),
		Name:        name,
		CreatedAt:   now,
		Tags:        map[string]struct{}{},
		Metadata:    map[string]string{},
		Environment: map[string]string{},
	}

	window := &Window{ID: id.New(), SessionID: session.ID, Index: 0, Name: "0", CreatedAt: now}
	session.ActiveWindowID = window.ID
	session.nextWindowIndex = 1

	pane := &Pane{
		ID:         id.New(),
		WindowID:   window.ID,
		Index:      0,
		Cols:       80,
		Rows:       24,
		State:      NormalState(),
		CreatedAt:  now,
		Scrollback: NewScrollback(1000),
		Metadata:   map[string]string{},
	}
	window.ActivePaneID = pane.ID
	window.Layout = newLeafLayout(pane.ID)
	window.nextPaneIndex = 1
	window.Panes = []*Pane{pane}
	session.Windows = []*Window{window}

	g.sessions[session.ID] = session
	g.byName[session.Name] = session.ID
	g.panes[pane.ID] = paneLocation{sessionID: session.ID, windowID: window.ID}

	return cloneSession(session), cloneWindow(window), clonePane(pane), nil
}

func (g *Graph) nextAutoNameLocked() string {
	for i := 0; ; i++ {
		name := strconv.Itoa(i)
		if _, exists := g.byName[name]; !exists {
			return name
		}
	}
}

// DestroySession removes a session and returns copies of its windows/panes
// for teardown (PTY kill, isolation-dir removal) by the caller, which is
// expected to happen outside the graph lock.
func (g *Graph) DestroySession(sessionID string) (*Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	session, ok := g.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	snapshot := cloneSession(session)

	for _, w := range session.Windows {
		for _, p := range w.Panes {
			delete(g.panes, p.ID)
		}
	}
	delete(g.sessions, sessionID)
	delete(g.byName, session.Name)
	return snapshot, nil
}

// RenameSession renames a live session, rejecting collisions with any
// other live session's name, and returns the previous name.
func (g *Graph) RenameSession(sessionID, newName string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	session, ok := g.sessions[sessionID]
	if !ok {
		return "", ErrSessionNotFound
	}
	if newName == session.Name {
		return session.Name, nil
	}
	if _, exists := g.byName[newName]; exists {
		return "", ErrSessionNameTaken
	}

	previous := session.Name
	delete(g.byName, previous)
	session.Name = newName
	g.byName[newName] = session.ID
	return previous, nil
}

// ListSessions returns read-only snapshots of all sessions, optionally
// filtered to those carrying tag. Pass "" for no filter.
func (g *Graph) ListSessions(tag string) []*Session {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*Session, 0, len(g.sessions))
	for _, s := range g.sessions {
		if tag != "" {
			if _, ok := s.Tags[tag]; !ok {
				continue
			}
		}
		out = append(out, cloneSession(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

// GetSession returns a snapshot of a session by id.
func (g *Graph) GetSession(sessionID string) (*Session, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneSession(s), nil
}

// GetSessionByName resolves a session by its unique name.
func (g *Graph) GetSessionByName(name string) (*Session, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	sessionID, ok := g.byName[name]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneSession(g.sessions[sessionID]), nil
}

// SetTags replaces a session's tag set.
func (g *Graph) SetTags(sessionID string, tags []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.Tags = make(map[string]struct{}, len(tags))
	for _, t := range tags {
		s.Tags[t] = struct{}{}
	}
	return nil
}

// GetTags returns a session's tags as a sorted slice.
func (g *Graph) GetTags(sessionID string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	out := make([]string, 0, len(s.Tags))
	for t := range s.Tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

// SetMetadata merges kv into a session's metadata map (insertion-
// unordered, unique keys).
func (g *Graph) SetMetadata(sessionID string, kv map[string]string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	for k, v := range kv {
		s.Metadata[k] = v
	}
	return nil
}

// GetMetadata returns a copy of a session's metadata map.
func (g *Graph) GetMetadata(sessionID string) (map[string]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return copyEnvMap(s.Metadata), nil
}

// SetEnvironment merges kv into a session's environment map. Values set
// here are injected into every PTY subsequently spawned within the
// session.
func (g *Graph) SetEnvironment(sessionID string, kv map[string]string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	for k, v := range kv {
		s.Environment[k] = v
	}
	return nil
}

// GetEnvironment returns a copy of a session's environment map.
func (g *Graph) GetEnvironment(sessionID string) (map[string]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return copyEnvMap(s.Environment), nil
}

// SetStatus stores the worker-status JSON payload.
func (g *Graph) SetStatus(sessionID string, status []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.Status = append([]byte(nil), status...)
	return nil
}

// SendOrchestration appends a message to a target session's inbox,
// drained by PollMessages.
func (g *Graph) SendOrchestration(fromSessionID, toSessionID string, body []byte, at uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[toSessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.Inbox = append(s.Inbox, OrchestrationMessage{
		FromSessionID: fromSessionID,
		Body:          append([]byte(nil), body...),
		ReceivedAt:    at,
	})
	return nil
}

// PollMessages drains and returns a session's inbox.
func (g *Graph) PollMessages(sessionID string) ([]OrchestrationMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	out := s.Inbox
	s.Inbox = nil
	return out, nil
}
