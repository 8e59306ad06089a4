package graph

import "github.com/ccmux/ccmux/internal/id"

// CreateWindow creates a new window in session, assigning the next
// index. name defaults to the index rendered as decimal.
func (g *Graph) CreateWindow(sessionID, name string) (*Window, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	session, ok := g.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	index := session.nextWindowIndex
	session.nextWindowIndex++
	if name == "" {
		name = itoa(index)
	}

	window := &Window{
		ID:        id.New(),
		SessionID: sessionID,
		Index:     index,
		Name:      name,
		CreatedAt: g.nowMillis(),
	}
	session.Windows = append(session.Windows, window)
	if session.ActiveWindowID == "" {
		session.ActiveWindowID = window.ID
	}
	return cloneWindow(window), nil
}

// RenameWindow changes a window's name, returning the previous name.
func (g *Graph) RenameWindow(windowID, newName string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, window, err := g.findWindowLocked(windowID)
	if err != nil {
		return "", err
	}
	previous := window.Name
	window.Name = newName
	return previous, nil
}

// DestroySession-adjacent: DestroyWindow removes a window from its
// session. If it was active, the "next sibling by index, else previous,
// else none" rule picks the new active window. Returns the removed
// window's panes for the caller to tear down PTYs outside the lock.
func (g *Graph) DestroyWindow(windowID string) (*Session, []*Pane, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	session, window, err := g.findWindowLocked(windowID)
	if err != nil {
		return nil, nil, err
	}

	idx := -1
	for i, w := range session.Windows {
		if w.ID == windowID {
			idx = i
			break
		}
	}
	panesOut := make([]*Pane, len(window.Panes))
	copy(panesOut, window.Panes)
	for _, p := range window.Panes {
		delete(g.panes, p.ID)
	}

	session.Windows = append(session.Windows[:idx], session.Windows[idx+1:]...)
	if session.ActiveWindowID == windowID {
		session.ActiveWindowID = pickSiblingWindow(session.Windows, idx)
	}
	return cloneSession(session), panesOut, nil
}

func pickSiblingWindow(windows []*Window, removedIdx int) string {
	if len(windows) == 0 {
		return ""
	}
	if removedIdx < len(windows) {
		return windows[removedIdx].ID
	}
	return windows[len(windows)-1].ID
}

// SetActiveWindow makes windowID the session's active window; it must
// belong to that session.
func (g *Graph) SetActiveWindow(sessionID, windowID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	session, ok := g.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	for _, w := range session.Windows {
		if w.ID == windowID {
			session.ActiveWindowID = windowID
			return nil
		}
	}
	return ErrWindowNotFound
}

// ListWindows returns snapshots of a session's windows in order.
func (g *Graph) ListWindows(sessionID string) ([]*Window, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	session, ok := g.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	out := make([]*Window, 0, len(session.Windows))
	for _, w := range session.Windows {
		out = append(out, cloneWindow(w))
	}
	return out, nil
}

func (g *Graph) findWindowLocked(windowID string) (*Session, *Window, error) {
	for _, s := range g.sessions {
		for _, w := range s.Windows {
			if w.ID == windowID {
				return s, w, nil
			}
		}
	}
	return nil, nil, ErrWindowNotFound
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	digits := [10]byte{}
	i := len(digits)
	for v > 0 {
		i--
		digits[i] = byte('0' + v%10)
		v /= 10
	}
	return string(digits[i:])
}
