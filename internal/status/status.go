// Package status serves a read-only HTTP+WebSocket monitoring surface
// for dashboards and ops tooling: session topology as JSON, the audit
// index, and a live stream of the same topology events the wire
// protocol broadcasts. It is strictly an observer — nothing here
// mutates the graph — and is disabled unless status_addr is configured.
// Routing is gorilla/mux with method-scoped routes; the WebSocket side
// uses a package-level Upgrader, a writeMu per connection, write
// deadlines, and a ping loop.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/ccmux/ccmux/internal/auditlog"
	"github.com/ccmux/ccmux/internal/graph"
	"github.com/ccmux/ccmux/internal/registry"
	"github.com/ccmux/ccmux/internal/wire"
)

const (
	writeDeadline = 5 * time.Second
	pingInterval  = 30 * time.Second
	readDeadline  = 90 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	// The listener binds to an operator-chosen address, normally
	// 127.0.0.1; origin checks add nothing on localhost.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// hubClientID is the pseudo-client the status server registers in the
// client registry so it receives BroadcastToAll topology events.
const hubClientID = "status-hub"

// Server is the monitoring surface. Zero mutations: every route reads.
type Server struct {
	graph    *graph.Graph
	registry *registry.Registry
	audit    *auditlog.Store
	log      *slog.Logger

	listener net.Listener
	httpSrv  *http.Server

	mu    sync.Mutex
	conns map[*wsConn]struct{}

	stop     chan struct{}
	stopOnce sync.Once
}

type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// event is the JSON envelope streamed to WebSocket subscribers.
type event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// New builds a status Server; audit and log may be nil.
func New(g *graph.Graph, reg *registry.Registry, audit *auditlog.Store, log *slog.Logger) *Server {
	return &Server{
		graph:    g,
		registry: reg,
		audit:    audit,
		log:      log,
		conns:    make(map[*wsConn]struct{}),
		stop:     make(chan struct{}),
	}
}

// Start binds addr and begins serving. It registers the status hub as a
// registry client so topology broadcasts reach the event stream.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("status: listen %s: %w", addr, err)
	}
	s.listener = ln
	s.httpSrv = &http.Server{Handler: s.Router()}

	outbox := s.registry.Register(hubClientID, registry.ClientOther)
	go s.pumpEvents(outbox)

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			if s.log != nil {
				s.log.Error("status: serve failed", "error", err)
			}
		}
	}()
	return nil
}

// Addr reports the bound address (useful with ":0").
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the HTTP server down and closes every live WebSocket.
func (s *Server) Stop(ctx context.Context) {
	s.stopOnce.Do(func() { close(s.stop) })
	s.registry.Unregister(hubClientID)
	s.mu.Lock()
	for c := range s.conns {
		c.conn.Close()
	}
	s.mu.Unlock()
	if s.httpSrv != nil {
		_ = s.httpSrv.Shutdown(ctx)
	}
}

// Router builds the route table; exported so tests can drive it with
// httptest without binding a socket.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions", s.handleSessions).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{id}", s.handleSession).Methods(http.MethodGet)
	r.HandleFunc("/api/audit/sideband", s.handleAuditSideband).Methods(http.MethodGet)
	r.HandleFunc("/api/audit/denials", s.handleAuditDenials).Methods(http.MethodGet)
	r.HandleFunc("/ws/events", s.handleEvents).Methods(http.MethodGet)
	return r
}

// -- JSON views ---------------------------------------------------------

type paneView struct {
	ID        string `json:"id"`
	Index     uint32 `json:"index"`
	Cols      uint16 `json:"cols"`
	Rows      uint16 `json:"rows"`
	State     string `json:"state"`
	AgentType string `json:"agent_type,omitempty"`
	Title     string `json:"title,omitempty"`
	IsMirror  bool   `json:"is_mirror,omitempty"`
}

type windowView struct {
	ID     string     `json:"id"`
	Index  uint32     `json:"index"`
	Name   string     `json:"name"`
	Active string     `json:"active_pane_id,omitempty"`
	Panes  []paneView `json:"panes"`
}

type sessionView struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	CreatedAt uint64       `json:"created_at"`
	Tags      []string     `json:"tags,omitempty"`
	Windows   []windowView `json:"windows"`
}

func viewOf(s wire.Session) sessionView {
	sv := sessionView{ID: s.ID, Name: s.Name, CreatedAt: s.CreatedAt, Tags: s.Tags}
	for _, w := range s.Windows {
		wv := windowView{ID: w.ID, Index: w.Index, Name: w.Name, Active: w.ActivePaneID}
		for _, p := range w.Panes {
			wv.Panes = append(wv.Panes, paneView{
				ID:        p.ID,
				Index:     p.Index,
				Cols:      p.Cols,
				Rows:      p.Rows,
				State:     p.State.Kind,
				AgentType: p.State.AgentType,
				Title:     p.Title,
				IsMirror:  p.IsMirror,
			})
		}
		sv.Windows = append(sv.Windows, wv)
	}
	return sv
}

// -- handlers -----------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.graph.ListSessions(r.URL.Query().Get("tag"))
	out := make([]sessionView, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, viewOf(wire.FromSession(session)))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.graph.GetSession(mux.Vars(r)["id"])
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, viewOf(wire.FromSession(session)))
}

func (s *Server) handleAuditSideband(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "audit log disabled"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := s.audit.RecentSideband(r.URL.Query().Get("session"), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleAuditDenials(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "audit log disabled"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := s.audit.RecentDenials(limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// -- event stream -------------------------------------------------------

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	wc := &wsConn{conn: conn}
	s.mu.Lock()
	s.conns[wc] = struct{}{}
	s.mu.Unlock()

	conn.SetReadLimit(1024)
	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	go s.pingLoop(wc)

	// Subscribers send nothing; the read loop exists to notice the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.dropConn(wc)
}

func (s *Server) pingLoop(wc *wsConn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			wc.writeMu.Lock()
			wc.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			err := wc.conn.WriteMessage(websocket.PingMessage, nil)
			wc.writeMu.Unlock()
			if err != nil {
				s.dropConn(wc)
				return
			}
		case <-s.stop:
			return
		}
	}
}

func (s *Server) dropConn(wc *wsConn) {
	s.mu.Lock()
	_, ok := s.conns[wc]
	delete(s.conns, wc)
	s.mu.Unlock()
	if ok {
		wc.conn.Close()
	}
}

// pumpEvents drains the status hub's registry outbox and fans each push
// out to every WebSocket subscriber as a JSON event envelope.
func (s *Server) pumpEvents(outbox <-chan any) {
	for {
		select {
		case item := <-outbox:
			push, ok := item.(wire.Pushable)
			if !ok {
				continue
			}
			raw, err := json.Marshal(event{Type: push.WireType(), Payload: push})
			if err != nil {
				continue
			}
			s.broadcastRaw(raw)
		case <-s.stop:
			return
		}
	}
}

func (s *Server) broadcastRaw(raw []byte) {
	s.mu.Lock()
	targets := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	for _, wc := range targets {
		wc.writeMu.Lock()
		wc.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		err := wc.conn.WriteMessage(websocket.TextMessage, raw)
		wc.writeMu.Unlock()
		if err != nil {
			s.dropConn(wc)
		}
	}
}
