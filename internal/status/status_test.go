package status

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ccmux/ccmux/internal/graph"
	"github.com/ccmux/ccmux/internal/registry"
)

func newTestServer(t *testing.T) (*Server, *graph.Graph) {
	t.Helper()
	g := graph.New(func() time.Time { return time.Unix(4000, 0) })
	return New(g, registry.New(nil), nil, nil), g
}

func TestHealthRoute(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/health", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSessionsRoute(t *testing.T) {
	s, g := newTestServer(t)
	if _, _, _, err := g.CreateSession("alpha"); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, _, _, err := g.CreateSession("beta"); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/sessions", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	var views []sessionView
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("session count = %d, want 2", len(views))
	}
	for _, v := range views {
		if len(v.Windows) != 1 || len(v.Windows[0].Panes) != 1 {
			t.Fatalf("bootstrap topology missing in view %+v", v)
		}
	}
}

func TestSessionByIDRoute(t *testing.T) {
	s, g := newTestServer(t)
	session, _, _, err := g.CreateSession("alpha")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/sessions/"+session.ID, nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	var v sessionView
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Name != "alpha" {
		t.Fatalf("name = %q", v.Name)
	}

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/sessions/nonexistent", nil))
	if rec.Code != 404 {
		t.Fatalf("missing session status = %d, want 404", rec.Code)
	}
}

func TestAuditRoutesDisabledWithoutStore(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/audit/sideband", nil))
	if rec.Code != 404 {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
