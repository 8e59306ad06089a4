package auditlog

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "audit.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndQuerySideband(t *testing.T) {
	store := openTestStore(t)
	ts := time.Unix(3000, 0)
	store.now = func() time.Time { return ts }

	store.RecordSideband("pane-1", "sess-1", "spawn", `direction="vertical"`, 0)
	store.RecordSideband("pane-1", "sess-1", "notify", "", 12)
	store.RecordSideband("pane-2", "sess-2", "input", `pane="3"`, 5)

	all, err := store.RecentSideband("", 10)
	if err != nil {
		t.Fatalf("RecentSideband: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("count = %d, want 3", len(all))
	}
	if all[0].Command != "input" {
		t.Fatalf("newest-first ordering broken: first = %s", all[0].Command)
	}
	if all[0].CreatedAt != ts.UnixMilli() {
		t.Fatalf("created_at = %d, want %d", all[0].CreatedAt, ts.UnixMilli())
	}

	scoped, err := store.RecentSideband("sess-1", 10)
	if err != nil {
		t.Fatalf("RecentSideband scoped: %v", err)
	}
	if len(scoped) != 2 {
		t.Fatalf("scoped count = %d, want 2", len(scoped))
	}
}

func TestRecordAndQueryDenials(t *testing.T) {
	store := openTestStore(t)

	store.RecordDenial("c7", "pane", "pane-9", "layout", 2400)
	denials, err := store.RecentDenials(10)
	if err != nil {
		t.Fatalf("RecentDenials: %v", err)
	}
	if len(denials) != 1 {
		t.Fatalf("count = %d, want 1", len(denials))
	}
	d := denials[0]
	if d.ClientID != "c7" || d.ResourceKind != "pane" || d.RemainingMs != 2400 {
		t.Fatalf("denial = %+v", d)
	}
}

func TestNilStoreIsNoop(t *testing.T) {
	var store *Store
	store.RecordSideband("p", "s", "spawn", "", 0)
	store.RecordDenial("c", "pane", "p", "layout", 1)
	if cmds, err := store.RecentSideband("", 5); err != nil || cmds != nil {
		t.Fatalf("nil RecentSideband = %v, %v", cmds, err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
}

func TestReopenKeepsRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.db")

	store, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	store.RecordSideband("pane-1", "sess-1", "mail", "", 3)
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	rows, err := reopened.RecentSideband("", 5)
	if err != nil {
		t.Fatalf("RecentSideband: %v", err)
	}
	if len(rows) != 1 || rows[0].Command != "mail" {
		t.Fatalf("rows = %+v", rows)
	}
}
