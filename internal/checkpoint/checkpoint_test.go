package checkpoint

import (
	"testing"
	"time"

	"github.com/ccmux/ccmux/internal/graph"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sampleSessions() []graph.SessionSnapshot {
	return []graph.SessionSnapshot{
		{
			ID:   "s1",
			Name: "alpha",
			Windows: []graph.WindowSnapshot{
				{
					ID: "w1", SessionID: "s1", Name: "0",
					Panes: []graph.PaneSnapshot{
						{ID: "p1", WindowID: "w1", Cols: 80, Rows: 24, State: graph.NormalState()},
					},
				},
			},
		},
	}
}

func TestWriteThenLoadLatestRoundTrips(t *testing.T) {
	dir := t.TempDir()
	store, err := New(Options{Dir: dir, Clock: fixedClock(time.Unix(100, 0))})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if _, err := store.Write(42, sampleSessions()); err != nil {
		t.Fatalf("write: %v", err)
	}

	snap, ok, err := store.LoadLatest()
	if err != nil {
		t.Fatalf("load latest: %v", err)
	}
	if !ok {
		t.Fatalf("expected a checkpoint to be found")
	}
	if snap.Sequence != 42 {
		t.Fatalf("expected sequence 42, got %d", snap.Sequence)
	}
	if len(snap.Sessions) != 1 || snap.Sessions[0].ID != "s1" {
		t.Fatalf("unexpected sessions: %+v", snap.Sessions)
	}
}

func TestLoadLatestPicksHighestSequence(t *testing.T) {
	dir := t.TempDir()
	store, err := New(Options{Dir: dir, Clock: fixedClock(time.Unix(0, 0))})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	store.retention = 10
	for _, seq := range []uint64{1, 5, 3} {
		if _, err := store.Write(seq, sampleSessions()); err != nil {
			t.Fatalf("write %d: %v", seq, err)
		}
	}
	snap, ok, err := store.LoadLatest()
	if err != nil || !ok {
		t.Fatalf("load latest: ok=%v err=%v", ok, err)
	}
	if snap.Sequence != 5 {
		t.Fatalf("expected highest sequence 5, got %d", snap.Sequence)
	}
}

func TestRetentionPrunesOldCheckpoints(t *testing.T) {
	dir := t.TempDir()
	store, err := New(Options{Dir: dir, Retention: 2, Clock: fixedClock(time.Unix(0, 0))})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, seq := range []uint64{1, 2, 3, 4} {
		if _, err := store.Write(seq, sampleSessions()); err != nil {
			t.Fatalf("write %d: %v", seq, err)
		}
	}
	files, err := store.listBySequenceDesc()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected retention to keep exactly 2 files, got %d", len(files))
	}
	if files[0].seq != 4 || files[1].seq != 3 {
		t.Fatalf("expected the two most recent checkpoints kept, got %+v", files)
	}
}

func TestLoadLatestOnEmptyDirReturnsNotOK(t *testing.T) {
	dir := t.TempDir()
	store, err := New(Options{Dir: dir, Clock: fixedClock(time.Unix(0, 0))})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, ok, err := store.LoadLatest()
	if err != nil {
		t.Fatalf("load latest: %v", err)
	}
	if ok {
		t.Fatalf("expected no checkpoint in an empty directory")
	}
}
