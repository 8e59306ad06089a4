package recovery

import (
	"log/slog"

	"github.com/ccmux/ccmux/internal/checkpoint"
	"github.com/ccmux/ccmux/internal/graph"
	"github.com/ccmux/ccmux/internal/wal"
)

// Paths locates the on-disk artifacts recovery needs.
type Paths struct {
	CheckpointDir string
	WALPath       string
}

// State is the RecoveryState: the folded session graph plus
// bookkeeping about how it was assembled.
type State struct {
	Sessions         []graph.SessionSnapshot
	WALReplayedCount int
	CleanShutdown    bool
	Warnings         []string
	BaseSequence     uint64
	LatestSequence   uint64
}

// Recover loads the latest checkpoint (if any) and replays WAL entries
// written after it, producing a State ready for Restore. It performs no
// I/O beyond reading; the caller decides whether/when to spawn PTYs.
func Recover(paths Paths, cleanShutdown bool, log *slog.Logger) (State, error) {
	store, err := checkpoint.New(checkpoint.Options{Dir: paths.CheckpointDir})
	if err != nil {
		return State{}, err
	}

	var base []graph.SessionSnapshot
	var baseSeq uint64
	snap, ok, err := store.LoadLatest()
	if err != nil {
		return State{}, err
	}
	if ok {
		base = snap.Sessions
		baseSeq = snap.Sequence
	}

	records, err := wal.ReadAfter(paths.WALPath, baseSeq, log)
	if err != nil {
		return State{}, err
	}

	replayed, warnings := ReplayAll(base, records, log)

	latestSeq := baseSeq
	if n := len(records); n > 0 {
		latestSeq = records[n-1].Sequence
	}

	return State{
		Sessions:         replayed,
		WALReplayedCount: len(records),
		CleanShutdown:    cleanShutdown,
		Warnings:         warnings,
		BaseSequence:     baseSeq,
		LatestSequence:   latestSeq,
	}, nil
}
