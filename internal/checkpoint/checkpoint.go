// Package checkpoint implements the periodic full-state snapshot
// store: atomic writes (write new file, fsync, rename over the old
// one), bounded retention, and load-latest for startup recovery.
// Snapshots are encoded with vmihailenco/msgpack/v5, the same
// self-describing binary codec the wire protocol uses, rather than a
// second ad hoc format.
package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ccmux/ccmux/internal/graph"
	"github.com/ccmux/ccmux/internal/id"
)

const filePrefix = "checkpoint-"
const fileSuffix = ".bin"

// Snapshot is the complete on-disk representation of a checkpoint.
type Snapshot struct {
	Sequence  uint64
	Timestamp uint64
	Sessions  []graph.SessionSnapshot
}

// Store manages the checkpoints directory.
type Store struct {
	dir       string
	retention int
	clock     id.Clock
}

// Options configures a Store.
type Options struct {
	Dir       string
	Retention int // default 3,
	Clock     id.Clock
}

func New(opts Options) (*Store, error) {
	if opts.Retention <= 0 {
		opts.Retention = 3
	}
	if opts.Clock == nil {
		opts.Clock = id.Wall
	}
	if err := os.MkdirAll(opts.Dir, 0o700); err != nil {
		return nil, err
	}
	return &Store{dir: opts.Dir, retention: opts.Retention, clock: opts.Clock}, nil
}

// Write atomically persists a snapshot at the given WAL sequence: encode
// to a temp file in the checkpoints directory, fsync, then rename to
// checkpoint-<seq>.bin. After a successful write, older
// checkpoints beyond the retention count are removed.
func (s *Store) Write(sequence uint64, sessions []graph.SessionSnapshot) (string, error) {
	snap := Snapshot{
		Sequence:  sequence,
		Timestamp: id.UnixMillis(s.clock()),
		Sessions:  sessions,
	}
	body, err := msgpack.Marshal(&snap)
	if err != nil {
		return "", err
	}

	final := filepath.Join(s.dir, fmt.Sprintf("%s%020d%s", filePrefix, sequence, fileSuffix))
	tmp := final + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(body); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", err
	}

	s.enforceRetention()
	return final, nil
}

// LoadLatest scans the checkpoints directory and returns the
// highest-sequence valid checkpoint. ok is false if none exists or every
// candidate fails to decode (each is tried in descending sequence order;
// a corrupt newest checkpoint falls back to the next-most-recent rather
// than failing startup outright).
func (s *Store) LoadLatest() (Snapshot, bool, error) {
	files, err := s.listBySequenceDesc()
	if err != nil {
		return Snapshot{}, false, err
	}
	for _, cf := range files {
		body, err := os.ReadFile(filepath.Join(s.dir, cf.name))
		if err != nil {
			continue
		}
		var snap Snapshot
		if err := msgpack.Unmarshal(body, &snap); err != nil {
			continue
		}
		return snap, true, nil
	}
	return Snapshot{}, false, nil
}

type checkpointFile struct {
	name string
	seq  uint64
}

func (s *Store) listBySequenceDesc() ([]checkpointFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []checkpointFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		seqStr := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
		seq, err := strconv.ParseUint(seqStr, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, checkpointFile{name: name, seq: seq})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq > out[j].seq })
	return out, nil
}

// enforceRetention deletes all but the retention most recent checkpoints.
// Errors removing an individual file are ignored: a leftover old
// checkpoint is a disk-space nuisance, not a correctness problem.
func (s *Store) enforceRetention() {
	files, err := s.listBySequenceDesc()
	if err != nil {
		return
	}
	for _, cf := range files[min(len(files), s.retention):] {
		os.Remove(filepath.Join(s.dir, cf.name))
	}
}
