package wal

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"os"
	"sync"
	"time"

	"github.com/ccmux/ccmux/internal/id"
)

// Frame layout, big-endian, per record:
//
//	4 bytes total payload length (sequence through JSON payload, excluding CRC)
//	8 bytes sequence
//	8 bytes timestamp (unix millis)
//	2 bytes variant length
//	N bytes variant string
//	M bytes JSON payload
//	4 bytes CRC32 (IEEE) over everything from sequence through payload
//
// A short read at EOF (fewer bytes available than the declared length, or
// fewer than the 4-byte length prefix itself) means the writer was
// interrupted mid-record: the tail is discarded and every record before
// it remains valid and readable. A CRC mismatch on a
// fully-read record is treated the same way for that one record: the
// length prefix lets the reader step cleanly over it and keep going.
const (
	lengthPrefixSize = 4
	crcSize          = 4
	headerFixedSize  = 8 + 8 + 2 // sequence + timestamp + variant length
)

// Options configures a WAL's durability/throughput tradeoff.
type Options struct {
	// GroupCommitWindow batches concurrent Append calls into one fsync
	// per window. Zero means fsync on every Append.
	GroupCommitWindow time.Duration
	// PersistPaneOutput, when false (the default), makes Append silently
	// drop PaneOutput records instead of writing them: pane output is
	// reconstructible from scrollback and checkpoints, so persisting it
	// is an opt-in cost.
	PersistPaneOutput bool
	Clock             id.Clock
}

// WAL is an append-only log of framed, checksummed records.
type WAL struct {
	mu       sync.Mutex
	f        *os.File
	w        *bufio.Writer
	seq      uint64
	opts     Options
	dirty    bool
	lastSync time.Time

	commitMu   sync.Mutex
	commitCond *sync.Cond
	closed     bool
	stopCommit chan struct{}
	commitDone chan struct{}
}

// Open opens (creating if needed) the WAL file at path for appending. Any
// existing bytes are preserved; sequence numbering continues from the
// highest sequence found by scanning the file once at open time.
func Open(path string, opts Options) (*WAL, error) {
	if opts.Clock == nil {
		opts.Clock = id.Wall
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}

	lastSeq, err := scanLastSequence(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, os.SEEK_END); err != nil {
		f.Close()
		return nil, err
	}

	wal := &WAL{
		f:    f,
		w:    bufio.NewWriter(f),
		seq:  lastSeq,
		opts: opts,
	}
	wal.commitCond = sync.NewCond(&wal.commitMu)

	if opts.GroupCommitWindow > 0 {
		wal.stopCommit = make(chan struct{})
		wal.commitDone = make(chan struct{})
		go wal.commitLoop()
	}
	return wal, nil
}

// scanLastSequence reads the file from the start, returning the sequence
// of the last well-formed record (0 if the file is empty or has none).
// It uses the same torn/corrupt-record tolerance as ReadAfter.
func scanLastSequence(f *os.File) (uint64, error) {
	if _, err := f.Seek(0, os.SEEK_SET); err != nil {
		return 0, err
	}
	r := &reader{f: f}
	var last uint64
	for {
		rec, ok, err := r.next()
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		last = rec.Sequence
	}
	return last, nil
}

// Append writes one record and returns its assigned sequence number. With
// GroupCommitWindow == 0 the record is fsynced before Append returns; with
// a positive window, Append returns once the record is visible to readers
// of the file (buffered write flushed to the OS) and a background loop
// fsyncs at most once per window.
func (w *WAL) Append(variant Variant, payload any) (uint64, error) {
	if variant == PaneOutput && !w.opts.PersistPaneOutput {
		return 0, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.seq++
	seq := w.seq
	ts := id.UnixMillis(w.opts.Clock())

	frame := encodeFrame(seq, ts, variant, body)
	if _, err := w.w.Write(frame); err != nil {
		return 0, err
	}
	if err := w.w.Flush(); err != nil {
		return 0, err
	}
	w.dirty = true

	if w.opts.GroupCommitWindow <= 0 {
		if err := w.f.Sync(); err != nil {
			return 0, err
		}
		w.dirty = false
	}
	return seq, nil
}

// Sequence returns the sequence number of the most recently appended
// record (0 if the log is empty). The periodic checkpointer reads it
// before snapshotting so the CheckpointMarker never claims coverage of
// records the snapshot might have missed.
func (w *WAL) Sequence() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}

// Sync forces any buffered writes to stable storage.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.dirty {
		return nil
	}
	if err := w.f.Sync(); err != nil {
		return err
	}
	w.dirty = false
	return nil
}

func (w *WAL) commitLoop() {
	defer close(w.commitDone)
	ticker := time.NewTicker(w.opts.GroupCommitWindow)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.Sync()
		case <-w.stopCommit:
			w.Sync()
			return
		}
	}
}

// Shutdown flushes, fsyncs, and closes the WAL.
func (w *WAL) Shutdown() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	if w.stopCommit != nil {
		close(w.stopCommit)
		<-w.commitDone
	}
	if err := w.Sync(); err != nil {
		return err
	}
	return w.f.Close()
}

func encodeFrame(seq, ts uint64, variant Variant, body []byte) []byte {
	vbytes := []byte(variant)
	payloadLen := headerFixedSize + len(vbytes) + len(body)
	total := lengthPrefixSize + payloadLen + crcSize

	buf := make([]byte, total)
	binary.BigEndian.PutUint32(buf[0:4], uint32(payloadLen))

	cursor := buf[4:]
	binary.BigEndian.PutUint64(cursor[0:8], seq)
	binary.BigEndian.PutUint64(cursor[8:16], ts)
	binary.BigEndian.PutUint16(cursor[16:18], uint16(len(vbytes)))
	copy(cursor[18:18+len(vbytes)], vbytes)
	copy(cursor[18+len(vbytes):], body)

	sum := crc32.ChecksumIEEE(cursor[:payloadLen])
	binary.BigEndian.PutUint32(buf[4+payloadLen:], sum)
	return buf
}
