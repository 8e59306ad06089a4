// Package id provides identifier and clock services shared by every
// component that needs a stable entity identity or a monotonic-enough
// timestamp for WAL records and checkpoints.
package id

import (
	"time"

	"github.com/google/uuid"
)

// New returns a fresh UUIDv4 string. Panics are impossible: uuid.NewRandom
// only fails if the system RNG is broken, in which case the process is
// already unusable.
func New() string {
	return uuid.NewString()
}

// Clock supplies the current time. Production code uses Wall; tests
// inject a fixed or stepped clock.
type Clock func() time.Time

// Wall is the production clock.
func Wall() time.Time {
	return time.Now()
}

// UnixMillis converts t to the millisecond-resolution timestamp stored in
// WAL records and checkpoints.
func UnixMillis(t time.Time) uint64 {
	return uint64(t.UnixMilli())
}
