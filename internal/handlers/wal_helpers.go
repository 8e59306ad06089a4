package handlers

import (
	"github.com/ccmux/ccmux/internal/errs"
	"github.com/ccmux/ccmux/internal/wal"
)

// appendWAL is a nil-safe wrapper around (*wal.WAL).Append: handlers call
// this unconditionally so tests that construct a Dispatcher with a nil
// WAL (no durability needed) don't have to special-case every call site.
// A failed append is an InternalError the handler must surface — the
// mutation cannot be acknowledged if the record that would replay it was
// never written.
func (d *Dispatcher) appendWAL(variant wal.Variant, payload any) *errs.Error {
	if d.deps.WAL == nil {
		return nil
	}
	if _, err := d.deps.WAL.Append(variant, payload); err != nil {
		d.warnf("wal append %s failed: %v", variant, err)
		return errs.New(errs.InternalError, "failed to persist "+string(variant)+" record")
	}
	return nil
}
