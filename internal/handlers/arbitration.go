package handlers

import (
	"github.com/ccmux/ccmux/internal/arbiter"
	"github.com/ccmux/ccmux/internal/errs"
)

// AuditSink receives a record of every arbitration denial, for the
// queryable audit index. internal/auditlog implements it; a nil sink
// disables auditing.
type AuditSink interface {
	RecordDenial(clientID, resourceKind, resourceID, action string, remainingMs int64)
}

// checkArbiter enforces human priority at the handler boundary: a human
// (Tui) client's call always passes (and refreshes the TTL); an agent
// (Mcp) client's call is rejected with UserPriorityActive while a human
// has recently touched the same resource/action pair. Nil Arbiter (tests
// that don't need arbitration) always allows.
func (d *Dispatcher) checkArbiter(cc clientCtx, resource arbiter.Resource, action arbiter.Action) *errs.Error {
	if d.deps.Arbiter == nil {
		return nil
	}
	decision := d.deps.Arbiter.Check(resource, action, cc.typ)
	if !decision.Allowed {
		if d.deps.Audit != nil {
			d.deps.Audit.RecordDenial(cc.clientID, string(resource.Kind), resource.ID, string(action), int64(decision.RemainingMs))
		}
		return errs.FromArbiterDecision(decision)
	}
	return nil
}
