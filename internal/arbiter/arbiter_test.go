package arbiter

import (
	"testing"
	"time"

	"github.com/ccmux/ccmux/internal/registry"
)

func TestHumanActivityBlocksAgentWithinTTL(t *testing.T) {
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	a := New(3*time.Second, clock)

	res := Resource{Kind: ResourcePane, ID: "p1"}
	d := a.Check(res, ActionLayout, registry.ClientTUI)
	if !d.Allowed {
		t.Fatalf("human should always be allowed")
	}

	d = a.Check(res, ActionLayout, registry.ClientMCP)
	if d.Allowed {
		t.Fatalf("expected agent to be blocked immediately after human activity")
	}
	if d.RemainingMs == 0 {
		t.Fatalf("expected nonzero remaining_ms")
	}
}

func TestAgentAllowedAfterTTLExpires(t *testing.T) {
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	a := New(3*time.Second, clock)

	res := Resource{Kind: ResourcePane, ID: "p1"}
	a.Check(res, ActionLayout, registry.ClientTUI)

	now = now.Add(4 * time.Second)
	d := a.Check(res, ActionLayout, registry.ClientMCP)
	if !d.Allowed {
		t.Fatalf("expected agent allowed once TTL has elapsed")
	}
}

func TestAgentAllowedWithNoPriorHumanActivity(t *testing.T) {
	a := New(3*time.Second, func() time.Time { return time.Unix(0, 0) })
	res := Resource{Kind: ResourceSession, ID: "s1"}

	d := a.Check(res, ActionInput, registry.ClientMCP)
	if !d.Allowed {
		t.Fatalf("expected first agent action allowed with no prior human activity")
	}
}

func TestDifferentActionsOnSameResourceAreIndependent(t *testing.T) {
	now := time.Unix(0, 0)
	a := New(3*time.Second, func() time.Time { return now })
	res := Resource{Kind: ResourcePane, ID: "p1"}

	a.Check(res, ActionFocus, registry.ClientTUI)
	d := a.Check(res, ActionLayout, registry.ClientMCP)
	if !d.Allowed {
		t.Fatalf("expected unrelated action to be unaffected by activity on a different action")
	}
}

func TestSweepRemovesExpiredEntries(t *testing.T) {
	now := time.Unix(0, 0)
	a := New(1*time.Second, func() time.Time { return now })
	res := Resource{Kind: ResourcePane, ID: "p1"}
	a.RecordActivity(res, ActionLayout)

	if len(a.expiry) != 1 {
		t.Fatalf("expected one tracked entry")
	}
	now = now.Add(2 * time.Second)
	a.Sweep()
	if len(a.expiry) != 0 {
		t.Fatalf("expected expired entry swept")
	}
}
