// Package arbiter implements human/agent arbitration over structural
// operations: a short-TTL map recording
// the most recent human activity per (resource, action), used to make
// agent-originated structural mutations back off while a human is
// actively working the same resource. A last-activity timestamp per
// (resource, action) pair, compared against a TTL, yields an explicit
// Allowed/Blocked decision.
package arbiter

import (
	"sync"
	"time"

	"github.com/ccmux/ccmux/internal/id"
	"github.com/ccmux/ccmux/internal/registry"
)

// ResourceKind tags which entity an arbitration key refers to.
type ResourceKind string

const (
	ResourceSession ResourceKind = "session"
	ResourceWindow  ResourceKind = "window"
	ResourcePane    ResourceKind = "pane"
)

// Resource identifies the entity a structural action targets.
type Resource struct {
	Kind ResourceKind
	ID   string
}

// Action enumerates the structural operation kinds guarded by
// arbitration.
type Action string

const (
	ActionLayout Action = "layout"
	ActionInput  Action = "input"
	ActionFocus  Action = "focus"
)

type key struct {
	resource Resource
	action   Action
}

// Decision is the result of Check.
type Decision struct {
	Allowed     bool
	RemainingMs uint64
}

// Arbiter is the single owned TTL map behind a mutex.
type Arbiter struct {
	mu     sync.Mutex
	expiry map[key]time.Time
	ttl    time.Duration
	clock  id.Clock
}

// DefaultTTL is the default human-priority window.
const DefaultTTL = 3 * time.Second

// New creates an Arbiter with the given TTL (DefaultTTL if zero) and
// clock (id.Wall if nil).
func New(ttl time.Duration, clock id.Clock) *Arbiter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = id.Wall
	}
	return &Arbiter{
		expiry: make(map[key]time.Time),
		ttl:    ttl,
		clock:  clock,
	}
}

// SetTTL updates the human-priority window, applied to activity
// recorded from now on (already-recorded expiries keep their original
// deadline). Used by config live-reload.
func (a *Arbiter) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	a.mu.Lock()
	a.ttl = ttl
	a.mu.Unlock()
}

// RecordActivity sets (resource, action)'s expiry to now + TTL. Handlers
// call this whenever a human (Tui) client performs action on resource.
func (a *Arbiter) RecordActivity(resource Resource, action Action) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.expiry[key{resource, action}] = a.clock().Add(a.ttl)
}

// Check evaluates whether clientType may proceed with action on
// resource:
//
// - A human (Tui) client is always Allowed; its own check also refreshes
// the TTL, so a burst of human actions on the same resource keeps
// agents locked out continuously rather than only at the instant of
// each call.
// - An agent (Mcp) client is Blocked if a non-expired timestamp exists
// for (resource, action) — i.e. a human acted on it within the last
// TTL window.
// - Otherwise Allowed.
func (a *Arbiter) Check(resource Resource, action Action, clientType registry.ClientType) Decision {
	a.mu.Lock()
	defer a.mu.Unlock()

	k := key{resource, action}
	now := a.clock()

	if clientType == registry.ClientTUI {
		a.expiry[k] = now.Add(a.ttl)
		return Decision{Allowed: true}
	}

	exp, ok := a.expiry[k]
	if !ok || !now.Before(exp) {
		return Decision{Allowed: true}
	}
	return Decision{Allowed: false, RemainingMs: uint64(exp.Sub(now) / time.Millisecond)}
}

// Sweep removes expired entries. It's a housekeeping convenience; Check
// already treats expired entries as absent, so calling Sweep is optional
// and only bounds the map's memory footprint over a long-running daemon.
func (a *Arbiter) Sweep() {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.clock()
	for k, exp := range a.expiry {
		if !now.Before(exp) {
			delete(a.expiry, k)
		}
	}
}
