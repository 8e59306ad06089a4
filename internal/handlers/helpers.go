package handlers

import (
	"github.com/ccmux/ccmux/internal/arbiter"
	"github.com/ccmux/ccmux/internal/recovery"
)

// resourceForSession/Window/Pane adapt a wire-level identifier to the
// arbiter.Resource shape checkArbiter expects. Arbitration
// keys on (kind, id) pairs rather than the full session/window/pane
// hierarchy, so a human touching a pane doesn't block an agent from
// acting on an unrelated pane in the same window.
func resourceForSession(id string) arbiter.Resource {
	return arbiter.Resource{Kind: arbiter.ResourceSession, ID: id}
}

func resourceForWindow(id string) arbiter.Resource {
	return arbiter.Resource{Kind: arbiter.ResourceWindow, ID: id}
}

func resourceForPane(id string) arbiter.Resource {
	return arbiter.Resource{Kind: arbiter.ResourcePane, ID: id}
}

// removeIsolationDir is a thin package-local alias so call sites read the
// same as every other handlers.go helper without importing recovery
// directly at each site.
func removeIsolationDir(root, paneID string) error {
	return recovery.RemoveIsolationDir(root, paneID)
}
