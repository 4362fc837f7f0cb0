package launcher

import (
	"sync"

	"github.com/sipeed/cortexd/pkg/logger"
)

// ProcessTracker registers/abandons/exits OS-process identifiers for
// external cleanup, per spec §4.5 step 6. A missing PID on Abandon/Exit is
// acceptable (not an error) — the process may have already exited.
type ProcessTracker struct {
	mu  sync.Mutex
	set map[int]struct{}
}

// NewProcessTracker returns an empty tracker.
func NewProcessTracker() *ProcessTracker {
	return &ProcessTracker{set: make(map[int]struct{})}
}

// Register records pid as tracked.
func (t *ProcessTracker) Register(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.set[pid] = struct{}{}
}

// Abandon removes pid from tracking without attempting to signal it,
// used when a session completes normally.
func (t *ProcessTracker) Abandon(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.set, pid)
}

// Exit removes pid from tracking and logs its forced termination; callers
// invoke this after signaling the process (e.g. on IdleTimeout, per the
// error taxonomy in spec §7: "IdleTimeout ... triggers PID abandonment").
func (t *ProcessTracker) Exit(pid int) {
	t.mu.Lock()
	_, tracked := t.set[pid]
	delete(t.set, pid)
	t.mu.Unlock()

	logger.DebugCF("launcher.tracker", "process exit", map[string]any{"pid": pid, "was_tracked": tracked})
}

// Tracked returns a snapshot of currently tracked PIDs.
func (t *ProcessTracker) Tracked() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]int, 0, len(t.set))
	for pid := range t.set {
		out = append(out, pid)
	}
	return out
}
