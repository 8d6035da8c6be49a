package udpnat

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

// flowTable maps FlowKey to flowEntry under a single exclusive lock. The
// lock is held only across O(1) mutations — insert, remove, get-and-stamp,
// and the non-blocking uplink enqueue — never across remote I/O or
// client-sink sends.
type flowTable struct {
	mu sync.Mutex
	m  map[FlowKey]*flowEntry

	// reaperStarted is a one-shot compare-and-set cell: the reaper is
	// started on the first admitted flow and never again.
	reaperStarted atomic.Bool
}

func newFlowTable() *flowTable {
	return &flowTable{m: make(map[FlowKey]*flowEntry)}
}

// admit finds or creates the entry for key, stamps its activity and
// attempts a non-blocking enqueue of pkt onto its uplink queue, all under
// one critical section. Bundling the enqueue with the lookup is what makes
// it safe to close entry.uplink on removal elsewhere: a send into the
// channel and a close of the channel can never interleave, because both
// only ever happen while holding t.mu.
func (t *flowTable) admit(key FlowKey, pkt *Packet, uplinkDepth int, now time.Time) (entry *flowEntry, created, admitted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.m[key]
	if !ok {
		e = newFlowEntry(uplinkDepth, now)
		t.m[key] = e
		created = true
	}
	e.lastActivity = now

	select {
	case e.uplink <- pkt:
		admitted = true
	default:
		admitted = false
	}
	return e, created, admitted
}

// stamp re-reads the entry for key and updates lastActivity, provided the
// entry present is still the one the caller expects. A no-op if the entry
// has since been removed or superseded.
func (t *flowTable) stamp(key FlowKey, entry *flowEntry, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.m[key]; ok && cur == entry {
		cur.lastActivity = now
	}
}

// removeIfSame deletes key from the table iff the currently installed entry
// is exactly the one passed in, and closes its uplink channel in the same
// critical section so the uplink pump's range loop observes termination
// without ever racing a concurrent admit(). Returns whether it actually
// removed anything — guards against a task tearing down a flow that has
// already been superseded by a fresh admission under the same key.
func (t *flowTable) removeIfSame(key FlowKey, entry *flowEntry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.m[key]; ok && cur == entry {
		delete(t.m, key)
		close(entry.uplink)
		return true
	}
	return false
}

// idleFlow pairs a key with the entry instance observed during a sweep, so
// the reaper's later removal can use removeIfSame without a second lookup
// racing a fresh flow admitted under the same key in between.
type idleFlow struct {
	key   FlowKey
	entry *flowEntry
}

// idleFlows snapshots flows inactive for at least threshold.
func (t *flowTable) idleFlows(threshold time.Duration, now time.Time) []idleFlow {
	t.mu.Lock()
	defer t.mu.Unlock()

	var idle []idleFlow
	for k, e := range t.m {
		if now.Sub(e.lastActivity) >= threshold {
			idle = append(idle, idleFlow{key: k, entry: e})
		}
	}
	return idle
}

// startReaper runs fn exactly once across the table's lifetime, regardless
// of how many goroutines race to call startReaper concurrently.
func (t *flowTable) startReaper(fn func()) {
	if t.reaperStarted.CAS(false, true) {
		go fn()
	}
}

// len reports the number of live entries. Used by tests.
func (t *flowTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.m)
}
