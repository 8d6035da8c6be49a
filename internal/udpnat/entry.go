package udpnat

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// flowEntry is the per-flow mutable record. Its fields are owned by the
// flowTable's lock except where noted; no per-entry lock exists, matching
// the design note that the table's single exclusive lock is the only
// shared-mutable-state guard in the system.
type flowEntry struct {
	// id correlates log lines across a flow's three tasks.
	id uuid.UUID

	uplink       chan *Packet
	shutdownOnce sync.Once
	shutdown     chan struct{}

	// lastActivity is read and written only while the table lock is held.
	lastActivity time.Time
}

func newFlowEntry(uplinkDepth int, now time.Time) *flowEntry {
	return &flowEntry{
		id:           uuid.New(),
		uplink:       make(chan *Packet, uplinkDepth),
		shutdown:     make(chan struct{}),
		lastActivity: now,
	}
}

// fireShutdown closes the shutdown channel at most once. Firing it twice
// (e.g. the reaper racing a self-initiated teardown) is a no-op.
func (e *flowEntry) fireShutdown() {
	e.shutdownOnce.Do(func() { close(e.shutdown) })
}
