package udpnat

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// runReaper periodically sweeps the table for flows idle beyond idleTimeout
// and retires them. Unlike the one-shot sweep the design notes flag as an
// almost-certain defect, this loops until ctx is cancelled.
func runReaper(ctx context.Context, m *Manager) {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepOnce(m)
		}
	}
}

func sweepOnce(m *Manager) {
	now := m.now()
	idle := m.table.idleFlows(m.idleTimeout, now)

	for _, f := range idle {
		removed := m.table.removeIfSame(f.key, f.entry)
		// Fire regardless: the downlink pump may already have exited and
		// fired it itself, in which case this is a harmless no-op via
		// sync.Once.
		f.entry.fireShutdown()
		if removed {
			m.metrics.FlowRemoved(f.key, "idle")
			m.log.Debug("reaped idle flow", zap.String("flow", f.key.String()))
		}
	}
}
