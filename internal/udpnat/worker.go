package udpnat

import (
	"context"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// flowWorker owns the three cooperative per-flow tasks: the uplink pump,
// the downlink pump and the shutdown waiter. It holds a reference to the
// shared table (so each task can remove itself on exit) and, once
// dispatched, exclusive ownership of exactly one socket half apiece.
type flowWorker struct {
	m     *Manager
	key   FlowKey
	entry *flowEntry

	session    *Session
	clientSink ClientSink

	log    *zap.Logger
	closes *closeTracker
}

// closeTracker aggregates the independent Close errors of a socket's send
// and receive halves, each closed from its own goroutine, into one error
// logged exactly once both have reported in. Mirrors the teacher's own
// sequential "_ = a.Close(); _ = b.Close()" teardown, but without
// discarding the second error.
type closeTracker struct {
	mu   sync.Mutex
	n    int
	errs error
}

func (c *closeTracker) report(err error) (done bool, aggregated error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	c.errs = multierr.Append(c.errs, err)
	return c.n == 2, c.errs
}

// spawn asks the dispatcher for an outbound socket and, on success, starts
// the uplink pump, downlink pump and shutdown waiter. On dispatch failure
// (or a socket that cannot be split) it removes its own entry from the
// table and returns without starting anything: the Admitting -> Gone
// transition.
func (w *flowWorker) spawn(ctx context.Context) {
	sock, err := w.m.dispatcher.DispatchDatagram(ctx, w.session)
	if err != nil {
		w.dropAdmission("dispatch_failed", err)
		return
	}

	send, recv, err := sock.Split()
	if err != nil {
		w.dropAdmission("dispatch_failed", err)
		return
	}

	flowCtx, cancel := context.WithCancel(ctx)
	w.closes = &closeTracker{}

	go w.shutdownWaiter(ctx, cancel, recv)
	go w.uplinkPump(send)
	go w.downlinkPump(flowCtx, recv)
}

func (w *flowWorker) dropAdmission(reason string, err error) {
	w.log.Debug("dropping flow during admission",
		zap.String("flow", w.key.String()), zap.String("flow_id", w.entry.id.String()), zap.String("reason", reason), zap.Error(err))
	w.m.metrics.DispatchFailed(w.key, err)
	if w.m.table.removeIfSame(w.key, w.entry) {
		w.m.metrics.FlowRemoved(w.key, reason)
	}
}

// uplinkPump awaits items from the uplink queue and forwards each to the
// remote through the send half. It is never externally aborted: it
// terminates either on a send error, or naturally once the uplink channel
// is closed — which happens exactly when the flow's table entry is
// removed (flowTable.removeIfSame closes it under the same lock that
// guards admission, so no send-on-closed-channel race is possible).
func (w *flowWorker) uplinkPump(send SendHalf) {
	defer func() { w.reportClose(send.Close()) }()

	for pkt := range w.entry.uplink {
		if err := send.SendTo(pkt.Payload, pkt.Destination); err != nil {
			w.log.Debug("uplink send failed",
				zap.String("flow", w.key.String()), zap.String("flow_id", w.entry.id.String()), zap.Error(err))
			return
		}
	}
}

// downlinkPump repeatedly receives from the remote half and forwards each
// datagram to the client sink, updating last-activity on every successful
// round trip. Its body is cancellable: ctx is cancelled by the shutdown
// waiter, observed here around the client-sink send.
func (w *flowWorker) downlinkPump(ctx context.Context, recv RecvHalf) {
	buf := make([]byte, w.m.recvBufferSize)

	for {
		n, from, err := recv.RecvFrom(buf)
		if err != nil {
			w.log.Debug("downlink recv ended",
				zap.String("flow", w.key.String()), zap.String("flow_id", w.entry.id.String()), zap.Error(err))
			w.teardown("remote_closed")
			return
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		reply := &Packet{
			Payload:     payload,
			Source:      from,
			Destination: w.key.Client,
		}

		if err := w.clientSink.Send(ctx, reply); err != nil {
			reason := "client_gone"
			if ctx.Err() != nil {
				reason = "shutdown"
			}
			w.log.Debug("client sink send failed",
				zap.String("flow", w.key.String()), zap.String("flow_id", w.entry.id.String()), zap.String("reason", reason), zap.Error(err))
			w.teardown(reason)
			return
		}

		w.m.table.stamp(w.key, w.entry, w.m.now())
	}
}

// shutdownWaiter aborts the downlink pump once the flow's shutdown signal
// fires: it cancels the flow context (observed around the client-sink
// send) and closes the receive half, the explicit abort primitive the
// design calls for instead of relying on a dropped reference to unblock a
// platform's recv call. If the manager's context (ctx) is cancelled first,
// it tears the flow down itself, which removes the entry and fires the
// shutdown signal before the receive half is closed.
func (w *flowWorker) shutdownWaiter(ctx context.Context, cancel context.CancelFunc, recv RecvHalf) {
	select {
	case <-w.entry.shutdown:
	case <-ctx.Done():
		w.teardown("shutdown")
	}
	cancel()
	w.reportClose(recv.Close())
}

// reportClose records one half's Close result and, once both halves have
// reported in, logs the aggregated error if either failed.
func (w *flowWorker) reportClose(err error) {
	done, aggregated := w.closes.report(err)
	if done && aggregated != nil {
		w.log.Debug("socket close reported errors",
			zap.String("flow", w.key.String()), zap.String("flow_id", w.entry.id.String()), zap.Error(aggregated))
	}
}

// teardown removes the flow's entry if it is still the one installed, then
// fires the shutdown signal (so the waiter tears down recv even when the
// downlink pump itself discovered the fault), satisfying invariant 5:
// removal happens-before the shutdown waiter's close of the receive half,
// matching sweepOnce's ordering.
func (w *flowWorker) teardown(reason string) {
	if w.m.table.removeIfSame(w.key, w.entry) {
		w.m.metrics.FlowRemoved(w.key, reason)
	}
	w.entry.fireShutdown()
}
