package udpnat

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultIdleTimeout is the hard idle timeout: a flow inactive this
	// long is eligible for eviction by the reaper.
	DefaultIdleTimeout = 30 * time.Second
	// DefaultSweepInterval is how often the reaper sweeps the table.
	DefaultSweepInterval = 10 * time.Second
	// DefaultUplinkQueueDepth bounds each flow's uplink queue.
	DefaultUplinkQueueDepth = 64
	// DefaultRecvBufferSize is the downlink pump's reusable receive
	// buffer, 2x the canonical MTU.
	DefaultRecvBufferSize = MaxPayloadSize
)

// Manager is the facade inbound listeners call into: it admits packets onto
// per-flow uplink queues, lazily spawns the flow worker set on first sight
// of a key, and lazily starts the reaper on the very first admitted flow.
// Manager performs no proxy selection, DNS resolution, routing policy or
// payload transformation — that is entirely the Dispatcher's concern.
type Manager struct {
	table      *flowTable
	dispatcher Dispatcher
	metrics    Metrics
	log        *zap.Logger

	idleTimeout      time.Duration
	sweepInterval    time.Duration
	uplinkQueueDepth int
	recvBufferSize   int

	nowFunc func() time.Time

	bgCtx    context.Context
	bgCancel context.CancelFunc
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithIdleTimeout overrides DefaultIdleTimeout.
func WithIdleTimeout(d time.Duration) Option { return func(m *Manager) { m.idleTimeout = d } }

// WithSweepInterval overrides DefaultSweepInterval.
func WithSweepInterval(d time.Duration) Option { return func(m *Manager) { m.sweepInterval = d } }

// WithUplinkQueueDepth overrides DefaultUplinkQueueDepth.
func WithUplinkQueueDepth(n int) Option { return func(m *Manager) { m.uplinkQueueDepth = n } }

// WithRecvBufferSize overrides DefaultRecvBufferSize.
func WithRecvBufferSize(n int) Option { return func(m *Manager) { m.recvBufferSize = n } }

// WithMetrics installs a Metrics sink. Defaults to NopMetrics.
func WithMetrics(mt Metrics) Option { return func(m *Manager) { m.metrics = mt } }

// WithLogger installs a *zap.Logger. Defaults to zap.NewNop().
func WithLogger(l *zap.Logger) Option { return func(m *Manager) { m.log = l } }

// withClock overrides the time source, for deterministic tests.
func withClock(f func() time.Time) Option { return func(m *Manager) { m.nowFunc = f } }

// NewManager constructs a Manager bound to parent for the lifetime of its
// background work (the reaper and every dispatched flow). Call Close to
// tear all of that down.
func NewManager(parent context.Context, dispatcher Dispatcher, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(parent)
	m := &Manager{
		table:            newFlowTable(),
		dispatcher:       dispatcher,
		metrics:          NopMetrics{},
		log:              zap.NewNop(),
		idleTimeout:      DefaultIdleTimeout,
		sweepInterval:    DefaultSweepInterval,
		uplinkQueueDepth: DefaultUplinkQueueDepth,
		recvBufferSize:   DefaultRecvBufferSize,
		nowFunc:          time.Now,
		bgCtx:            ctx,
		bgCancel:         cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) now() time.Time { return m.nowFunc() }

// Close cancels the manager's background context, tearing down the reaper
// and every in-flight dispatch/flow derived from it.
func (m *Manager) Close() { m.bgCancel() }

// Send admits pkt for flow key, spawning the flow worker set on first sight
// of key and lazily starting the reaper on the very first admission ever.
// It returns once the packet has been enqueued or dropped; it never blocks
// on remote I/O. session may be nil, in which case one is synthesized from
// key.Client and pkt.Destination with network "udp".
func (m *Manager) Send(ctx context.Context, session *Session, key FlowKey, sink ClientSink, pkt *Packet) {
	if session == nil {
		session = synthesizeSession(key, pkt)
	}

	now := m.now()
	entry, created, admitted := m.table.admit(key, pkt, m.uplinkQueueDepth, now)

	if !admitted {
		m.metrics.PacketDropped(key, "queue_full")
		m.log.Debug("uplink queue full, dropping packet", zap.String("flow", key.String()))
	}

	if !created {
		return
	}

	m.metrics.FlowAdmitted(key)
	m.table.startReaper(func() { runReaper(m.bgCtx, m) })

	w := &flowWorker{
		m:          m,
		key:        key,
		entry:      entry,
		session:    session,
		clientSink: sink,
		log:        m.log,
	}
	go w.spawn(m.bgCtx)
}

// Flows reports the number of currently tracked flows. Exposed for tests
// and for callers that want to surface it as a gauge.
func (m *Manager) Flows() int { return m.table.len() }
