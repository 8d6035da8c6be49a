package udpnat

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeSocket is an in-memory stand-in for a dispatched outbound socket. When
// echo is set, SendTo also echoes the payload back as if the remote replied
// from the packet's destination, which is enough to exercise the downlink
// pump without a real network remote. delay, when set, throttles SendTo to
// simulate a remote slower than the producer, so queue depth actually gets
// exercised in tests.
type fakeSocket struct {
	mu       sync.Mutex
	sent     []sentPacket
	sendErr  error
	echo     bool
	delay    time.Duration
	fromWire chan *Packet
	closed   chan struct{}
	closeMu  sync.Once
}

type sentPacket struct {
	payload []byte
	dst     Endpoint
}

func newFakeSocket(echo bool) *fakeSocket {
	return &fakeSocket{
		echo:     echo,
		fromWire: make(chan *Packet, 256),
		closed:   make(chan struct{}),
	}
}

func (s *fakeSocket) Split() (SendHalf, RecvHalf, error) {
	return &fakeSendHalf{s: s}, &fakeRecvHalf{s: s}, nil
}

func (s *fakeSocket) close() {
	s.closeMu.Do(func() { close(s.closed) })
}

func (s *fakeSocket) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fakeSendHalf struct{ s *fakeSocket }

func (h *fakeSendHalf) SendTo(payload []byte, dst Endpoint) error {
	h.s.mu.Lock()
	err := h.s.sendErr
	echo := h.s.echo
	delay := h.s.delay
	h.s.mu.Unlock()
	if err != nil {
		return err
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	cp := append([]byte(nil), payload...)
	h.s.mu.Lock()
	h.s.sent = append(h.s.sent, sentPacket{payload: cp, dst: dst})
	h.s.mu.Unlock()

	if echo {
		select {
		case h.s.fromWire <- &Packet{Payload: cp, Source: dst}:
		case <-h.s.closed:
		}
	}
	return nil
}

func (h *fakeSendHalf) Close() error {
	h.s.close()
	return nil
}

type fakeRecvHalf struct{ s *fakeSocket }

var errFakeSocketClosed = errors.New("fake socket closed")

func (h *fakeRecvHalf) RecvFrom(buf []byte) (int, Endpoint, error) {
	select {
	case pkt, ok := <-h.s.fromWire:
		if !ok {
			return 0, Endpoint{}, errFakeSocketClosed
		}
		n := copy(buf, pkt.Payload)
		return n, pkt.Source, nil
	case <-h.s.closed:
		return 0, Endpoint{}, errFakeSocketClosed
	}
}

func (h *fakeRecvHalf) Close() error {
	h.s.close()
	return nil
}

// fakeDispatcher counts dispatch calls and can be made to fail on demand.
type fakeDispatcher struct {
	mu      sync.Mutex
	calls   int
	err     error
	echo    bool
	delay   time.Duration
	sockets []*fakeSocket
}

func (d *fakeDispatcher) DispatchDatagram(_ context.Context, _ *Session) (Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	s := newFakeSocket(d.echo)
	s.delay = d.delay
	d.sockets = append(d.sockets, s)
	return s, nil
}

func (d *fakeDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *fakeDispatcher) lastSocket() *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sockets) == 0 {
		return nil
	}
	return d.sockets[len(d.sockets)-1]
}

// fakeSink implements ClientSink in-memory for assertions, optionally
// always failing to simulate a gone client.
type fakeSink struct {
	mu       sync.Mutex
	received []*Packet
	failWith error
}

func (s *fakeSink) Send(ctx context.Context, pkt *Packet) error {
	if s.failWith != nil {
		return s.failWith
	}
	s.mu.Lock()
	s.received = append(s.received, pkt)
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

// fakeMetrics records every lifecycle event for assertions.
type fakeMetrics struct {
	mu       sync.Mutex
	admitted []FlowKey
	removed  []removedEvent
	dropped  []droppedEvent
	failed   int
}

type removedEvent struct {
	key    FlowKey
	reason string
}

type droppedEvent struct {
	key    FlowKey
	reason string
}

func (m *fakeMetrics) FlowAdmitted(k FlowKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admitted = append(m.admitted, k)
}

func (m *fakeMetrics) FlowRemoved(k FlowKey, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, removedEvent{k, reason})
}

func (m *fakeMetrics) PacketDropped(k FlowKey, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped = append(m.dropped, droppedEvent{k, reason})
}

func (m *fakeMetrics) DispatchFailed(FlowKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed++
}

func (m *fakeMetrics) removedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.removed)
}

func (m *fakeMetrics) droppedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dropped)
}

var _ Metrics = (*fakeMetrics)(nil)
var _ ClientSink = (*fakeSink)(nil)
var _ Dispatcher = (*fakeDispatcher)(nil)
