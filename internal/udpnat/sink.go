package udpnat

import (
	"context"
	"errors"
	"sync"
)

// ErrSinkClosed is returned by ChannelSink.Send once the sink has been
// closed by its owner (the caller has gone away).
var ErrSinkClosed = errors.New("udpnat: client sink closed")

// ClientSink is the bounded, awaited sender the inbound listener supplies
// to Send so the manager can deliver downlink packets back to the real
// client. A Send call returning an error is the signal the downlink pump
// uses to tear its flow down (scenario: the client has disconnected).
type ClientSink interface {
	Send(ctx context.Context, pkt *Packet) error
}

// ChannelSink adapts a capacity-bounded Go channel to ClientSink, for
// listeners that want to read downlink packets off a channel rather than
// implement ClientSink themselves.
type ChannelSink struct {
	ch        chan *Packet
	closed    chan struct{}
	closeOnce sync.Once
}

// NewChannelSink creates a ChannelSink backed by a channel of the given
// capacity.
func NewChannelSink(capacity int) *ChannelSink {
	return &ChannelSink{
		ch:     make(chan *Packet, capacity),
		closed: make(chan struct{}),
	}
}

// C returns the channel callers should range/receive over to read downlink
// packets.
func (s *ChannelSink) C() <-chan *Packet { return s.ch }

// Send implements ClientSink.
func (s *ChannelSink) Send(ctx context.Context, pkt *Packet) error {
	select {
	case <-s.closed:
		return ErrSinkClosed
	default:
	}
	select {
	case s.ch <- pkt:
		return nil
	case <-s.closed:
		return ErrSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks the sink closed; subsequent and in-flight Send calls fail
// with ErrSinkClosed.
func (s *ChannelSink) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

var _ ClientSink = (*ChannelSink)(nil)
