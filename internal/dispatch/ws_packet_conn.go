package dispatch

import (
	"context"
	"net"
	"time"
)

// dummyAddr satisfies net.Addr for transports, like wsPacketConn, that have
// no meaningful local/remote socket address of their own.
type dummyAddr struct{}

func (dummyAddr) Network() string { return "udp" }
func (dummyAddr) String() string  { return "0.0.0.0:0" }

// wsPacketConn adapts a wsConn to net.PacketConn: one WebSocket binary
// message is exactly one datagram. Non-binary messages on read are
// skipped. Deadlines are no-ops; Close closes the underlying wsConn.
type wsPacketConn struct {
	ctx context.Context
	c   wsConn
}

func newWSPacketConn(ctx context.Context, c wsConn) *wsPacketConn {
	return &wsPacketConn{ctx: ctx, c: c}
}

func (w *wsPacketConn) ReadFrom(p []byte) (int, net.Addr, error) {
	for {
		typ, data, err := w.c.Read(w.ctx)
		if err != nil {
			return 0, nil, err
		}
		if typ != wsMessageBinary {
			continue
		}
		n := copy(p, data)
		return n, dummyAddr{}, nil
	}
}

func (w *wsPacketConn) WriteTo(p []byte, _ net.Addr) (int, error) {
	if err := w.c.Write(w.ctx, wsMessageBinary, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsPacketConn) Close() error {
	return w.c.Close(wsStatusNormalClosure, "close")
}

func (w *wsPacketConn) LocalAddr() net.Addr              { return dummyAddr{} }
func (w *wsPacketConn) SetDeadline(time.Time) error      { return nil }
func (w *wsPacketConn) SetReadDeadline(time.Time) error  { return nil }
func (w *wsPacketConn) SetWriteDeadline(time.Time) error { return nil }
