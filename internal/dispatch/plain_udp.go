package dispatch

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"time"

	"udpnat/internal/udpnat"
)

// PlainUDP dispatches each session onto its own unconnected net.UDPConn.
// No proxy, no encryption: the "just relay the datagram" case. The socket
// is left unconnected (rather than dialed at the session's destination)
// because the contract each send half honors is per-packet: two packets
// queued on the same flow are free to target different remotes, so the
// destination is resolved and applied on every SendTo call instead of
// being fixed once at dispatch time.
type PlainUDP struct {
	// Fwmark, if nonzero, is applied to every opened socket via SO_MARK
	// (Linux only; on any other platform a nonzero Fwmark makes
	// DispatchDatagram fail).
	Fwmark uint32
	// DialTimeout bounds opening the local socket.
	DialTimeout time.Duration
}

var _ udpnat.Dispatcher = (*PlainUDP)(nil)

func (p *PlainUDP) listenConfig() *net.ListenConfig {
	return &net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var ctrlErr error
			if err := c.Control(func(fd uintptr) {
				ctrlErr = setSocketMark(fd, p.Fwmark)
			}); err != nil {
				return err
			}
			return ctrlErr
		},
	}
}

func (p *PlainUDP) DispatchDatagram(ctx context.Context, session *udpnat.Session) (udpnat.Socket, error) {
	timeout := p.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	listenCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pc, err := p.listenConfig().ListenPacket(listenCtx, "udp", ":0")
	if err != nil {
		return nil, fmt.Errorf("dispatch: open plain udp socket: %w", err)
	}
	return &plainUDPSocket{conn: pc.(*net.UDPConn)}, nil
}

type plainUDPSocket struct {
	conn *net.UDPConn
}

func (s *plainUDPSocket) Split() (udpnat.SendHalf, udpnat.RecvHalf, error) {
	return &plainUDPSendHalf{s.conn}, &plainUDPRecvHalf{s.conn}, nil
}

type plainUDPSendHalf struct{ conn *net.UDPConn }

func (h *plainUDPSendHalf) SendTo(payload []byte, dst udpnat.Endpoint) error {
	addr, err := net.ResolveUDPAddr("udp", hostPort(dst))
	if err != nil {
		return fmt.Errorf("dispatch: resolve destination %s: %w", dst, err)
	}
	_, err = h.conn.WriteToUDP(payload, addr)
	return err
}

func (h *plainUDPSendHalf) Close() error { return h.conn.Close() }

type plainUDPRecvHalf struct{ conn *net.UDPConn }

func (h *plainUDPRecvHalf) RecvFrom(buf []byte) (int, udpnat.Endpoint, error) {
	n, addr, err := h.conn.ReadFromUDP(buf)
	if err != nil {
		return 0, udpnat.Endpoint{}, err
	}
	return n, udpnat.NewEndpoint(addr.IP.String(), uint16(addr.Port)), nil
}

func (h *plainUDPRecvHalf) Close() error { return h.conn.Close() }
