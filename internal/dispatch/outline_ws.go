package dispatch

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/shadowsocks/go-shadowsocks2/core"
	"golang.org/x/time/rate"

	"udpnat/internal/udpnat"
)

// OutlineWS dispatches each session through an Outline/Shadowsocks-over-
// WebSocket upstream: dial a WebSocket stream, wrap it as a datagram
// transport, and layer a Shadowsocks AEAD cipher over that. One WebSocket
// connection is opened per dispatched session; there is no session sharing.
type OutlineWS struct {
	// Endpoint is the wss:// (or ws://) URL of the upstream relay.
	Endpoint string
	// Cipher and Secret select and key the Shadowsocks AEAD, e.g.
	// "AEAD_CHACHA20_POLY1305".
	Cipher string
	Secret string
	// Fwmark, if nonzero, is applied to the dialing socket (Linux only).
	Fwmark uint32

	// DialLimiter throttles dial attempts against this upstream. Nil means
	// unthrottled. Construct with NewDialLimiter, which takes the rate and
	// burst explicitly.
	DialLimiter *rate.Limiter

	once      sync.Once
	transport *http.Transport
}

var _ udpnat.Dispatcher = (*OutlineWS)(nil)

// NewDialLimiter returns a limiter allowing burst dials up then settling to
// ratePerSecond sustained dials, so many flows arriving at once against a
// downed upstream don't each retry independently and pile up dial attempts.
func NewDialLimiter(ratePerSecond float64, burst int) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(ratePerSecond), burst)
}

func (o *OutlineWS) httpTransport() *http.Transport {
	o.once.Do(func() {
		o.transport = &http.Transport{
			Proxy:             http.ProxyFromEnvironment,
			ForceAttemptHTTP2: true,
			TLSClientConfig:   &tls.Config{MinVersion: tls.VersionTLS12},
			DialContext:       o.dialContext,
		}
	})
	return o.transport
}

func (o *OutlineWS) dialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		raw, rawErr := tcp.SyscallConn()
		if rawErr == nil {
			_ = raw.Control(func(fd uintptr) { _ = setSocketMark(fd, o.Fwmark) })
		}
	}
	return conn, nil
}

func (o *OutlineWS) DispatchDatagram(ctx context.Context, session *udpnat.Session) (udpnat.Socket, error) {
	if o.DialLimiter != nil {
		if err := o.DialLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("dispatch: outline dial limiter: %w", err)
		}
	}

	wsc, err := dialNhooyrWebSocket(ctx, o.Endpoint, o.httpTransport())
	if err != nil {
		return nil, fmt.Errorf("dispatch: dial outline ws %s: %w", o.Endpoint, err)
	}

	ciph, err := core.PickCipher(o.Cipher, nil, o.Secret)
	if err != nil {
		_ = wsc.Close(wsStatusNormalClosure, "cipher-error")
		return nil, fmt.Errorf("dispatch: pick cipher %s: %w", o.Cipher, err)
	}

	pktCtx, cancel := context.WithCancel(ctx)
	wsPC := newWSPacketConn(pktCtx, wsc)
	enc := ciph.PacketConn(wsPC)

	return &outlineSocket{enc: enc, cancel: cancel}, nil
}

// outlineSocket wraps the encrypted PacketConn shared by both halves. The
// Shadowsocks plaintext framing is [ATYP][ADDR][PORT][DATA]; SendTo encodes
// the destination address into that framing and RecvFrom decodes it back
// out, since a single underlying PacketConn carries traffic to and from
// many destinations multiplexed over one WebSocket stream.
type outlineSocket struct {
	enc    net.PacketConn
	cancel context.CancelFunc
}

func (s *outlineSocket) Split() (udpnat.SendHalf, udpnat.RecvHalf, error) {
	return &outlineSendHalf{s}, &outlineRecvHalf{s}, nil
}

type outlineSendHalf struct{ s *outlineSocket }

func (h *outlineSendHalf) SendTo(payload []byte, dst udpnat.Endpoint) error {
	addr, err := encodeSocksAddr(dst.Host, dst.Port)
	if err != nil {
		return fmt.Errorf("dispatch: encode outline dst %s: %w", dst, err)
	}
	plain := make([]byte, 0, len(addr)+len(payload))
	plain = append(plain, addr...)
	plain = append(plain, payload...)
	_, err = h.s.enc.WriteTo(plain, dummyAddr{})
	return err
}

func (h *outlineSendHalf) Close() error {
	h.s.cancel()
	return h.s.enc.Close()
}

type outlineRecvHalf struct{ s *outlineSocket }

func (h *outlineRecvHalf) RecvFrom(buf []byte) (int, udpnat.Endpoint, error) {
	scratch := make([]byte, len(buf)+512)
	n, _, err := h.s.enc.ReadFrom(scratch)
	if err != nil {
		return 0, udpnat.Endpoint{}, err
	}
	plain := scratch[:n]
	host, port, off, err := parseSocksAddrFromPlain(plain)
	if err != nil {
		return 0, udpnat.Endpoint{}, fmt.Errorf("dispatch: decode outline src: %w", err)
	}
	copied := copy(buf, plain[off:])
	return copied, udpnat.NewEndpoint(host, port), nil
}

func (h *outlineRecvHalf) Close() error {
	h.s.cancel()
	return h.s.enc.Close()
}
