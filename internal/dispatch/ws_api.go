package dispatch

import "context"

// wsMessageType mirrors the RFC 6455 opcodes this package cares about.
type wsMessageType uint8

const (
	wsMessageText   wsMessageType = 1
	wsMessageBinary wsMessageType = 2
)

// wsStatusCode is a WebSocket close status code.
type wsStatusCode uint16

const wsStatusNormalClosure wsStatusCode = 1000

// wsConn is the minimal WebSocket surface wsPacketConn needs. Narrowing to
// an interface, rather than depending on *websocket.Conn directly, keeps
// the packet-framing logic unit-testable without a real socket.
type wsConn interface {
	Read(ctx context.Context) (wsMessageType, []byte, error)
	Write(ctx context.Context, typ wsMessageType, data []byte) error
	Close(code wsStatusCode, reason string) error
}
