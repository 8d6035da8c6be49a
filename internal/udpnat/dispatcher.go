package udpnat

import "context"

// Dispatcher resolves a Session to an outbound datagram socket according to
// proxy policy. It is an external collaborator: the manager never performs
// proxy selection, DNS resolution or routing policy itself.
type Dispatcher interface {
	DispatchDatagram(ctx context.Context, session *Session) (Socket, error)
}

// Socket is the outbound datagram socket a Dispatcher hands back. It must be
// splittable into independent send and receive halves so each can be owned
// by exactly one goroutine (the uplink pump and the downlink pump,
// respectively).
type Socket interface {
	Split() (SendHalf, RecvHalf, error)
}

// SendHalf is the uplink-owned half of a dispatched Socket.
type SendHalf interface {
	SendTo(payload []byte, dst Endpoint) error
	Close() error
}

// RecvHalf is the downlink-owned half of a dispatched Socket.
type RecvHalf interface {
	RecvFrom(buf []byte) (n int, from Endpoint, err error)
	Close() error
}
