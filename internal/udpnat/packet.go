package udpnat

import "fmt"

// MaxPayloadSize bounds a Packet's payload at 2x the canonical MTU, per the
// manager's admission policy.
const MaxPayloadSize = 3000

// Packet is an immutable datagram carrier: payload bytes plus the source and
// destination endpoints it was observed (or is destined) to carry.
type Packet struct {
	Payload     []byte
	Source      Endpoint
	Destination Endpoint
}

// NewPacket constructs a Packet, rejecting payloads over MaxPayloadSize.
func NewPacket(payload []byte, src, dst Endpoint) (*Packet, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("udpnat: payload of %d bytes exceeds max %d", len(payload), MaxPayloadSize)
	}
	return &Packet{Payload: payload, Source: src, Destination: dst}, nil
}
