package main

import (
	"context"
	"net"

	"udpnat/internal/udpnat"
)

// udpClientSink delivers downlink packets back to a single real UDP client
// over the shared inbound socket, addressed at the client endpoint observed
// on its first packet.
type udpClientSink struct {
	conn   *net.UDPConn
	client *net.UDPAddr
}

func (s *udpClientSink) Send(_ context.Context, pkt *udpnat.Packet) error {
	_, err := s.conn.WriteToUDP(pkt.Payload, s.client)
	return err
}

var _ udpnat.ClientSink = (*udpClientSink)(nil)
