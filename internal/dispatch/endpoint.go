// Package dispatch provides concrete udpnat.Dispatcher implementations:
// a bare UDP relay and an Outline/Shadowsocks-over-WebSocket relay.
package dispatch

import (
	"net"
	"strconv"

	"udpnat/internal/udpnat"
)

func hostPort(ep udpnat.Endpoint) string {
	return net.JoinHostPort(ep.Host, strconv.Itoa(int(ep.Port)))
}
