package udpnat

// Session is a hint describing proxy-selection context for a dispatch
// request. The manager never inspects or mutates its contents beyond
// synthesizing a default when the caller supplies none; selection policy
// itself lives entirely in the Dispatcher the caller wires in.
type Session struct {
	Client      Endpoint
	Destination Endpoint
	Network     string
}

// synthesizeSession builds the default Session the manager uses when Send
// is called without an explicit one: client and destination endpoints taken
// from the flow key and the admitted packet, network fixed to "udp".
func synthesizeSession(key FlowKey, pkt *Packet) *Session {
	return &Session{
		Client:      key.Client,
		Destination: pkt.Destination,
		Network:     "udp",
	}
}
