package udpnat

// FlowKey identifies one inbound UDP flow: the client-visible source
// endpoint plus the inbound listener it arrived on. The listener component
// disambiguates otherwise-identical client endpoints arriving on distinct
// listeners (e.g. two SOCKS5 UDP-associate sockets bound to different
// interfaces). FlowKey is a plain comparable struct so it works directly as
// a map key.
type FlowKey struct {
	Client   Endpoint
	Listener string
}

func (k FlowKey) String() string {
	return k.Client.String() + "@" + k.Listener
}
