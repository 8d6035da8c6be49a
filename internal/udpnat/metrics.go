package udpnat

// Metrics receives lifecycle events from the manager. Implementations must
// be safe for concurrent use; the manager calls these from flow workers,
// the reaper and Send itself without any additional synchronization.
type Metrics interface {
	FlowAdmitted(key FlowKey)
	FlowRemoved(key FlowKey, reason string)
	PacketDropped(key FlowKey, reason string)
	DispatchFailed(key FlowKey, err error)
}

// NopMetrics discards every event. It is the Manager's default.
type NopMetrics struct{}

func (NopMetrics) FlowAdmitted(FlowKey)          {}
func (NopMetrics) FlowRemoved(FlowKey, string)   {}
func (NopMetrics) PacketDropped(FlowKey, string) {}
func (NopMetrics) DispatchFailed(FlowKey, error) {}

var _ Metrics = NopMetrics{}
