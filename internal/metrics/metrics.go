// Package metrics is a hand-rolled Prometheus text exposition for the UDP
// NAT session manager, adapted from the same counter/gauge vector idiom the
// relay's outline-ws telemetry used, renamed to this module's own series.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"udpnat/internal/udpnat"
)

// Registry implements udpnat.Metrics and exposes its counters over HTTP in
// the Prometheus text format.
type Registry struct {
	mu sync.RWMutex

	flowsAdmittedTotal map[string]uint64
	flowsRemovedTotal  map[string]uint64
	packetsDropped     map[string]uint64
	dispatchFailures   map[string]uint64
}

var _ udpnat.Metrics = (*Registry)(nil)

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		flowsAdmittedTotal: make(map[string]uint64),
		flowsRemovedTotal:  make(map[string]uint64),
		packetsDropped:     make(map[string]uint64),
		dispatchFailures:   make(map[string]uint64),
	}
}

func (r *Registry) FlowAdmitted(key udpnat.FlowKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flowsAdmittedTotal[fmt.Sprintf("listener=%s", key.Listener)]++
}

func (r *Registry) FlowRemoved(key udpnat.FlowKey, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flowsRemovedTotal[fmt.Sprintf("listener=%s,reason=%s", key.Listener, reason)]++
}

func (r *Registry) PacketDropped(key udpnat.FlowKey, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packetsDropped[fmt.Sprintf("listener=%s,reason=%s", key.Listener, reason)]++
}

func (r *Registry) DispatchFailed(key udpnat.FlowKey, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatchFailures[fmt.Sprintf("listener=%s,reason=%s", key.Listener, failureReason(err))]++
}

// StartServer serves the registry's /metrics endpoint on addr until ctx is
// cancelled.
func (r *Registry) StartServer(ctx context.Context, addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("metrics: empty listen address")
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", r.handler)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	err := srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: server: %w", err)
	}
	return nil
}

func (r *Registry) handler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	r.mu.RLock()
	defer r.mu.RUnlock()

	writeCounterVec(w, "udpnat_flows_admitted_total", r.flowsAdmittedTotal)
	writeCounterVec(w, "udpnat_flows_removed_total", r.flowsRemovedTotal)
	writeCounterVec(w, "udpnat_packets_dropped_total", r.packetsDropped)
	writeCounterVec(w, "udpnat_dispatch_failures_total", r.dispatchFailures)
}

func failureReason(err error) string {
	if err == nil {
		return "unknown"
	}
	e := strings.ToLower(err.Error())
	switch {
	case strings.Contains(e, "timeout") || strings.Contains(e, "deadline"):
		return "timeout"
	case strings.Contains(e, "tls") || strings.Contains(e, "x509") || strings.Contains(e, "certificate"):
		return "tls"
	case strings.Contains(e, "dns") || strings.Contains(e, "no such host"):
		return "dns"
	case strings.Contains(e, "refused"):
		return "refused"
	default:
		return "other"
	}
}

func writeCounterVec(w http.ResponseWriter, name string, data map[string]uint64) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s{%s} %d\n", name, toPromLabels(k), data[k])
	}
}

func toPromLabels(s string) string {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		parts[i] = fmt.Sprintf("%s=\"%s\"", kv[0], strings.ReplaceAll(kv[1], "\"", "\\\""))
	}
	return strings.Join(parts, ",")
}
