package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"udpnat/internal/udpnat"
)

func TestFailureReason(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{errors.New("i/o timeout"), "timeout"},
		{errors.New("x509: certificate signed by unknown authority"), "tls"},
		{errors.New("lookup host: no such host"), "dns"},
		{errors.New("connection refused"), "refused"},
		{errors.New("boom"), "other"},
		{nil, "unknown"},
	}

	for _, tc := range cases {
		if got := failureReason(tc.err); got != tc.want {
			t.Fatalf("failureReason(%v)=%q want %q", tc.err, got, tc.want)
		}
	}
}

func TestToPromLabels(t *testing.T) {
	got := toPromLabels("listener=l0,reason=idle")
	want := `listener="l0",reason="idle"`
	if got != want {
		t.Fatalf("toPromLabels=%q want %q", got, want)
	}
}

func TestRegistry_HandlerExposesCounters(t *testing.T) {
	r := NewRegistry()
	key := udpnat.FlowKey{Client: udpnat.NewEndpoint("127.0.0.1", 1), Listener: "l0"}

	r.FlowAdmitted(key)
	r.FlowRemoved(key, "idle")
	r.PacketDropped(key, "queue_full")
	r.DispatchFailed(key, errors.New("connection refused"))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	r.handler(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		`udpnat_flows_admitted_total{listener="l0"} 1`,
		`udpnat_flows_removed_total{listener="l0",reason="idle"} 1`,
		`udpnat_packets_dropped_total{listener="l0",reason="queue_full"} 1`,
		`udpnat_dispatch_failures_total{listener="l0",reason="refused"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected body to contain %q, got:\n%s", want, body)
		}
	}
}
