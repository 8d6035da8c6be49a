package udpnat

import (
	"errors"
	"testing"
)

func TestCloseTracker_AggregatesBothReports(t *testing.T) {
	ct := &closeTracker{}

	done, agg := ct.report(nil)
	if done {
		t.Fatalf("expected not done after first report")
	}
	if agg != nil {
		t.Fatalf("expected nil aggregate after a single nil report, got %v", agg)
	}

	errBoom := errors.New("boom")
	done, agg = ct.report(errBoom)
	if !done {
		t.Fatalf("expected done after second report")
	}
	if agg == nil || !errors.Is(agg, errBoom) {
		t.Fatalf("expected aggregate to wrap %v, got %v", errBoom, agg)
	}
}

func TestCloseTracker_BothNilStaysNil(t *testing.T) {
	ct := &closeTracker{}
	ct.report(nil)
	done, agg := ct.report(nil)
	if !done {
		t.Fatalf("expected done after second report")
	}
	if agg != nil {
		t.Fatalf("expected nil aggregate when both closes succeed, got %v", agg)
	}
}
