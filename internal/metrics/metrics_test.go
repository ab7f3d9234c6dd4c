package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register should tolerate duplicates: %v", err)
	}
}

func TestObserveRunNormalisesOutcome(t *testing.T) {
	before := testutil.ToFloat64(runsTotal.WithLabelValues(OutcomeError))
	ObserveRun(-time.Second, "bogus")
	after := testutil.ToFloat64(runsTotal.WithLabelValues(OutcomeError))
	if after-before != 1 {
		t.Fatalf("expected unknown outcome to count as error, delta %v", after-before)
	}

	before = testutil.ToFloat64(runsTotal.WithLabelValues(OutcomePartial))
	ObserveRun(time.Second, OutcomePartial)
	if got := testutil.ToFloat64(runsTotal.WithLabelValues(OutcomePartial)) - before; got != 1 {
		t.Fatalf("expected partial delta 1, got %v", got)
	}
}

func TestObserveProbeAndDetection(t *testing.T) {
	before := testutil.ToFloat64(probesTotal.WithLabelValues(ProbeTimedOut))
	ObserveProbe(ProbeTimedOut)
	ObserveProbe(ProbeTimedOut)
	if got := testutil.ToFloat64(probesTotal.WithLabelValues(ProbeTimedOut)) - before; got != 2 {
		t.Fatalf("expected 2 timed out probes, got %v", got)
	}

	before = testutil.ToFloat64(detectionsTotal.WithLabelValues("database", "compatible"))
	ObserveDetection("database", "compatible")
	if got := testutil.ToFloat64(detectionsTotal.WithLabelValues("database", "compatible")) - before; got != 1 {
		t.Fatalf("expected 1 detection, got %v", got)
	}
}
