package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTreasuryInvocationOutcomes(t *testing.T) {
	m := Treasury()
	before := testutil.ToFloat64(m.invocations.WithLabelValues("metricsTrade", "failed"))
	m.ObserveInvocation("metricsTrade", "TRADE_TIME", time.Millisecond)
	m.ObserveInvocation("metricsTrade", "", time.Millisecond)

	if got := testutil.ToFloat64(m.invocations.WithLabelValues("metricsTrade", "failed")); got != before+1 {
		t.Fatalf("failed invocations = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(m.failures.WithLabelValues("metricsTrade", "TRADE_TIME")); got < 1 {
		t.Fatalf("failure code not recorded")
	}
	m.RecordOperation("  ")
	if got := testutil.ToFloat64(m.operations.WithLabelValues("unknown")); got < 1 {
		t.Fatalf("blank entrypoint not normalised")
	}
}

func TestKeeperTickGauges(t *testing.T) {
	k := Keeper()
	at := time.Unix(1_700_000_000, 0)
	k.RecordTick("ceiling-maker", 7, at)
	if got := testutil.ToFloat64(k.lastCode.WithLabelValues("ceiling-maker")); got != 7 {
		t.Fatalf("last code = %v", got)
	}
	k.RecordTick("ceiling-maker", 0, at.Add(time.Minute))
	if got := testutil.ToFloat64(k.lastCode.WithLabelValues("ceiling-maker")); got != 0 {
		t.Fatalf("last code not reset: %v", got)
	}
	if got := testutil.ToFloat64(k.lastRun.WithLabelValues("ceiling-maker")); got != float64(at.Add(time.Minute).Unix()) {
		t.Fatalf("last run = %v", got)
	}
	if got := testutil.ToFloat64(k.ticks.WithLabelValues("ceiling-maker", "skipped")); got != 1 {
		t.Fatalf("skipped ticks = %v", got)
	}
}

func TestEventCounters(t *testing.T) {
	e := Events()
	e.RecordEvent("sweep.started")
	e.RecordTransfer("")
	if got := testutil.ToFloat64(e.emitted.WithLabelValues("sweep.started")); got != 1 {
		t.Fatalf("emitted = %v", got)
	}
	if got := testutil.ToFloat64(e.transfers.WithLabelValues("unknown")); got < 1 {
		t.Fatalf("blank asset not normalised")
	}
}
