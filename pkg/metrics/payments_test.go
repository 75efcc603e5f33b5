package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCheckoutMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCheckoutMetrics(reg)

	m.IncSuccess()
	m.IncSuccess()
	m.IncFailure("INVALID_COUPON")
	m.IncFailure("")
	m.ObserveDuration("success", 150*time.Millisecond)

	if got := testutil.ToFloat64(m.success); got != 2 {
		t.Fatalf("success counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.failure.WithLabelValues("INVALID_COUPON")); got != 1 {
		t.Fatalf("failure counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.failure.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("empty code should map to unknown, got %v", got)
	}
}

func TestWebhookMetricsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWebhookMetrics(reg)

	m.IncOutcome("order-updated")
	m.IncOutcome("order-updated")
	m.IncOutcome("already-processed")

	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("order-updated")); got != 2 {
		t.Fatalf("order-updated = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("already-processed")); got != 1 {
		t.Fatalf("already-processed = %v, want 1", got)
	}
}

func TestNilRegistererIsSafe(t *testing.T) {
	c := NewCheckoutMetrics(nil)
	c.IncSuccess()
	c.IncFailure("x")
	c.ObserveDuration("success", time.Second)

	w := NewWebhookMetrics(nil)
	w.IncOutcome("order-updated")
}
