package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCheckoutMetricsExportsFunnelCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCheckoutMetrics(reg)

	m.IncOpened()
	m.IncLead()
	m.IncIntent("predictive")
	m.IncConfirm("succeeded")
	m.ObserveConfirmDuration(150 * time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "checkout_intents_total", "path", "predictive"); err != nil {
		t.Fatalf("fetch intents: %v", err)
	} else if got != 1 {
		t.Fatalf("expected intents=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "checkout_confirm_total", "outcome", "succeeded"); err != nil {
		t.Fatalf("fetch confirm: %v", err)
	} else if got != 1 {
		t.Fatalf("expected confirm=1, got %f", got)
	}

	hist := findMetricFamily(mfs, "checkout_confirm_duration_seconds")
	if hist == nil {
		t.Fatal("confirm duration histogram missing")
	}
	if sum := hist.GetMetric()[0].GetHistogram().GetSampleSum(); sum <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", sum)
	}
}

func TestCheckoutMetricsNilReceiverIsSafe(t *testing.T) {
	var m *CheckoutMetrics
	m.IncOpened()
	m.IncConfirm("declined")
	m.ObserveConfirmDuration(time.Second)

	empty := NewCheckoutMetrics(nil)
	empty.IncLead()
	empty.IncIntent("cold")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("counter %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
