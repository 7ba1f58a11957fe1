package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matches(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matches(m *dto.Metric, labels map[string]string) bool {
	for _, lp := range m.GetLabel() {
		if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
			return false
		}
	}
	return true
}

func TestIntakeMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewIntakeMetrics(reg)
	m.ObserveSubmission("succeeded")
	m.ObserveDispatch("team", false)
	m.ObserveDispatch("team", false)
	m.ObserveAttachment("accepted")
	m.ObserveDraftSave("ok")
	m.ObserveFollowUp(true)

	if got := counterValue(t, reg, "intake_notify_dispatch_total", map[string]string{"kind": "team", "status": "error"}); got != 2 {
		t.Errorf("dispatch errors = %v, want 2", got)
	}
	if got := counterValue(t, reg, "intake_submission_total", map[string]string{"state": "succeeded"}); got != 1 {
		t.Errorf("submissions = %v, want 1", got)
	}
}

func TestIntakeMetricsNilSafe(t *testing.T) {
	var m *IntakeMetrics
	m.ObserveSubmission("succeeded")
	m.ObserveDispatch("client", true)
	m.ObserveAttachment("too_large")
	m.ObserveDraftSave("error")
	m.ObserveFollowUp(false)
}
