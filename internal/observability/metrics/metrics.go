package metrics

import "github.com/prometheus/client_golang/prometheus"

// IntakeMetrics exposes counters for the intake workflow. A nil
// *IntakeMetrics is valid and records nothing.
type IntakeMetrics struct {
	submissionsTotal *prometheus.CounterVec
	dispatchTotal    *prometheus.CounterVec
	attachmentsTotal *prometheus.CounterVec
	draftSavesTotal  *prometheus.CounterVec
	followUpsSent    *prometheus.CounterVec
}

func NewIntakeMetrics(reg prometheus.Registerer) *IntakeMetrics {
	m := &IntakeMetrics{
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "submission",
			Name:      "total",
			Help:      "Submission attempts by terminal state",
		}, []string{"state"}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "notify",
			Name:      "dispatch_total",
			Help:      "Notification dispatches by kind and outcome",
		}, []string{"kind", "status"}),
		attachmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "attachments",
			Name:      "total",
			Help:      "Attachments offered, by policy result",
		}, []string{"result"}),
		draftSavesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "drafts",
			Name:      "saves_total",
			Help:      "Draft autosave writes by status",
		}, []string{"status"}),
		followUpsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "notify",
			Name:      "follow_ups_total",
			Help:      "Due follow-ups processed by the worker",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.submissionsTotal, m.dispatchTotal, m.attachmentsTotal, m.draftSavesTotal, m.followUpsSent)
	return m
}

func (m *IntakeMetrics) ObserveSubmission(state string) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(state).Inc()
}

func (m *IntakeMetrics) ObserveDispatch(kind string, ok bool) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(kind, statusLabel(ok)).Inc()
}

func (m *IntakeMetrics) ObserveAttachment(result string) {
	if m == nil {
		return
	}
	m.attachmentsTotal.WithLabelValues(result).Inc()
}

func (m *IntakeMetrics) ObserveDraftSave(status string) {
	if m == nil {
		return
	}
	m.draftSavesTotal.WithLabelValues(status).Inc()
}

func (m *IntakeMetrics) ObserveFollowUp(ok bool) {
	if m == nil {
		return
	}
	m.followUpsSent.WithLabelValues(statusLabel(ok)).Inc()
}

func statusLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
