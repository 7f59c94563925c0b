// Package metrics exposes Prometheus collectors for the engine. A nil *Metrics
// is valid and records nothing, so services can run without a registry.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "complaint_engine"

// Metrics groups every collector the services report to
type Metrics struct {
	ComplaintsCreated     *prometheus.CounterVec
	AssignmentsTotal      *prometheus.CounterVec
	AssignmentConflicts   prometheus.Counter
	EscalationsTotal      *prometheus.CounterVec
	SweepDuration         prometheus.Histogram
	SweepFailures         prometheus.Counter
	NotificationsTotal    *prometheus.CounterVec
	PushBatchesTotal      *prometheus.CounterVec
	StatusTransitions     *prometheus.CounterVec
	NotificationsInFlight prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ComplaintsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "complaints_created_total",
			Help:      "Complaints submitted, by priority.",
		}, []string{"priority"}),
		AssignmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignments_total",
			Help:      "Successful assignment claims and transfers, by mode.",
		}, []string{"mode"}),
		AssignmentConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignment_conflicts_total",
			Help:      "Assignment claims that lost a concurrent race.",
		}),
		EscalationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Escalation records written, by level.",
		}, []string{"level"}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "escalation_sweep_duration_seconds",
			Help:      "Wall time of one escalation sweep.",
			Buckets:   prometheus.DefBuckets,
		}),
		SweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalation_sweep_failures_total",
			Help:      "Complaints whose evaluation failed during a sweep.",
		}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification outcomes, by channel and status.",
		}, []string{"channel", "status"}),
		PushBatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_batches_total",
			Help:      "Push provider batch calls, by outcome.",
		}, []string{"outcome"}),
		StatusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Complaint status transitions, by target status.",
		}, []string{"status"}),
		NotificationsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notification_dispatches_in_flight",
			Help:      "Dispatch calls currently running.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ComplaintsCreated,
			m.AssignmentsTotal,
			m.AssignmentConflicts,
			m.EscalationsTotal,
			m.SweepDuration,
			m.SweepFailures,
			m.NotificationsTotal,
			m.PushBatchesTotal,
			m.StatusTransitions,
			m.NotificationsInFlight,
		)
	}
	return m
}

func (m *Metrics) ComplaintCreated(priority string) {
	if m == nil {
		return
	}
	m.ComplaintsCreated.WithLabelValues(priority).Inc()
}

func (m *Metrics) AssignmentMade(mode string) {
	if m == nil {
		return
	}
	m.AssignmentsTotal.WithLabelValues(mode).Inc()
}

func (m *Metrics) AssignmentConflict() {
	if m == nil {
		return
	}
	m.AssignmentConflicts.Inc()
}

func (m *Metrics) Escalated(level int) {
	if m == nil {
		return
	}
	m.EscalationsTotal.WithLabelValues(strconv.Itoa(level)).Inc()
}

// SweepCompleted records one sweep's duration and its failed evaluations.
func (m *Metrics) SweepCompleted(d time.Duration, failed int) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(d.Seconds())
	m.SweepFailures.Add(float64(failed))
}

func (m *Metrics) NotificationOutcome(channel, status string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(channel, status).Inc()
}

func (m *Metrics) PushBatch(outcome string) {
	if m == nil {
		return
	}
	m.PushBatchesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) StatusChanged(status string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(status).Inc()
}

// DispatchStarted increments the in-flight gauge and returns its decrement.
func (m *Metrics) DispatchStarted() func() {
	if m == nil {
		return func() {}
	}
	m.NotificationsInFlight.Inc()
	return m.NotificationsInFlight.Dec
}
