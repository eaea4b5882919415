// Package metrics exposes delivery and recurrence counters for Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	scheduled   *prometheus.CounterVec
	cancelled   *prometheus.CounterVec
	delivered   *prometheus.CounterVec
	stale       *prometheus.CounterVec
	failures    *prometheus.CounterVec
	occurrences prometheus.Counter
	snoozes     prometheus.Counter
}

// New registers the counters on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		scheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mytaskpro",
			Name:      "notifications_scheduled_total",
			Help:      "Deliveries scheduled or rescheduled, by kind.",
		}, []string{"kind"}),
		cancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mytaskpro",
			Name:      "notifications_cancelled_total",
			Help:      "Delivery cancellations, by kind.",
		}, []string{"kind"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mytaskpro",
			Name:      "notifications_delivered_total",
			Help:      "Deliveries presented to users, by kind.",
		}, []string{"kind"}),
		stale: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mytaskpro",
			Name:      "notifications_stale_total",
			Help:      "Deliveries dropped because the task no longer expected them.",
		}, []string{"kind"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mytaskpro",
			Name:      "notification_failures_total",
			Help:      "Gateway or presenter failures, by operation.",
		}, []string{"op"}),
		occurrences: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mytaskpro",
			Name:      "occurrences_created_total",
			Help:      "Recurring task occurrences created on completion.",
		}),
		snoozes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mytaskpro",
			Name:      "snoozes_total",
			Help:      "Task snoozes.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.scheduled, m.cancelled, m.delivered, m.stale, m.failures, m.occurrences, m.snoozes)
	}
	return m
}

func (m *Metrics) Scheduled(kind string) {
	if m != nil {
		m.scheduled.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Cancelled(kind string) {
	if m != nil {
		m.cancelled.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Delivered(kind string) {
	if m != nil {
		m.delivered.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Stale(kind string) {
	if m != nil {
		m.stale.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Failure(op string) {
	if m != nil {
		m.failures.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) OccurrenceCreated() {
	if m != nil {
		m.occurrences.Inc()
	}
}

func (m *Metrics) Snoozed() {
	if m != nil {
		m.snoozes.Inc()
	}
}
