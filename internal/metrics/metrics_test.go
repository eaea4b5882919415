package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counts(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Scheduled("REMINDER")
	m.Scheduled("REMINDER")
	m.Delivered("DUE_DATE")
	m.OccurrenceCreated()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.scheduled.WithLabelValues("REMINDER")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.delivered.WithLabelValues("DUE_DATE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.occurrences))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Scheduled("REMINDER")
		m.Cancelled("REMINDER")
		m.Stale("REMINDER")
		m.Failure("schedule")
		m.Snoozed()
	})
}
