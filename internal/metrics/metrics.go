// Package metrics holds the Prometheus instruments shared by the command,
// projection and saga layers. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Default histogram buckets for latency metrics (in seconds).
var defaultBuckets = []float64{
	.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10,
}

type Metrics struct {
	eventsAppended       *prometheus.CounterVec
	concurrencyConflicts *prometheus.CounterVec
	snapshotsSaved       *prometheus.CounterVec
	commandDuration      *prometheus.HistogramVec
	commandsRejected     *prometheus.CounterVec
	projectionFailures   *prometheus.CounterVec
	sagaOutcomes         *prometheus.CounterVec
	sagaStepDuration     *prometheus.HistogramVec
}

// New builds the collectors and registers them with reg. A nil reg leaves them
// unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		eventsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "es_events_appended_total",
			Help: "Total number of events appended",
		}, []string{"aggregate_type"}),

		concurrencyConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "es_concurrency_conflicts_total",
			Help: "Total number of appends rejected for a stale expected version",
		}, []string{"aggregate_type"}),

		snapshotsSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "es_snapshots_saved_total",
			Help: "Total number of snapshots written",
		}, []string{"aggregate_type"}),

		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "es_command_duration_seconds",
			Help:    "Command handling latency in seconds",
			Buckets: defaultBuckets,
		}, []string{"command"}),

		commandsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "es_commands_rejected_total",
			Help: "Total number of commands rejected by domain validation",
		}, []string{"command"}),

		projectionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "es_projection_failures_total",
			Help: "Total number of events a projector failed to apply",
		}, []string{"projector"}),

		sagaOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "saga_runs_total",
			Help: "Total number of saga runs by terminal status",
		}, []string{"saga", "status"}),

		sagaStepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "saga_step_duration_seconds",
			Help:    "Saga step execution latency in seconds",
			Buckets: defaultBuckets,
		}, []string{"saga", "step"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.eventsAppended,
			m.concurrencyConflicts,
			m.snapshotsSaved,
			m.commandDuration,
			m.commandsRejected,
			m.projectionFailures,
			m.sagaOutcomes,
			m.sagaStepDuration,
		)
	}

	return m
}

func (m *Metrics) EventsAppended(aggType string, count int) {
	if m == nil {
		return
	}
	m.eventsAppended.WithLabelValues(aggType).Add(float64(count))
}

func (m *Metrics) ConcurrencyConflict(aggType string) {
	if m == nil {
		return
	}
	m.concurrencyConflicts.WithLabelValues(aggType).Inc()
}

func (m *Metrics) SnapshotSaved(aggType string) {
	if m == nil {
		return
	}
	m.snapshotsSaved.WithLabelValues(aggType).Inc()
}

// ObserveCommand records the time since start for a command.
func (m *Metrics) ObserveCommand(command string, start time.Time) {
	if m == nil {
		return
	}
	m.commandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
}

func (m *Metrics) CommandRejected(command string) {
	if m == nil {
		return
	}
	m.commandsRejected.WithLabelValues(command).Inc()
}

func (m *Metrics) ProjectionFailed(projector string) {
	if m == nil {
		return
	}
	m.projectionFailures.WithLabelValues(projector).Inc()
}

func (m *Metrics) SagaFinished(saga, status string) {
	if m == nil {
		return
	}
	m.sagaOutcomes.WithLabelValues(saga, status).Inc()
}

func (m *Metrics) ObserveSagaStep(saga, step string, start time.Time) {
	if m == nil {
		return
	}
	m.sagaStepDuration.WithLabelValues(saga, step).Observe(time.Since(start).Seconds())
}
