package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricNamespace = "automerger_dispatcher"

const (
	kindLabel   = "task_kind"
	resultLabel = "result"
)

const (
	resultLabelSuccess = "success"
	resultLabelFailure = "failure"
	resultLabelPanic   = "panic"
)

type metricCollector struct {
	dispatched        *prometheus.CounterVec
	coalesced         *prometheus.CounterVec
	executions        *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	runningBuckets    prometheus.Gauge
}

var metrics = newMetricCollector()

func newMetricCollector() *metricCollector {
	return &metricCollector{
		dispatched: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "dispatched_tasks_total",
				Help:      "count of tasks passed to Dispatch",
			},
			[]string{kindLabel},
		),
		coalesced: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "coalesced_tasks_total",
				Help:      "count of pending tasks that were replaced by a newer task before they ran",
			},
			[]string{kindLabel},
		),
		executions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "task_executions_total",
				Help:      "count of task handler executions",
			},
			[]string{kindLabel, resultLabel},
		),
		executionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricNamespace,
				Name:      "task_execution_duration_seconds",
				Help:      "duration of task handler executions",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{kindLabel},
		),
		runningBuckets: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricNamespace,
				Name:      "running_buckets",
				Help:      "number of buckets with a running task execution",
			},
		),
	}
}

func (m *metricCollector) dispatchedInc(kind string) {
	m.dispatched.WithLabelValues(kind).Inc()
}

func (m *metricCollector) coalescedInc(kind string) {
	m.coalesced.WithLabelValues(kind).Inc()
}

func (m *metricCollector) executionObserve(kind, result string, d time.Duration) {
	m.executions.WithLabelValues(kind, result).Inc()
	m.executionDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *metricCollector) runningBucketsInc() {
	m.runningBuckets.Inc()
}

func (m *metricCollector) runningBucketsDec() {
	m.runningBuckets.Dec()
}
