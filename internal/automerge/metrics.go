package automerge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricNamespace = "automerger"

const (
	outcomeLabel = "outcome"
	resultLabel  = "result"
)

const (
	resolveResultFound    = "found"
	resolveResultNotFound = "not_found"
	resolveResultError    = "error"
)

type metricCollector struct {
	evaluations        *prometheus.CounterVec
	evaluationFailures prometheus.Counter
	resolutions        *prometheus.CounterVec
	scannedPRs         prometheus.Histogram
}

var metrics = newMetricCollector()

func newMetricCollector() *metricCollector {
	return &metricCollector{
		evaluations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Subsystem: "engine",
				Name:      "evaluations_total",
				Help:      "count of pull request evaluations by outcome",
			},
			[]string{outcomeLabel},
		),
		evaluationFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Subsystem: "engine",
				Name:      "evaluation_failures_total",
				Help:      "count of pull request evaluations that failed with an error",
			},
		),
		resolutions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Subsystem: "resolver",
				Name:      "commit_resolutions_total",
				Help:      "count of searches for the pull request containing a commit, by result",
			},
			[]string{resultLabel},
		),
		scannedPRs: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricNamespace,
				Subsystem: "resolver",
				Name:      "scanned_pull_requests",
				Help:      "number of pull requests whose commits were fetched per commit resolution",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
	}
}

func (m *metricCollector) evaluationInc(outcome Outcome) {
	m.evaluations.WithLabelValues(string(outcome)).Inc()
}

func (m *metricCollector) evaluationFailureInc() {
	m.evaluationFailures.Inc()
}

func (m *metricCollector) resolutionObserve(result string, scanned int) {
	m.resolutions.WithLabelValues(result).Inc()
	m.scannedPRs.Observe(float64(scanned))
}
