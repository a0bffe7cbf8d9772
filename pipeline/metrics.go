package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the pipeline stages. All methods are nil-safe so an
// uninstrumented pipeline carries no overhead.
type Metrics struct {
	requestsTotal       *prometheus.CounterVec
	candidatesGenerated prometheus.Counter
	candidatesRejected  *prometheus.CounterVec
	executionsTotal     *prometheus.CounterVec
	stageDuration       *prometheus.HistogramVec
}

// NewMetrics registers the pipeline metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ontobot",
			Subsystem: "pipeline",
			Name:      "requests_total",
			Help:      "Requests processed, by result (answered, no_evidence, error).",
		}, []string{"result"}),
		candidatesGenerated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ontobot",
			Subsystem: "pipeline",
			Name:      "candidates_generated_total",
			Help:      "Candidate queries produced by the planner.",
		}),
		candidatesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ontobot",
			Subsystem: "pipeline",
			Name:      "candidates_rejected_total",
			Help:      "Candidates rejected during validation, by reason.",
		}, []string{"reason"}),
		executionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ontobot",
			Subsystem: "pipeline",
			Name:      "executions_total",
			Help:      "Candidate executions, by outcome.",
		}, []string{"outcome"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ontobot",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock duration of pipeline stages.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"stage"}),
	}
}

func (m *Metrics) observeRequest(result string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) observeGenerated(count int) {
	if m == nil {
		return
	}
	m.candidatesGenerated.Add(float64(count))
}

func (m *Metrics) observeRejected(kind RejectionKind) {
	if m == nil {
		return
	}
	m.candidatesRejected.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) observeExecution(outcome Outcome) {
	if m == nil {
		return
	}
	m.executionsTotal.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) observeStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
