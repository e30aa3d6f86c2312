// Package metrics exposes the orchestration core's prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	OrchestrationsStarted   prometheus.Counter
	OrchestrationsCompleted *prometheus.CounterVec // outcome: final, fallback, error
	CapabilityExecutions    *prometheus.CounterVec // capability, outcome: success, failure, blocked, skipped
	SafetyVerdicts          *prometheus.CounterVec // decision, reviewed_by
	TriageFailOpen          prometheus.Counter
	LoopIterations          prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OrchestrationsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "coachartie_orchestrations_started_total",
			Help: "Messages entering orchestration.",
		}),
		OrchestrationsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coachartie_orchestrations_completed_total",
			Help: "Orchestrations finished, by outcome.",
		}, []string{"outcome"}),
		CapabilityExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coachartie_capability_executions_total",
			Help: "Capability dispatches, by capability and outcome.",
		}, []string{"capability", "outcome"}),
		SafetyVerdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coachartie_safety_verdicts_total",
			Help: "Safety review verdicts, by decision and reviewing layer.",
		}, []string{"decision", "reviewed_by"}),
		TriageFailOpen: factory.NewCounter(prometheus.CounterOpts{
			Name: "coachartie_triage_fail_open_total",
			Help: "Times triage failed and the full registry was used.",
		}),
		LoopIterations: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "coachartie_loop_iterations",
			Help:    "Loop iterations per orchestrated message.",
			Buckets: prometheus.LinearBuckets(0, 1, 12),
		}),
	}
}

// NewNop returns metrics bound to a throwaway registry, for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
