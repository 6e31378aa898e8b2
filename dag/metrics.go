package dag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides Prometheus-compatible metrics for engine operations.
//
// Metrics exposed (all namespaced with "taskgraph_"):
//
//  1. cycle_checks_total (counter): dependency cycle pre-checks.
//     Labels: outcome (accepted/rejected).
//  2. definition_validations_total (counter): workflow definition
//     validations. Labels: outcome (valid/invalid).
//  3. transition_checks_total (counter): status transition checks.
//     Labels: machine (task/run/step), outcome (allowed/refused).
//  4. ready_computations_total (counter): readiness recomputations.
//  5. closure_size (histogram): node count of transitive closures computed
//     by dependency queries. Buckets sized for typical task graphs.
//
// Attach a Metrics to a Validator via Options, or call the Record methods
// from a store implementation. All methods are safe for concurrent use and
// are no-ops on a nil receiver, so instrumentation is always optional.
type Metrics struct {
	cycleChecks       *prometheus.CounterVec
	validations       *prometheus.CounterVec
	transitionChecks  *prometheus.CounterVec
	readyComputations prometheus.Counter
	closureSize       prometheus.Histogram
}

// NewMetrics creates and registers all engine metrics with the provided
// Prometheus registry. A nil registry falls back to the default global
// registerer; a dedicated registry is recommended for isolation.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		cycleChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskgraph",
			Name:      "cycle_checks_total",
			Help:      "Dependency cycle pre-checks performed",
		}, []string{"outcome"}), // outcome: accepted, rejected

		validations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskgraph",
			Name:      "definition_validations_total",
			Help:      "Workflow definition validations performed",
		}, []string{"outcome"}), // outcome: valid, invalid

		transitionChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskgraph",
			Name:      "transition_checks_total",
			Help:      "Status transition checks performed",
		}, []string{"machine", "outcome"}), // machine: task, run, step

		readyComputations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "taskgraph",
			Name:      "ready_computations_total",
			Help:      "Readiness set recomputations performed",
		}),

		closureSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "taskgraph",
			Name:      "closure_size",
			Help:      "Node count of transitive closures computed by dependency queries",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
	}
}

// RecordCycleCheck records the outcome of a cycle pre-check.
func (m *Metrics) RecordCycleCheck(wouldCycle bool) {
	if m == nil {
		return
	}
	outcome := "accepted"
	if wouldCycle {
		outcome = "rejected"
	}
	m.cycleChecks.WithLabelValues(outcome).Inc()
}

// RecordValidation records the outcome of a definition validation.
func (m *Metrics) RecordValidation(valid bool) {
	if m == nil {
		return
	}
	outcome := "valid"
	if !valid {
		outcome = "invalid"
	}
	m.validations.WithLabelValues(outcome).Inc()
}

// RecordTransitionCheck records a status transition check for one of the
// three state machines ("task", "run" or "step").
func (m *Metrics) RecordTransitionCheck(machine string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "refused"
	}
	m.transitionChecks.WithLabelValues(machine, outcome).Inc()
}

// RecordReadyComputation records one readiness recomputation.
func (m *Metrics) RecordReadyComputation() {
	if m == nil {
		return
	}
	m.readyComputations.Inc()
}

// RecordClosureSize records the size of a computed transitive closure.
func (m *Metrics) RecordClosureSize(n int) {
	if m == nil {
		return
	}
	m.closureSize.Observe(float64(n))
}
