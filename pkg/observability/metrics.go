// Package observability bridges engine lifecycle hooks to Prometheus
// metrics. Attach a Metrics instance with arbor.WithLifecycleHooks and
// expose the registry through promhttp.
package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/arbor/pkg/decision"
	"github.com/aretw0/arbor/pkg/ports"
)

var _ ports.LifecycleHooks = (*Metrics)(nil)

// Metrics implements ports.LifecycleHooks and records evaluation
// activity on a Prometheus registerer. Safe for concurrent use.
type Metrics struct {
	evaluations  *prometheus.CounterVec
	rules        *prometheus.CounterVec
	faults       *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	mu           sync.Mutex
	inflightTree map[string]time.Time
}

// Option configures a Metrics instance.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	namespace  string
}

// WithRegisterer sets the registerer metrics are registered on.
// Defaults to prometheus.DefaultRegisterer.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = r
	}
}

// WithNamespace sets the metric namespace. Defaults to "arbor".
func WithNamespace(ns string) Option {
	return func(o *options) {
		o.namespace = ns
	}
}

// NewMetrics creates and registers the evaluation metrics.
func NewMetrics(opts ...Option) (*Metrics, error) {
	o := options{
		registerer: prometheus.DefaultRegisterer,
		namespace:  "arbor",
	}
	for _, opt := range opts {
		opt(&o)
	}

	m := &Metrics{
		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: o.namespace,
				Name:      "evaluations_total",
				Help:      "Total number of full tree evaluations",
			},
			[]string{"tree"},
		),
		rules: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: o.namespace,
				Name:      "rules_evaluated_total",
				Help:      "Total number of rule script executions",
			},
			[]string{"kind", "outcome"},
		),
		faults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: o.namespace,
				Name:      "faults_total",
				Help:      "Total number of rule compile and runtime faults",
			},
			[]string{"kind"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: o.namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of full tree evaluations",
			},
			[]string{"tree"},
		),
		inflightTree: make(map[string]time.Time),
	}

	for _, c := range []prometheus.Collector{m.evaluations, m.rules, m.faults, m.duration} {
		if err := o.registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// OnBeforeEvaluate marks the start of a tree evaluation.
func (m *Metrics) OnBeforeEvaluate(root decision.Node) {
	m.mu.Lock()
	m.inflightTree[root.Meta().UID] = time.Now()
	m.mu.Unlock()
}

// OnTreeUpdated completes the evaluation started by OnBeforeEvaluate.
func (m *Metrics) OnTreeUpdated(root decision.Node) {
	uid := root.Meta().UID

	m.mu.Lock()
	start, ok := m.inflightTree[uid]
	delete(m.inflightTree, uid)
	m.mu.Unlock()

	m.evaluations.WithLabelValues(uid).Inc()
	if ok {
		m.duration.WithLabelValues(uid).Observe(time.Since(start).Seconds())
	}
}

// OnRuleEvaluated records a single rule execution.
func (m *Metrics) OnRuleEvaluated(rule *decision.Rule, passed bool, err error) {
	kind := rule.Type
	if kind == "" {
		kind = decision.RuleVisibility
	}
	outcome := "pass"
	switch {
	case err != nil:
		outcome = "error"
	case !passed:
		outcome = "fail"
	}
	m.rules.WithLabelValues(string(kind), outcome).Inc()
}

// OnError records a fault raised during evaluation.
func (m *Metrics) OnError(kind, message, uid string) {
	m.faults.WithLabelValues(kind).Inc()
}
