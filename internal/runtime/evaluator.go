// Package runtime walks decision trees and drives rule evaluation against
// an answer store. It owns the per-rule script host cache and enforces the
// visibility and validation pass semantics.
package runtime

import (
	"log/slog"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/answers"
	"github.com/aretw0/arbor/pkg/decision"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/rules"
)

// Fault kinds reported through LifecycleHooks.OnError.
const (
	FaultCompile = "compile"
	FaultRuntime = "runtime"
)

// Evaluator runs visibility and validation rules over decision trees.
// Script hosts are cached per rule (and per matrix row) so that script
// state survives between passes; Reset drops the cache when trees reload.
//
// An Evaluator is not safe for concurrent use; callers serialize passes.
type Evaluator struct {
	logger *slog.Logger
	hooks  ports.LifecycleHooks

	trees  []decision.Node
	data   *answers.Store
	hosts  map[string]*rules.Host
	report Report
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the evaluation logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithHooks sets the lifecycle hooks notified during evaluation.
func WithHooks(hooks ports.LifecycleHooks) Option {
	return func(e *Evaluator) {
		if hooks != nil {
			e.hooks = hooks
		}
	}
}

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		logger: logging.NewNop(),
		hooks:  ports.NopHooks{},
		hosts:  make(map[string]*rules.Host),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reset drops every cached script host. Must be called when the tree set is
// rebuilt, since cached hosts hold handles into the old instances.
func (e *Evaluator) Reset() {
	for _, h := range e.hosts {
		h.Close()
	}
	e.hosts = make(map[string]*rules.Host)
}

// Close releases all cached script hosts.
func (e *Evaluator) Close() {
	e.Reset()
}

// Report summarizes one evaluation pass.
type Report struct {
	RulesEvaluated     int
	ValidationFailures int
	Faults             int
}

// Valid reports whether the pass saw no failing validation rule.
func (r Report) Valid() bool {
	return r.ValidationFailures == 0
}

// Evaluate runs a full rule pass over root. trees is the complete set of
// known trees (for cross tree lookups); data receives the resulting hidden
// flags and validation messages.
func (e *Evaluator) Evaluate(root decision.Node, trees []decision.Node, data *answers.Store) Report {
	if root == nil || data == nil {
		return Report{}
	}
	start := time.Now()
	e.trees = trees
	e.data = data
	e.report = Report{}
	e.hooks.OnBeforeEvaluate(root)

	e.walk(root, "")

	e.hooks.OnTreeUpdated(root)
	e.logger.Debug("evaluated rules",
		"uid", root.Meta().UID,
		"user_key", data.Key,
		"rules", e.report.RulesEvaluated,
		"duration", time.Since(start),
	)
	return e.report
}

// walk evaluates one node at one matrix scope, then recurses. Visibility
// rules run first with the node hidden by default; the first passing rule
// unhides it and short-circuits the rest. A node that stays hidden is not
// recursed into. Validation rules all run and their failures accumulate.
func (e *Evaluator) walk(node decision.Node, matrixID string) {
	e.data.ResetValidationState(node, matrixID)

	if decision.HasRuleOfKind(node, decision.RuleVisibility) {
		e.data.SetHidden(node, true, matrixID)
		for _, child := range node.Meta().Children {
			rule, ok := child.(*decision.Rule)
			if !ok || (rule.Type != "" && rule.Type != decision.RuleVisibility) {
				continue
			}
			res, ran, err := e.run(rule, matrixID)
			if !ran {
				continue
			}
			e.report.RulesEvaluated++
			e.hooks.OnRuleEvaluated(rule, res.Passed, err)
			if err != nil {
				e.fault(rule, FaultRuntime, err)
				continue
			}
			if res.Passed {
				e.data.SetHidden(node, false, matrixID)
				break
			}
		}
	}
	if e.data.IsHidden(node, nil, matrixID) {
		return
	}

	if decision.HasRuleOfKind(node, decision.RuleValidation) {
		for _, child := range node.Meta().Children {
			rule, ok := child.(*decision.Rule)
			if !ok || rule.Type != decision.RuleValidation {
				continue
			}
			res, ran, err := e.run(rule, matrixID)
			if !ran {
				continue
			}
			e.report.RulesEvaluated++
			e.hooks.OnRuleEvaluated(rule, res.Passed, err)
			if err != nil {
				e.fault(rule, FaultRuntime, err)
				continue
			}
			if !res.Passed {
				e.report.ValidationFailures++
				e.data.AddValidationMessage(node, res.Message, matrixID)
			}
		}
	}

	for _, child := range node.Meta().Children {
		if matrix, ok := child.(*decision.Matrix); ok {
			for _, rowID := range e.data.FindMatrixIDs(matrix) {
				e.walk(matrix, rowID)
			}
			continue
		}
		e.walk(child, matrixID)
	}
}

// run evaluates one rule through its cached host. The second return is
// false when the rule was skipped because its script does not compile;
// a skipped rule behaves as if it never fired.
func (e *Evaluator) run(rule *decision.Rule, matrixID string) (rules.Result, bool, error) {
	host := e.hostFor(rule, matrixID)
	if host.Broken() {
		return rules.Result{}, false, nil
	}
	host.BindUserData(e.data)
	res, err := host.Evaluate()
	return res, true, err
}

// hostFor returns the cached host for a rule at a matrix scope, creating
// and compiling it on first use. A rule that fails to compile keeps its
// host, marked broken, so the fault is reported once and the rule is
// skipped on every pass.
func (e *Evaluator) hostFor(rule *decision.Rule, matrixID string) *rules.Host {
	key := rule.UID
	if matrixID != "" {
		key = key + "_" + matrixID
	}
	if host, ok := e.hosts[key]; ok {
		return host
	}

	host := rules.NewHost(rules.WithLogger(e.logger))
	for _, tree := range e.trees {
		if decision.Find(tree, rule.UID) != nil {
			host.SetRoot(tree)
			break
		}
	}
	host.SetTrees(e.trees)
	host.SetMatrix(matrixID)
	if err := host.BindRule(rule); err != nil {
		e.fault(rule, FaultCompile, err)
	}
	e.hosts[key] = host
	return host
}

func (e *Evaluator) fault(rule *decision.Rule, kind string, err error) {
	e.report.Faults++
	e.logger.Warn("rule evaluation failed", "uid", rule.UID, "kind", kind, "err", err)
	e.hooks.OnError(kind, err.Error(), rule.UID)
}
