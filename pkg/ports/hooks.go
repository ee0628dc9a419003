package ports

import "github.com/aretw0/arbor/pkg/decision"

// LifecycleHooks lets embedders observe the evaluation lifecycle without
// coupling the engine to a metrics or UI layer. All methods may be called
// from the goroutine running the evaluation; implementations must be fast
// and must not call back into the engine.
type LifecycleHooks interface {
	// OnBeforeEvaluate fires once per evaluation pass over a tree.
	OnBeforeEvaluate(root decision.Node)

	// OnRuleEvaluated fires after each rule run, whether it passed or not.
	OnRuleEvaluated(rule *decision.Rule, outcome bool, err error)

	// OnTreeUpdated fires after an evaluation pass changed visibility or
	// validation state, so observers can re-render.
	OnTreeUpdated(root decision.Node)

	// OnError fires for recoverable evaluation faults. kind distinguishes
	// compile errors from runtime errors.
	OnError(kind, message, uid string)
}

// NopHooks is a LifecycleHooks implementation that does nothing. Embed it to
// implement only the callbacks you care about.
type NopHooks struct{}

func (NopHooks) OnBeforeEvaluate(decision.Node)              {}
func (NopHooks) OnRuleEvaluated(*decision.Rule, bool, error) {}
func (NopHooks) OnTreeUpdated(decision.Node)                 {}
func (NopHooks) OnError(kind, message, uid string)           {}
