package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/answers"
	"github.com/aretw0/arbor/pkg/decision"
	"github.com/aretw0/arbor/pkg/ports"
)

func newQuestion(uid, label string) *decision.Question {
	q := &decision.Question{Label: label, Type: decision.QuestionText}
	q.UID = uid
	return q
}

func newRule(uid string, ruleType decision.RuleType, script string) *decision.Rule {
	r := &decision.Rule{Type: ruleType, Script: script}
	r.UID = uid
	return r
}

// conditionalTree builds a root with a trigger question and a dependent
// question only visible once the trigger is answered.
func conditionalTree() (*decision.Root, *decision.Question, *decision.Question) {
	root := &decision.Root{Name: "flow"}
	root.UID = "root-1"
	trigger := newQuestion("q-trigger", "Do you work?")
	dependent := newQuestion("q-dependent", "Where?")
	decision.AddChild(root, trigger)
	decision.AddChild(root, dependent)
	decision.AddChild(dependent, newRule("r-vis", decision.RuleVisibility, `return has('q-trigger')`))
	return root, trigger, dependent
}

func TestEvaluateVisibility(t *testing.T) {
	t.Run("unanswered trigger hides the dependent question", func(t *testing.T) {
		root, _, dependent := conditionalTree()
		e := New()
		defer e.Close()
		data := answers.New("u")

		e.Evaluate(root, []decision.Node{root}, data)

		require.True(t, data.IsHidden(dependent, root, ""))
	})

	t.Run("answering the trigger reveals the question", func(t *testing.T) {
		root, trigger, dependent := conditionalTree()
		e := New()
		defer e.Close()
		data := answers.New("u")

		e.Evaluate(root, []decision.Node{root}, data)
		data.AddAnswer(trigger, "yes", "")
		e.Evaluate(root, []decision.Node{root}, data)

		require.False(t, data.IsHidden(dependent, root, ""))
	})

	t.Run("first passing rule short-circuits the rest", func(t *testing.T) {
		root := &decision.Root{Name: "flow"}
		root.UID = "root-1"
		q := newQuestion("q1", "q")
		decision.AddChild(root, q)
		decision.AddChild(q, newRule("r1", decision.RuleVisibility, `return true`))
		decision.AddChild(q, newRule("r2", decision.RuleVisibility, `return false`))

		var seen []string
		hooks := &recordingHooks{onRule: func(r *decision.Rule, passed bool, err error) {
			seen = append(seen, r.UID)
		}}
		e := New(WithHooks(hooks))
		defer e.Close()
		data := answers.New("u")

		e.Evaluate(root, []decision.Node{root}, data)

		require.Equal(t, []string{"r1"}, seen)
		require.False(t, data.IsHidden(q, root, ""))
	})

	t.Run("hidden subtrees are not evaluated", func(t *testing.T) {
		root := &decision.Root{Name: "flow"}
		root.UID = "root-1"
		group := &decision.Group{Name: "section"}
		group.UID = "g1"
		inner := newQuestion("q-inner", "inner")
		decision.AddChild(root, group)
		decision.AddChild(group, newRule("r-hide", decision.RuleVisibility, `return false`))
		decision.AddChild(group, inner)
		decision.AddChild(inner, newRule("r-inner", decision.RuleValidation, `return false, 'never runs'`))

		data := answers.New("u")
		e := New()
		defer e.Close()
		e.Evaluate(root, []decision.Node{root}, data)

		require.True(t, data.IsHidden(group, root, ""))
		require.Empty(t, data.ValidationMessages(inner, ""))
	})
}

func TestEvaluateValidation(t *testing.T) {
	t.Run("failures accumulate across rules", func(t *testing.T) {
		root := &decision.Root{Name: "flow"}
		root.UID = "root-1"
		q := newQuestion("q1", "q")
		decision.AddChild(root, q)
		decision.AddChild(q, newRule("r1", decision.RuleValidation, `return false, 'too short'`))
		decision.AddChild(q, newRule("r2", decision.RuleValidation, `return false`))
		decision.AddChild(q, newRule("r3", decision.RuleValidation, `return true`))

		data := answers.New("u")
		e := New()
		defer e.Close()
		e.Evaluate(root, []decision.Node{root}, data)

		require.Equal(t, []string{"too short", "This field is invalid."}, data.ValidationMessages(q, ""))
	})

	t.Run("messages reset on every pass", func(t *testing.T) {
		root := &decision.Root{Name: "flow"}
		root.UID = "root-1"
		q := newQuestion("q1", "q")
		decision.AddChild(root, q)
		decision.AddChild(q, newRule("r1", decision.RuleValidation, `return #get('q1') > 0, 'an answer is required'`))

		data := answers.New("u")
		e := New()
		defer e.Close()

		e.Evaluate(root, []decision.Node{root}, data)
		require.Equal(t, []string{"an answer is required"}, data.ValidationMessages(q, ""))

		data.AddAnswer(q, "filled", "")
		e.Evaluate(root, []decision.Node{root}, data)
		require.Empty(t, data.ValidationMessages(q, ""))
	})
}

func TestEvaluateMatrix(t *testing.T) {
	root := &decision.Root{Name: "flow"}
	root.UID = "root-1"
	matrix := &decision.Matrix{Name: "jobs"}
	matrix.UID = "m1"
	title := newQuestion("q-title", "Title")
	decision.AddChild(root, matrix)
	decision.AddChild(matrix, title)
	decision.AddChild(title, newRule("r-req", decision.RuleValidation, `return #parent():answers() > 0, 'title required'`))

	data := answers.New("u")
	data.AddAnswer(title, "Engineer", "row-1")
	data.AddAnswer(title, "", "row-2")
	data.AddAnswer(title, "row-2", "")

	e := New()
	defer e.Close()
	e.Evaluate(root, []decision.Node{root}, data)

	// Row one is answered, row two is not; each row validates on its own.
	require.Empty(t, data.ValidationMessages(title, "row-1"))
	require.Equal(t, []string{"title required"}, data.ValidationMessages(title, "row-2"))
}

func TestEvaluateFaultIsolation(t *testing.T) {
	t.Run("runtime error fails the rule but not the pass", func(t *testing.T) {
		root := &decision.Root{Name: "flow"}
		root.UID = "root-1"
		broken := newQuestion("q-broken", "broken")
		healthy := newQuestion("q-healthy", "healthy")
		decision.AddChild(root, broken)
		decision.AddChild(root, healthy)
		decision.AddChild(broken, newRule("r-bad", decision.RuleVisibility, `error('boom')`))
		decision.AddChild(healthy, newRule("r-good", decision.RuleVisibility, `return true`))

		var faults []string
		hooks := &recordingHooks{onError: func(kind, message, uid string) {
			faults = append(faults, kind+":"+uid)
		}}
		data := answers.New("u")
		e := New(WithHooks(hooks))
		defer e.Close()
		e.Evaluate(root, []decision.Node{root}, data)

		require.Equal(t, []string{"runtime:r-bad"}, faults)
		require.True(t, data.IsHidden(broken, root, ""))
		require.False(t, data.IsHidden(healthy, root, ""))
	})

	t.Run("compile error keeps the node hidden", func(t *testing.T) {
		root := &decision.Root{Name: "flow"}
		root.UID = "root-1"
		q := newQuestion("q1", "q")
		decision.AddChild(root, q)
		decision.AddChild(q, newRule("r-syntax", decision.RuleVisibility, `return return`))

		var faults []string
		hooks := &recordingHooks{onError: func(kind, message, uid string) {
			faults = append(faults, kind+":"+uid)
		}}
		data := answers.New("u")
		e := New(WithHooks(hooks))
		defer e.Close()

		e.Evaluate(root, []decision.Node{root}, data)
		e.Evaluate(root, []decision.Node{root}, data)

		// Compiled once, cached after.
		require.Equal(t, []string{"compile:r-syntax"}, faults)
		require.True(t, data.IsHidden(q, root, ""))
	})

	t.Run("compile error leaves a validation rule silent", func(t *testing.T) {
		root := &decision.Root{Name: "flow"}
		root.UID = "root-1"
		q := newQuestion("q1", "q")
		decision.AddChild(root, q)
		decision.AddChild(q, newRule("r-syntax", decision.RuleValidation, `return return`))

		data := answers.New("u")
		e := New()
		defer e.Close()

		report := e.Evaluate(root, []decision.Node{root}, data)

		// A rule that never compiled does not fire, so it cannot fail
		// the form or leave a message behind.
		require.Empty(t, data.ValidationMessages(q, ""))
		require.True(t, report.Valid())
		require.Equal(t, 1, report.Faults)
		require.Zero(t, report.RulesEvaluated)
	})
}

type recordingHooks struct {
	ports.NopHooks
	onRule  func(*decision.Rule, bool, error)
	onError func(kind, message, uid string)
}

func (h *recordingHooks) OnRuleEvaluated(rule *decision.Rule, passed bool, err error) {
	if h.onRule != nil {
		h.onRule(rule, passed, err)
	}
}

func (h *recordingHooks) OnError(kind, message, uid string) {
	if h.onError != nil {
		h.onError(kind, message, uid)
	}
}
