package rules

import "github.com/aretw0/arbor/pkg/decision"

// Form field kinds a rule script can declare through the `field` global.
const (
	FieldText   = "text"
	FieldNode   = "node"
	FieldAnswer = "answer"
	FieldChoice = "choice"
)

// FormField is a script declared input. Scripts call `field(name, kind,
// default, options)` to surface a configurable value in the rule editor;
// the host collects the declarations and feeds persisted values back on the
// next evaluation.
type FormField struct {
	Name    string
	Kind    string
	Default string
	Options map[string]string
	Rule    *decision.Rule
	Root    decision.Node
}

// EffectiveKind normalizes unknown kinds to text.
func (f *FormField) EffectiveKind() string {
	switch f.Kind {
	case FieldNode, FieldAnswer, FieldChoice:
		return f.Kind
	default:
		return FieldText
	}
}
