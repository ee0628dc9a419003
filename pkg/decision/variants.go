package decision

import (
	"encoding/json"
	"strings"
)

// RootType values for Root.Type.
const (
	RootTypeForm     = "form"
	RootTypeDocument = "document"
)

// Root is the top level node of a decision tree. Trees form a chain via the
// Next/Previous uid links.
type Root struct {
	Base
	Name        string
	Type        string
	Next        string
	Previous    string
	VersionHash string
	Embeds      map[string]any
}

func (r *Root) Kind() Kind { return KindRoot }

func (r *Root) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.UID
}

// Group is a titled section with rich text content.
type Group struct {
	Base
	Name        string
	Content     string
	ContentEdit string
}

func (g *Group) Kind() Kind { return KindGroup }

func (g *Group) DisplayName() string {
	if g.Name != "" {
		return g.Name
	}
	return g.UID
}

// Matrix is a repeatable sub tree. Each repetition is identified by a
// synthetic matrix row id that scopes answers, hidden state and validation.
type Matrix struct {
	Base
	Name string
}

func (m *Matrix) Kind() Kind { return KindMatrix }

func (m *Matrix) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	return m.UID
}

// QuestionType values for Question.Type.
const (
	QuestionText     = "text"
	QuestionChoice   = "choice"
	QuestionDropdown = "dropdown"
	QuestionUpload   = "upload"
)

// Question is an input field. Choice and dropdown questions carry Answer
// children as their options.
type Question struct {
	Base
	Label         string
	Type          string
	TextLines     int
	DefaultAnswer string
	Multiple      bool
}

func (q *Question) Kind() Kind { return KindQuestion }

func (q *Question) DisplayName() string {
	if q.Label != "" {
		return q.Label
	}
	return q.UID
}

// Answer is a selectable option belonging to a Question.
type Answer struct {
	Base
	Label string
	Value string
}

func (a *Answer) Kind() Kind { return KindAnswer }

func (a *Answer) DisplayName() string {
	if a.Label != "" {
		return a.Label
	}
	return a.UID
}

// RuleType identifies what a rule decides.
type RuleType string

const (
	// RuleVisibility rules decide whether the rule's parent is shown.
	RuleVisibility RuleType = "visibility"
	// RuleValidation rules decide whether the parent's answer is acceptable.
	RuleValidation RuleType = "validation"
)

// Rule attaches a user authored script to its parent node. Script holds
// either raw source or a JSON envelope {"value": source, "fields": {...}}
// carrying persisted form field values alongside the source.
type Rule struct {
	Base
	Label  string
	Type   RuleType
	Script string
}

func (r *Rule) Kind() Kind { return KindRule }

func (r *Rule) DisplayName() string {
	if r.Label != "" {
		return r.Label
	}
	return r.UID
}

type scriptEnvelope struct {
	Value  string         `json:"value"`
	Fields map[string]any `json:"fields"`
}

func (r *Rule) envelope() (scriptEnvelope, bool) {
	trimmed := strings.TrimSpace(r.Script)
	if !strings.HasPrefix(trimmed, "{") {
		return scriptEnvelope{}, false
	}
	var env scriptEnvelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		return scriptEnvelope{}, false
	}
	return env, true
}

// ScriptSource returns the script source to compile, unwrapping the JSON
// envelope when present.
func (r *Rule) ScriptSource() string {
	if env, ok := r.envelope(); ok {
		return strings.TrimSpace(env.Value)
	}
	return strings.TrimSpace(r.Script)
}

// FieldValues returns the persisted per-field values stored in the script
// envelope, or an empty map for raw scripts.
func (r *Rule) FieldValues() map[string]any {
	if env, ok := r.envelope(); ok && env.Fields != nil {
		return env.Fields
	}
	return map[string]any{}
}
