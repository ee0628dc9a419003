package rules

import "github.com/aretw0/arbor/pkg/decision"

// Error codes carried by RuleError. The values follow the Lua status codes
// for runtime and syntax errors.
const (
	CodeRuntime = 2
	CodeSyntax  = 3
)

// RuleError describes a script fault tied to the rule that caused it.
// Compile failures carry CodeSyntax, execution failures CodeRuntime.
type RuleError struct {
	Code    int
	Message string
	Rule    *decision.Rule
}

func (e *RuleError) Error() string {
	uid := ""
	if e.Rule != nil {
		uid = e.Rule.UID
	}
	return "rule " + uid + ": " + e.Message
}
