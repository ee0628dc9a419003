// Package rules embeds a sandboxed Lua interpreter that runs the user
// authored visibility and validation scripts attached to decision trees.
//
// Scripts see a read-only view of the tree and the answer store through a
// small set of globals (this, parent, root, previous, find, get, has,
// value, field, saveCount, getExtra, print) plus a node handle type with
// accessor methods. Nodes cross the language boundary as opaque integer
// handles resolved against a host side table, never as raw pointers.
package rules

import (
	"fmt"
	"log/slog"
	"strconv"

	lua "github.com/yuin/gopher-lua"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/answers"
	"github.com/aretw0/arbor/pkg/decision"
)

const nodeTypeName = "node"

// compiled rule chunks are stored under this global between calls.
const ruleFuncGlobal = "_rule_func"

// Messages used by the evaluation contract.
const (
	msgNoRule  = "No rule provided."
	msgInvalid = "This field is invalid."
)

// Result is the outcome of one rule evaluation.
type Result struct {
	Passed   bool
	Message  string
	Rule     *decision.Rule
	MatrixID string
	Parent   decision.Node
}

// Host owns one Lua state bound to one rule. Hosts are cached per rule (and
// per matrix row) by the evaluator so that script globals survive between
// passes. A Host is not safe for concurrent use.
type Host struct {
	state  *lua.LState
	logger *slog.Logger

	root     decision.Node
	trees    []decision.Node
	rule     *decision.Rule
	parent   decision.Node
	matrixID string
	data     *answers.Store

	fields      []*FormField
	fieldValues map[string]any

	// handles maps the integers handed to Lua back to nodes. Reset at
	// the start of every evaluation; handles never outlive one run.
	handles []decision.Node

	// broken marks a host whose script failed to compile. The evaluator
	// skips broken hosts instead of running them.
	broken bool

	fnThis   *lua.LFunction
	fnParent *lua.LFunction
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger scripts print through.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHost creates a sandboxed Lua state. Only the base, table, string and
// math libraries are opened; io, os and require are unavailable to scripts.
func NewHost(opts ...Option) *Host {
	h := &Host{
		logger:      logging.NewNop(),
		fieldValues: map[string]any{},
	}
	for _, opt := range opts {
		opt(h)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{
			Fn:        L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			h.logger.Error("failed to open lua library", "lib", lib.name, "err", err)
		}
	}
	h.state = L

	h.registerNodeType()
	h.registerGlobals()
	return h
}

// Close releases the Lua state.
func (h *Host) Close() {
	h.state.Close()
}

// SetRoot binds the tree the rule belongs to. Changing the root invalidates
// all node handles previously handed to scripts.
func (h *Host) SetRoot(root decision.Node) {
	h.root = root
	h.handles = h.handles[:0]
}

// SetTrees binds the full set of known trees, used by find, previous and
// the hidden-state checks. The bound root may be among them.
func (h *Host) SetTrees(trees []decision.Node) {
	h.trees = trees
}

// BindUserData binds the answer store scripts read from.
func (h *Host) BindUserData(data *answers.Store) {
	h.data = data
}

// SetMatrix scopes the evaluation to a matrix row. An empty id means the
// rule runs outside matrix scope.
func (h *Host) SetMatrix(matrixID string) {
	h.matrixID = matrixID
}

// Fields returns the form fields declared by the script so far, in
// declaration order.
func (h *Host) Fields() []*FormField {
	return h.fields
}

// BindRule compiles the rule's script and stores the chunk for evaluation.
// A compile failure is reported as a *RuleError with CodeSyntax.
func (h *Host) BindRule(rule *decision.Rule) error {
	h.rule = rule
	h.parent = nil
	h.fieldValues = rule.FieldValues()
	if h.root != nil {
		h.parent = decision.ParentOf(h.root, rule)
	}

	fn, err := h.state.LoadString(rule.ScriptSource())
	if err != nil {
		h.broken = true
		return &RuleError{Code: CodeSyntax, Message: err.Error(), Rule: rule}
	}
	h.broken = false
	h.state.SetGlobal(ruleFuncGlobal, fn)
	return nil
}

// Broken reports whether the bound script failed to compile.
func (h *Host) Broken() bool {
	return h.broken
}

// Evaluate runs the bound rule. The contract:
//
//   - no rule bound: fails with msgNoRule, no error
//   - script error: *RuleError with CodeRuntime
//   - script returns nothing: passes
//   - script returns false with no message: fails with msgInvalid
//   - script returns false, "reason": fails with that reason
//
// A passing result never carries a message.
func (h *Host) Evaluate() (Result, error) {
	h.handles = h.handles[:0]
	res := Result{MatrixID: h.matrixID, Parent: h.parent}
	if h.rule == nil {
		res.Message = msgNoRule
		return res, nil
	}
	res.Rule = h.rule

	L := h.state
	L.SetTop(0)
	fn := L.GetGlobal(ruleFuncGlobal)
	if fn == lua.LNil {
		res.Message = msgNoRule
		res.Rule = nil
		return res, nil
	}

	L.Push(fn)
	if err := L.PCall(0, 2, nil); err != nil {
		return res, &RuleError{Code: CodeRuntime, Message: err.Error(), Rule: h.rule}
	}
	ret := L.Get(-2)
	msg := L.Get(-1)
	L.Pop(2)

	// A script without an explicit return is treated as a pass.
	if ret == lua.LNil {
		res.Passed = true
		return res, nil
	}

	res.Passed = lua.LVAsBool(ret)
	if !res.Passed {
		res.Message = msgInvalid
		if s, ok := msg.(lua.LString); ok && string(s) != "" {
			res.Message = string(s)
		}
	}
	return res, nil
}

// allTrees returns the known trees with the bound root guaranteed present.
func (h *Host) allTrees() []decision.Node {
	if h.root == nil {
		return h.trees
	}
	for _, tree := range h.trees {
		if tree == h.root {
			return h.trees
		}
	}
	return append([]decision.Node{h.root}, h.trees...)
}

// findNode searches the bound root first, then every other known tree.
func (h *Host) findNode(uid string) decision.Node {
	if node := decision.Find(h.root, uid); node != nil {
		return node
	}
	for _, tree := range h.trees {
		if node := decision.Find(tree, uid); node != nil {
			return node
		}
	}
	return nil
}

// effectiveMatrixID applies the implicit matrix scope: when a script reads
// its own rule or the rule's parent without naming a row, the row the rule
// runs under is assumed.
func (h *Host) effectiveMatrixID(uid, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if h.rule != nil && uid == h.rule.UID {
		return h.matrixID
	}
	if h.parent != nil && uid == h.parent.Meta().UID {
		return h.matrixID
	}
	return ""
}

// newHandle wraps a node in an integer handle with the node metatable.
func (h *Host) newHandle(L *lua.LState, n decision.Node) *lua.LUserData {
	ud := L.NewUserData()
	h.handles = append(h.handles, n)
	ud.Value = len(h.handles) - 1
	L.SetMetatable(ud, L.GetTypeMetatable(nodeTypeName))
	return ud
}

// pushNode hands a node to Lua as an integer handle.
func (h *Host) pushNode(L *lua.LState, n decision.Node) {
	L.Push(h.newHandle(L, n))
}

// handleNode resolves an integer handle back to its node, or nil.
func (h *Host) handleNode(v lua.LValue) decision.Node {
	ud, ok := v.(*lua.LUserData)
	if !ok {
		return nil
	}
	idx, ok := ud.Value.(int)
	if !ok || idx < 0 || idx >= len(h.handles) {
		return nil
	}
	return h.handles[idx]
}

// argUID resolves the first script argument to a node uid. Accepts a node
// handle, a bare reference to the this/parent globals, or a uid string.
func (h *Host) argUID(L *lua.LState) string {
	arg := L.Get(1)
	if node := h.handleNode(arg); node != nil {
		return node.Meta().UID
	}
	if fn, ok := arg.(*lua.LFunction); ok {
		if fn == h.fnThis && h.rule != nil {
			return h.rule.UID
		}
		if fn == h.fnParent && h.parent != nil {
			return h.parent.Meta().UID
		}
		return ""
	}
	if s, ok := arg.(lua.LString); ok {
		return string(s)
	}
	return ""
}

func (h *Host) registerGlobals() {
	L := h.state

	h.fnThis = L.NewFunction(h.luaThis)
	h.fnParent = L.NewFunction(h.luaParent)

	L.SetGlobal("this", h.fnThis)
	L.SetGlobal("parent", h.fnParent)
	L.SetGlobal("root", L.NewFunction(h.luaRoot))
	L.SetGlobal("previous", L.NewFunction(h.luaPrevious))
	L.SetGlobal("find", L.NewFunction(h.luaFind))
	L.SetGlobal("get", L.NewFunction(h.luaGetAnswers))
	L.SetGlobal("has", L.NewFunction(h.luaHasAnswer))
	L.SetGlobal("value", L.NewFunction(h.luaAnswerValue))
	L.SetGlobal("print", L.NewFunction(h.luaPrint))
	L.SetGlobal("field", L.NewFunction(h.luaField))
	L.SetGlobal("saveCount", L.NewFunction(h.luaSaveCount))
	L.SetGlobal("getExtra", L.NewFunction(h.luaGetExtra))
}

func (h *Host) luaThis(L *lua.LState) int {
	if h.rule == nil {
		return 0
	}
	h.pushNode(L, h.rule)
	return 1
}

func (h *Host) luaParent(L *lua.LState) int {
	if h.parent == nil {
		return 0
	}
	h.pushNode(L, h.parent)
	return 1
}

func (h *Host) luaRoot(L *lua.LState) int {
	if h.root == nil {
		return 0
	}
	h.pushNode(L, h.root)
	return 1
}

// luaPrevious resolves the tree preceding the bound root in the chain by
// scanning the known trees for a root whose next link points at it.
func (h *Host) luaPrevious(L *lua.LState) int {
	if h.root == nil {
		return 0
	}
	for _, tree := range h.trees {
		if r, ok := tree.(*decision.Root); ok && r.Next == h.root.Meta().UID {
			h.pushNode(L, r)
			return 1
		}
	}
	return 0
}

func (h *Host) luaFind(L *lua.LState) int {
	uid := h.argUID(L)
	if uid == "" || h.root == nil {
		return 0
	}
	node := h.findNode(uid)
	if node == nil {
		return 0
	}
	h.pushNode(L, node)
	return 1
}

func (h *Host) luaGetAnswers(L *lua.LState) int {
	if h.data == nil {
		h.logger.Warn("user data not bound", "fn", "get")
		return 0
	}
	uid := h.argUID(L)
	if uid == "" {
		h.logger.Warn("uid not provided", "fn", "get")
		return 0
	}
	matrixID := h.effectiveMatrixID(uid, L.OptString(2, ""))
	values := h.data.QuestionAnswers(uid, matrixID)
	tbl := L.CreateTable(len(values), 0)
	for i, v := range values {
		tbl.RawSetInt(i+1, lua.LString(v))
	}
	L.Push(tbl)
	return 1
}

// luaHasAnswer reports whether a uid was answered anywhere. Hidden
// questions never count as answered, whatever the store holds for them.
func (h *Host) luaHasAnswer(L *lua.LState) int {
	if h.data == nil {
		h.logger.Warn("user data not bound", "fn", "has")
		return 0
	}
	uid := h.argUID(L)
	if uid == "" {
		h.logger.Warn("uid not provided", "fn", "has")
		return 0
	}
	hidden := false
	for _, tree := range h.allTrees() {
		if node := decision.Find(tree, uid); node != nil {
			hidden = h.data.IsHidden(node, tree, "")
		}
	}
	answered := h.data.HasAnswer(uid) || len(h.data.QuestionAnswers(uid, "")) > 0
	L.Push(lua.LBool(!hidden && answered))
	return 1
}

func (h *Host) luaAnswerValue(L *lua.LState) int {
	if h.root == nil {
		return 0
	}
	uid := h.argUID(L)
	if uid == "" {
		h.logger.Warn("uid not provided", "fn", "value")
		return 0
	}
	answer, ok := h.findNode(uid).(*decision.Answer)
	if !ok {
		return 0
	}
	L.Push(lua.LString(answer.Value))
	return 1
}

func (h *Host) luaPrint(L *lua.LState) int {
	h.logger.Debug("lua print", "rule", h.ruleUID(), "value", renderValue(L.Get(1)))
	return 0
}

func (h *Host) luaSaveCount(L *lua.LState) int {
	count := 0
	if h.data != nil {
		count = h.data.SaveCount
	}
	L.Push(lua.LNumber(count))
	return 1
}

func (h *Host) luaGetExtra(L *lua.LState) int {
	tbl := L.NewTable()
	if h.data != nil {
		for key, value := range h.data.Extra {
			tbl.RawSetString(key, goToLua(value))
		}
	}
	L.Push(tbl)
	return 1
}

// luaField declares a script form field and returns its persisted value.
// The first call for a name registers the field and yields nil; subsequent
// evaluations return the stored value, or the declared default.
func (h *Host) luaField(L *lua.LState) int {
	name := L.OptString(1, "")
	if name == "" {
		h.logger.Warn("field name not provided", "fn", "field")
		return 0
	}
	kind := L.OptString(2, FieldText)

	defaultValue := ""
	options := map[string]string{}
	switch kind {
	case FieldChoice:
		defaultValue = L.OptString(3, "")
		if tbl, ok := L.Get(4).(*lua.LTable); ok {
			tbl.ForEach(func(k, v lua.LValue) {
				options[lua.LVAsString(k)] = lua.LVAsString(v)
			})
		}
	case FieldAnswer, FieldNode:
		// Multi-valued kinds have no scalar default.
	default:
		defaultValue = L.OptString(3, "")
	}

	for _, field := range h.fields {
		if field.Name != name {
			continue
		}
		field.Kind = kind
		value, ok := h.fieldValues[name]
		if !ok || value == nil || value == "" {
			if field.Default != "" {
				L.Push(lua.LString(field.Default))
				return 1
			}
			L.Push(lua.LNil)
			return 1
		}
		switch field.EffectiveKind() {
		case FieldAnswer, FieldNode:
			L.Push(fieldValueTable(L, value))
		default:
			L.Push(lua.LString(fmt.Sprint(value)))
		}
		return 1
	}

	h.fields = append(h.fields, &FormField{
		Name:    name,
		Kind:    kind,
		Default: defaultValue,
		Options: options,
		Rule:    h.rule,
		Root:    h.root,
	})
	L.Push(lua.LNil)
	return 1
}

func (h *Host) ruleUID() string {
	if h.rule == nil {
		return ""
	}
	return h.rule.UID
}

// fieldValueTable converts a stored multi-value field into a Lua sequence.
// Stored entries are either uid strings or node objects; objects reduce to
// their uid.
func fieldValueTable(L *lua.LState, value any) *lua.LTable {
	tbl := L.NewTable()
	entries, ok := value.([]any)
	if !ok {
		if s, sok := value.(string); sok && s != "" {
			tbl.RawSetInt(1, lua.LString(s))
		}
		return tbl
	}
	for i, entry := range entries {
		switch v := entry.(type) {
		case string:
			tbl.RawSetInt(i+1, lua.LString(v))
		case map[string]any:
			if uid, uok := v["uid"].(string); uok {
				tbl.RawSetInt(i+1, lua.LString(uid))
			}
		}
	}
	return tbl
}

func goToLua(value any) lua.LValue {
	switch v := value.(type) {
	case bool:
		return lua.LBool(v)
	case int:
		return lua.LNumber(v)
	case float64:
		return lua.LNumber(v)
	case string:
		return lua.LString(v)
	default:
		return lua.LString(fmt.Sprint(v))
	}
}

// renderValue flattens a Lua value into a loggable string.
func renderValue(v lua.LValue) string {
	switch value := v.(type) {
	case lua.LString:
		return string(value)
	case lua.LNumber:
		return strconv.FormatFloat(float64(value), 'f', -1, 64)
	case lua.LBool:
		return strconv.FormatBool(bool(value))
	case *lua.LTable:
		out := map[string]string{}
		value.ForEach(func(k, val lua.LValue) {
			out[lua.LVAsString(k)] = lua.LVAsString(val)
		})
		return fmt.Sprint(out)
	default:
		return v.String()
	}
}
