package rules

import (
	"strconv"

	lua "github.com/yuin/gopher-lua"

	"github.com/aretw0/arbor/pkg/decision"
)

// registerNodeType installs the metatable backing node handles. Methods are
// colon-call accessors mirroring the host side node API.
func (h *Host) registerNodeType() {
	L := h.state
	mt := L.NewTypeMetatable(nodeTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"uid":          h.luaNodeUID,
		"parent":       h.luaNodeParent,
		"children":     h.luaNodeChildren,
		"getChild":     h.luaNodeGetChild,
		"previous":     h.luaNodePrevious,
		"name":         h.luaNodeName,
		"value":        h.luaNodeValue,
		"type":         h.luaNodeType,
		"param":        h.luaNodeParam,
		"answers":      h.luaNodeAnswers,
		"answerValues": h.luaNodeAnswerValues,
		"hasAnswer":    h.luaNodeHasAnswer,
	}))
}

// receiver resolves the method receiver handle, raising a Lua error on a
// stale or foreign handle.
func (h *Host) receiver(L *lua.LState) decision.Node {
	node := h.handleNode(L.Get(1))
	if node == nil {
		L.ArgError(1, "expected a node handle")
		return nil
	}
	return node
}

func (h *Host) luaNodeUID(L *lua.LState) int {
	node := h.receiver(L)
	L.Push(lua.LString(node.Meta().UID))
	return 1
}

func (h *Host) luaNodeName(L *lua.LState) int {
	node := h.receiver(L)
	L.Push(lua.LString(node.DisplayName()))
	return 1
}

func (h *Host) luaNodeType(L *lua.LState) int {
	node := h.receiver(L)
	L.Push(lua.LString(string(node.Kind())))
	return 1
}

func (h *Host) luaNodeValue(L *lua.LState) int {
	node := h.receiver(L)
	answer, ok := node.(*decision.Answer)
	if !ok {
		h.logger.Warn("value called on non-answer node",
			"kind", string(node.Kind()), "uid", node.Meta().UID)
		return 0
	}
	L.Push(lua.LString(answer.Value))
	return 1
}

func (h *Host) luaNodeParent(L *lua.LState) int {
	node := h.receiver(L)
	parent := decision.ParentOf(h.root, node)
	if parent == nil {
		L.Push(lua.LNil)
		return 1
	}
	h.pushNode(L, parent)
	return 1
}

func (h *Host) luaNodeChildren(L *lua.LState) int {
	node := h.receiver(L)
	children := node.Meta().Children
	tbl := L.CreateTable(len(children), 0)
	for i, child := range children {
		tbl.RawSetInt(i+1, h.newHandle(L, child))
	}
	L.Push(tbl)
	return 1
}

func (h *Host) luaNodeGetChild(L *lua.LState) int {
	node := h.receiver(L)
	uid := L.OptString(2, "")
	if uid == "" {
		return 0
	}
	child := decision.Find(node, uid)
	if child == nil || child == node {
		return 0
	}
	h.pushNode(L, child)
	return 1
}

func (h *Host) luaNodePrevious(L *lua.LState) int {
	node := h.receiver(L)
	for _, tree := range h.trees {
		if r, ok := tree.(*decision.Root); ok && r.Next == node.Meta().UID {
			h.pushNode(L, r)
			return 1
		}
	}
	return 0
}

// luaNodeParam exposes the node's scalar attributes by name. Numeric values
// come back as Lua numbers, everything else as strings; unknown or empty
// attributes yield nil.
func (h *Host) luaNodeParam(L *lua.LState) int {
	node := h.receiver(L)
	name := L.OptString(2, "")
	value := paramValue(node, name)
	if value == "" {
		L.Push(lua.LNil)
		return 1
	}
	if n, err := strconv.ParseFloat(value, 64); err == nil {
		L.Push(lua.LNumber(n))
		return 1
	}
	L.Push(lua.LString(value))
	return 1
}

func paramValue(node decision.Node, name string) string {
	meta := node.Meta()
	switch name {
	case "uid":
		return meta.UID
	case "version":
		if meta.Version == 0 {
			return ""
		}
		return strconv.Itoa(meta.Version)
	case "language":
		return meta.Language
	case "priority":
		if meta.Priority == 0 {
			return ""
		}
		return strconv.Itoa(meta.Priority)
	}
	switch v := node.(type) {
	case *decision.Root:
		switch name {
		case "name":
			return v.Name
		case "type":
			return v.Type
		case "next":
			return v.Next
		case "previous":
			return v.Previous
		case "version_hash":
			return v.VersionHash
		}
	case *decision.Group:
		switch name {
		case "name":
			return v.Name
		case "content":
			return v.Content
		case "content_edit":
			return v.ContentEdit
		}
	case *decision.Matrix:
		if name == "name" {
			return v.Name
		}
	case *decision.Question:
		switch name {
		case "label":
			return v.Label
		case "type":
			return v.Type
		case "text_lines":
			if v.TextLines == 0 {
				return ""
			}
			return strconv.Itoa(v.TextLines)
		case "default_answer":
			return v.DefaultAnswer
		}
	case *decision.Answer:
		switch name {
		case "label":
			return v.Label
		case "value":
			return v.Value
		}
	case *decision.Rule:
		switch name {
		case "label":
			return v.Label
		case "type":
			return string(v.Type)
		case "script":
			return v.Script
		}
	}
	return ""
}

func (h *Host) luaNodeAnswers(L *lua.LState) int {
	node := h.receiver(L)
	if h.data == nil {
		return 0
	}
	question, ok := node.(*decision.Question)
	if !ok {
		h.logger.Warn("answers called on non-question node",
			"kind", string(node.Kind()), "uid", node.Meta().UID)
		return 0
	}
	matrixID := h.effectiveMatrixID(question.UID, L.OptString(2, ""))
	values := h.data.QuestionAnswers(question.UID, matrixID)
	tbl := L.CreateTable(len(values), 0)
	for i, v := range values {
		if answer := h.findNode(v); answer != nil {
			tbl.RawSetInt(i+1, h.newHandle(L, answer))
			continue
		}
		tbl.RawSetInt(i+1, lua.LString(v))
	}
	L.Push(tbl)
	return 1
}

func (h *Host) luaNodeAnswerValues(L *lua.LState) int {
	node := h.receiver(L)
	if h.data == nil {
		return 0
	}
	question, ok := node.(*decision.Question)
	if !ok {
		h.logger.Warn("answerValues called on non-question node",
			"kind", string(node.Kind()), "uid", node.Meta().UID)
		return 0
	}
	matrixID := h.effectiveMatrixID(question.UID, L.OptString(2, ""))
	values := h.data.QuestionAnswers(question.UID, matrixID)
	tbl := L.CreateTable(len(values), 0)
	for i, v := range values {
		if answer, aok := h.findNode(v).(*decision.Answer); aok {
			tbl.RawSetInt(i+1, lua.LString(answer.Value))
			continue
		}
		tbl.RawSetInt(i+1, lua.LString(v))
	}
	L.Push(tbl)
	return 1
}

func (h *Host) luaNodeHasAnswer(L *lua.LState) int {
	node := h.receiver(L)
	if h.data == nil {
		return 0
	}
	uid := node.Meta().UID

	// A hidden node's question answers never count; only a store-wide
	// selection can still match it.
	for _, tree := range h.allTrees() {
		if decision.Find(tree, uid) != nil && h.data.IsHidden(node, tree, "") {
			L.Push(lua.LBool(h.data.HasAnswer(uid)))
			return 1
		}
	}

	switch n := node.(type) {
	case *decision.Answer:
		L.Push(lua.LBool(h.data.HasAnswer(uid)))
		return 1
	case *decision.Question:
		matrixID := h.effectiveMatrixID(n.UID, L.OptString(2, ""))
		L.Push(lua.LBool(len(h.data.QuestionAnswers(n.UID, matrixID)) > 0))
		return 1
	default:
		h.logger.Warn("hasAnswer called on unsupported node",
			"kind", string(node.Kind()), "uid", uid)
		return 0
	}
}
