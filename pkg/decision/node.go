package decision

// Kind identifies a node variant. The values double as the wire format
// discriminant (`_typ`).
type Kind string

const (
	KindRoot     Kind = "decision_root"
	KindGroup    Kind = "decision_group"
	KindMatrix   Kind = "decision_matrix"
	KindQuestion Kind = "decision_question"
	KindAnswer   Kind = "decision_answer"
	KindRule     Kind = "decision_rule"
)

// Node is the common interface of all decision tree variants.
// The concrete set is closed: Root, Group, Matrix, Question, Answer, Rule.
type Node interface {
	// Kind returns the variant discriminant.
	Kind() Kind

	// Meta returns the shared node fields (uid, children, tags, ...).
	Meta() *Base

	// DisplayName returns the human readable name of the node, falling
	// back to the uid when no name or label is set.
	DisplayName() string
}

// Base holds the fields shared by every node variant. Variants embed it.
type Base struct {
	UID      string
	Version  int
	Language string
	Priority int
	Tags     []string

	// Children is owned exclusively by this node and is ordered.
	Children []Node

	// Level is the depth of the node, assigned at build time.
	Level int

	// InstanceID distinguishes reloaded copies of the same tree. All nodes
	// of one built tree share the same value.
	InstanceID int
}

// Meta implements Node for every variant embedding Base.
func (b *Base) Meta() *Base { return b }

// Find searches n and its subtree depth-first (self first, then children in
// order) for the node with the given uid. Returns nil when absent.
func Find(n Node, uid string) Node {
	if n == nil || uid == "" {
		return nil
	}
	if n.Meta().UID == uid {
		return n
	}
	for _, child := range n.Meta().Children {
		if res := Find(child, uid); res != nil {
			return res
		}
	}
	return nil
}

// AddChild appends child to parent's children. It is a no-op when the child
// is nil, has no uid, or a node with the same uid already exists anywhere in
// parent's subtree. Insertion order is preserved.
func AddChild(parent, child Node) {
	if parent == nil || child == nil || child.Meta().UID == "" {
		return
	}
	if Find(parent, child.Meta().UID) != nil {
		return
	}
	parent.Meta().Children = append(parent.Meta().Children, child)
}

// ParentOf walks root's subtree looking for the node whose children contain
// n. Returns nil when n is the root itself or not part of the tree. This is
// a linear scan of the tree; callers must not assume it is cheap.
func ParentOf(root, n Node) Node {
	if root == nil || n == nil {
		return nil
	}
	return findParent(root, n.Meta().UID)
}

func findParent(candidate Node, uid string) Node {
	for _, child := range candidate.Meta().Children {
		if child.Meta().UID == uid {
			return candidate
		}
		if res := findParent(child, uid); res != nil {
			return res
		}
	}
	return nil
}

// HasRuleOfKind reports whether any direct child of n is a Rule of the given
// rule type. A rule with an empty type counts as a visibility rule.
func HasRuleOfKind(n Node, ruleType RuleType) bool {
	if n == nil {
		return false
	}
	for _, child := range n.Meta().Children {
		rule, ok := child.(*Rule)
		if !ok {
			continue
		}
		if rule.Type == ruleType || (ruleType == RuleVisibility && rule.Type == "") {
			return true
		}
	}
	return false
}
