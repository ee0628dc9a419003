package decision

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Wire keys shared by every node variant. The short forms are mandatory for
// backend compatibility.
const (
	keyUID      = "_uid"
	keyVersion  = "_ver"
	keyChildren = "_chi"
	keyType     = "_typ"
	keyLanguage = "_lan"
	keyPriority = "_pri"
	keyTags     = "_tag"
)

type baseWire struct {
	UID      string   `mapstructure:"_uid"`
	Version  int      `mapstructure:"_ver"`
	Language string   `mapstructure:"_lan"`
	Priority int      `mapstructure:"_pri"`
	Tags     []string `mapstructure:"_tag"`
}

type rootWire struct {
	Name        string         `mapstructure:"name"`
	Type        string         `mapstructure:"type"`
	Next        string         `mapstructure:"next"`
	Previous    string         `mapstructure:"previous"`
	VersionHash string         `mapstructure:"version_hash"`
	Embeds      map[string]any `mapstructure:"embeds"`
}

type groupWire struct {
	Name        string `mapstructure:"name"`
	Content     string `mapstructure:"content"`
	ContentEdit string `mapstructure:"content_edit"`
}

type matrixWire struct {
	Name string `mapstructure:"name"`
}

type questionWire struct {
	Label         string `mapstructure:"label"`
	Type          string `mapstructure:"type"`
	TextLines     int    `mapstructure:"text_lines"`
	DefaultAnswer string `mapstructure:"default_answer"`
	Multiple      bool   `mapstructure:"multiple"`
}

type answerWire struct {
	Label string `mapstructure:"label"`
	Value string `mapstructure:"value"`
}

type ruleWire struct {
	Type   string `mapstructure:"type"`
	Label  string `mapstructure:"label"`
	Script any    `mapstructure:"script"`
}

// decodeInto maps wire fields onto dst, coercing the loose JSON number and
// bool representations the backend emits.
func decodeInto(src map[string]any, dst any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dst,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(src)
}

// Decode parses a wire encoded tree.
func Decode(data []byte) (Node, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse tree payload: %w", err)
	}
	return DecodeValue(raw)
}

// DecodeValue converts one decoded wire object (and its children,
// recursively) into a node. It routes on the `_typ` discriminant.
func DecodeValue(data map[string]any) (Node, error) {
	kind, _ := data[keyType].(string)

	var base baseWire
	if err := decodeInto(data, &base); err != nil {
		return nil, fmt.Errorf("failed to decode node %q: %w", base.UID, err)
	}

	var node Node
	switch Kind(kind) {
	case KindRoot:
		var w rootWire
		if err := decodeInto(data, &w); err != nil {
			return nil, fmt.Errorf("failed to decode root %q: %w", base.UID, err)
		}
		node = &Root{
			Name: w.Name, Type: w.Type, Next: w.Next, Previous: w.Previous,
			VersionHash: w.VersionHash, Embeds: w.Embeds,
		}
	case KindGroup:
		var w groupWire
		if err := decodeInto(data, &w); err != nil {
			return nil, fmt.Errorf("failed to decode group %q: %w", base.UID, err)
		}
		content := w.ContentEdit
		if content == "" {
			content = w.Content
		}
		node = &Group{Name: w.Name, Content: w.Content, ContentEdit: content}
	case KindMatrix:
		var w matrixWire
		if err := decodeInto(data, &w); err != nil {
			return nil, fmt.Errorf("failed to decode matrix %q: %w", base.UID, err)
		}
		node = &Matrix{Name: w.Name}
	case KindQuestion:
		var w questionWire
		if err := decodeInto(data, &w); err != nil {
			return nil, fmt.Errorf("failed to decode question %q: %w", base.UID, err)
		}
		node = &Question{
			Label: w.Label, Type: w.Type, TextLines: w.TextLines,
			DefaultAnswer: w.DefaultAnswer, Multiple: w.Multiple,
		}
	case KindAnswer:
		var w answerWire
		if err := decodeInto(data, &w); err != nil {
			return nil, fmt.Errorf("failed to decode answer %q: %w", base.UID, err)
		}
		node = &Answer{Label: w.Label, Value: w.Value}
	case KindRule:
		var w ruleWire
		if err := decodeInto(data, &w); err != nil {
			return nil, fmt.Errorf("failed to decode rule %q: %w", base.UID, err)
		}
		node = &Rule{Label: w.Label, Type: RuleType(w.Type), Script: normalizeScript(w.Script)}
	default:
		return nil, fmt.Errorf("unknown node kind %q (uid %q)", kind, base.UID)
	}

	meta := node.Meta()
	meta.UID = base.UID
	meta.Version = base.Version
	meta.Language = base.Language
	meta.Priority = base.Priority
	meta.Tags = base.Tags

	children, _ := data[keyChildren].([]any)
	for _, rawChild := range children {
		childData, ok := rawChild.(map[string]any)
		if !ok {
			continue
		}
		child, err := DecodeValue(childData)
		if err != nil {
			return nil, err
		}
		AddChild(node, child)
	}
	return node, nil
}

// normalizeScript flattens the two wire shapes of a rule script (plain
// string or JSON envelope object) into the stored string form.
func normalizeScript(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}

// Encode converts a node (and its subtree) to the wire object form.
func Encode(n Node) map[string]any {
	meta := n.Meta()
	children := make([]any, 0, len(meta.Children))
	for _, child := range meta.Children {
		children = append(children, Encode(child))
	}
	tags := meta.Tags
	if tags == nil {
		tags = []string{}
	}
	out := map[string]any{
		keyUID:      meta.UID,
		keyVersion:  meta.Version,
		keyType:     string(n.Kind()),
		keyLanguage: meta.Language,
		keyPriority: meta.Priority,
		keyTags:     tags,
		keyChildren: children,
	}
	switch v := n.(type) {
	case *Root:
		out["name"] = v.Name
		out["type"] = v.Type
		out["next"] = v.Next
		out["previous"] = v.Previous
		out["version_hash"] = v.VersionHash
		out["embeds"] = v.Embeds
	case *Group:
		out["name"] = v.Name
		out["content"] = v.Content
		out["content_edit"] = v.ContentEdit
	case *Matrix:
		out["name"] = v.Name
	case *Question:
		out["label"] = v.Label
		out["type"] = v.Type
		out["text_lines"] = v.TextLines
		out["default_answer"] = v.DefaultAnswer
		out["multiple"] = v.Multiple
	case *Answer:
		out["label"] = v.Label
		out["value"] = v.Value
	case *Rule:
		out["type"] = string(v.Type)
		out["label"] = v.Label
		out["script"] = v.Script
	}
	return out
}

// EncodeJSON marshals the wire object form of a tree.
func EncodeJSON(n Node) ([]byte, error) {
	return json.Marshal(Encode(n))
}
