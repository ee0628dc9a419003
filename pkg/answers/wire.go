package answers

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
)

type storeWire struct {
	UserKey     string              `json:"user_key"`
	Objects     map[string][]any    `json:"objects"`
	Answers     map[string][]string `json:"answers"`
	SaveCount   int                 `json:"save_count"`
	SubmitCount int                 `json:"submit_count"`
	Valid       bool                `json:"valid"`
	Extra       map[string]any      `json:"extra"`
}

func (s *Store) wire() storeWire {
	objects := make(map[string][]any, len(s.Objects))
	for uid, ref := range s.Objects {
		objects[uid] = []any{ref.Version, ref.VersionHash}
	}
	return storeWire{
		UserKey:     s.Key,
		Objects:     objects,
		Answers:     s.answers,
		SaveCount:   s.SaveCount,
		SubmitCount: s.SubmitCount,
		Valid:       s.Valid,
		Extra:       s.Extra,
	}
}

// Export serializes the store to its backend wire form. Hidden flags and
// validation messages are evaluation output and are not persisted.
func (s *Store) Export() ([]byte, error) {
	return json.Marshal(s.wire())
}

// ExportHash returns a digest of the store with the save and submit counters
// zeroed, so that two stores holding the same answers hash equal regardless
// of how often they were saved. Used to skip redundant submits.
func (s *Store) ExportHash() (string, error) {
	w := s.wire()
	w.SaveCount = 0
	w.SubmitCount = 0
	data, err := json.Marshal(w)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", md5.Sum(data)), nil
}

// Import restores a store from its wire form. Absent fields fall back to a
// fresh store's defaults: save count 1, submit count 0, valid true. Object
// entries tolerate both the `[version, hash]` pair form and a bare version.
func Import(data []byte) (*Store, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("answers: decode user data: %w", err)
	}

	s := New("")
	s.SaveCount = 1
	s.Loaded = true

	if v, ok := raw["user_key"]; ok {
		if err := json.Unmarshal(v, &s.Key); err != nil {
			return nil, fmt.Errorf("answers: decode user_key: %w", err)
		}
	}
	if v, ok := raw["answers"]; ok {
		if err := json.Unmarshal(v, &s.answers); err != nil {
			return nil, fmt.Errorf("answers: decode answers: %w", err)
		}
	}
	if v, ok := raw["objects"]; ok {
		var objects map[string]any
		if err := json.Unmarshal(v, &objects); err != nil {
			return nil, fmt.Errorf("answers: decode objects: %w", err)
		}
		for uid, entry := range objects {
			s.Objects[uid] = decodeObjectRef(entry)
		}
	}
	if v, ok := raw["save_count"]; ok {
		_ = json.Unmarshal(v, &s.SaveCount)
	}
	if v, ok := raw["submit_count"]; ok {
		_ = json.Unmarshal(v, &s.SubmitCount)
	}
	if v, ok := raw["valid"]; ok {
		_ = json.Unmarshal(v, &s.Valid)
	}
	if v, ok := raw["extra"]; ok {
		_ = json.Unmarshal(v, &s.Extra)
	}
	if s.Extra == nil {
		s.Extra = make(map[string]any)
	}
	if s.answers == nil {
		s.answers = make(map[string][]string)
	}
	return s, nil
}

func decodeObjectRef(entry any) ObjectRef {
	switch v := entry.(type) {
	case []any:
		var ref ObjectRef
		if len(v) > 0 {
			if n, ok := v[0].(float64); ok {
				ref.Version = int(n)
			}
		}
		if len(v) > 1 {
			if h, ok := v[1].(string); ok {
				ref.VersionHash = h
			}
		}
		return ref
	case float64:
		return ObjectRef{Version: int(v)}
	case string:
		return ObjectRef{VersionHash: v}
	default:
		return ObjectRef{}
	}
}
