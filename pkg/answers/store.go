// Package answers holds the per-user state of a decision session: submitted
// answers, hidden node flags, validation messages and the bookkeeping
// counters exchanged with the backend on save and submit.
package answers

import (
	"fmt"
	"strings"

	"github.com/aretw0/arbor/pkg/decision"
)

// ObjectRef pins the tree version a user's answers were recorded against.
type ObjectRef struct {
	Version     int
	VersionHash string
}

// Store is the per-session answer store. All answer keys are matrix scoped:
// an answer key is either the question uid or `questionUid_matrixRowId`.
// Hidden and validation keys always carry the suffix, using an empty row id
// outside matrix scope.
//
// A Store is not safe for concurrent mutation; evaluation passes own it for
// their duration.
type Store struct {
	// Key is the opaque user identifier the store belongs to.
	Key string

	Objects     map[string]ObjectRef
	SaveCount   int
	SubmitCount int
	Valid       bool
	Extra       map[string]any

	// Loaded reports whether the store was imported from the backend
	// rather than freshly created.
	Loaded bool

	answers            map[string][]string
	hidden             map[string]bool
	validationMessages map[string][]string
}

// New creates an empty store for the given user key.
func New(key string) *Store {
	return &Store{
		Key:                key,
		Objects:            make(map[string]ObjectRef),
		Valid:              true,
		Extra:              make(map[string]any),
		answers:            make(map[string][]string),
		hidden:             make(map[string]bool),
		validationMessages: make(map[string][]string),
	}
}

func answerKey(uid, matrixID string) string {
	if matrixID != "" {
		return uid + "_" + matrixID
	}
	return uid
}

func scopedKey(uid, matrixID string) string {
	return uid + "_" + matrixID
}

// sanitizeAnswer reduces an answer to its stored string form. An Answer node
// belonging to the question collapses to its uid; anything else is
// stringified. Empty answers sanitize to "".
func sanitizeAnswer(question *decision.Question, answer any) string {
	if answer == nil {
		return ""
	}
	if node, ok := answer.(*decision.Answer); ok {
		if question != nil && decision.Find(question, node.UID) != nil {
			return node.UID
		}
	}
	return fmt.Sprint(answer)
}

// AddAnswer records an answer for the question. Duplicates are ignored and
// insertion order is preserved. When a matrix row id is given the row id is
// additionally recorded as an answer of the question itself, without the
// matrix suffix; FindMatrixIDs recovers row ids from these entries.
func (s *Store) AddAnswer(question *decision.Question, answer any, matrixID string) {
	if question == nil {
		return
	}
	key := answerKey(question.UID, matrixID)
	if _, ok := s.answers[key]; !ok {
		s.answers[key] = []string{}
	}
	value := sanitizeAnswer(question, answer)
	if value == "" {
		return
	}
	if !contains(s.answers[key], value) {
		s.answers[key] = append(s.answers[key], value)
	}
	if matrixID != "" {
		s.AddAnswer(question, matrixID, "")
	}
}

// RemoveAnswer removes a previously recorded answer. Removing an answer from
// a matrix row also drops the row-tracking entry for that id.
func (s *Store) RemoveAnswer(question *decision.Question, answer any, matrixID string) {
	if question == nil {
		return
	}
	if matrixID != "" {
		s.RemoveAnswer(question, matrixID, "")
	}
	value := sanitizeAnswer(question, answer)
	if value == "" {
		return
	}
	s.removeValue(answerKey(question.UID, matrixID), value)
}

func (s *Store) removeValue(key, value string) {
	seq, ok := s.answers[key]
	if !ok {
		s.answers[key] = []string{}
		return
	}
	for i, v := range seq {
		if v == value {
			s.answers[key] = append(seq[:i:i], seq[i+1:]...)
			return
		}
	}
}

// ResetAnswers clears every answer recorded for the question at the given
// scope. Used for replace-on-change semantics of single answer questions.
func (s *Store) ResetAnswers(question *decision.Question, matrixID string) {
	if question == nil {
		return
	}
	s.answers[answerKey(question.UID, matrixID)] = []string{}
}

// ResetMatrix removes every answer recorded under the given matrix row id,
// including cascading rows recorded by nested matrices. Terminates because
// each pass strictly shrinks the key set.
func (s *Store) ResetMatrix(matrixID string) {
	if matrixID == "" {
		return
	}
	// Drop row-tracking entries holding the id as a value.
	for key := range s.answers {
		s.removeValue(key, matrixID)
	}
	for key := range s.answers {
		if strings.HasSuffix(key, matrixID) {
			delete(s.answers, key)
			s.ResetMatrix(matrixID)
			return
		}
	}
}

// QuestionAnswers returns the recorded answer sequence for a question uid at
// the given scope, or an empty sequence.
func (s *Store) QuestionAnswers(uid, matrixID string) []string {
	if seq, ok := s.answers[answerKey(uid, matrixID)]; ok {
		return seq
	}
	return []string{}
}

// HasAnswer reports whether the value appears in any stored answer
// sequence. This is deliberately a store-wide scan, not a question scoped
// check: it answers "was this option picked anywhere".
func (s *Store) HasAnswer(value string) bool {
	for _, seq := range s.answers {
		if contains(seq, value) {
			return true
		}
	}
	return false
}

// FindMatrixIDs returns the row ids recorded for a matrix subtree. A
// question's own unscoped answers win outright; otherwise the longest
// sequence found among the children is kept. The longest-sequence heuristic
// assumes the most-answered question inside the matrix is authoritative.
func (s *Store) FindMatrixIDs(node decision.Node) []string {
	if node == nil {
		return []string{}
	}
	if q, ok := node.(*decision.Question); ok {
		if values := s.QuestionAnswers(q.UID, ""); len(values) > 0 {
			return values
		}
	}
	out := []string{}
	for _, child := range node.Meta().Children {
		if values := s.FindMatrixIDs(child); len(values) > len(out) {
			out = values
		}
	}
	return out
}

// SetHidden flags or unflags a node as hidden at the given scope. Hidden
// state is stored per node; descendants inherit it only through IsHidden's
// ancestor walk.
func (s *Store) SetHidden(node decision.Node, state bool, matrixID string) {
	if node == nil {
		return
	}
	key := scopedKey(node.Meta().UID, matrixID)
	if state {
		s.hidden[key] = true
		return
	}
	delete(s.hidden, key)
}

// IsHidden reports whether the node is hidden at the given scope. When a
// root is supplied, ancestors are walked and a hidden ancestor (at the same
// scope or matrix-unscoped) hides the node as well.
func (s *Store) IsHidden(node decision.Node, root decision.Node, matrixID string) bool {
	if node == nil {
		return false
	}
	if s.hidden[scopedKey(node.Meta().UID, matrixID)] {
		return true
	}
	if root == nil {
		return false
	}
	for parent := decision.ParentOf(root, node); parent != nil; parent = decision.ParentOf(root, parent) {
		if s.hidden[scopedKey(parent.Meta().UID, matrixID)] || s.hidden[scopedKey(parent.Meta().UID, "")] {
			return true
		}
	}
	return false
}

// ResetValidationState clears the validation messages for a question at the
// given scope. Non-question nodes carry no validation state.
func (s *Store) ResetValidationState(node decision.Node, matrixID string) {
	q, ok := node.(*decision.Question)
	if !ok {
		return
	}
	s.validationMessages[scopedKey(q.UID, matrixID)] = []string{}
}

// AddValidationMessage appends a failure message for a question. Blank
// messages are rejected; whitespace is trimmed.
func (s *Store) AddValidationMessage(node decision.Node, message, matrixID string) {
	q, ok := node.(*decision.Question)
	if !ok {
		return
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return
	}
	key := scopedKey(q.UID, matrixID)
	s.validationMessages[key] = append(s.validationMessages[key], message)
}

// ValidationMessages returns the messages recorded for a question at the
// given scope.
func (s *Store) ValidationMessages(node decision.Node, matrixID string) []string {
	q, ok := node.(*decision.Question)
	if !ok {
		return []string{}
	}
	if msgs, ok := s.validationMessages[scopedKey(q.UID, matrixID)]; ok {
		return msgs
	}
	return []string{}
}

// AddObject records the version of a tree the answers were taken against,
// for change detection on reload.
func (s *Store) AddObject(root decision.Node) {
	if root == nil {
		return
	}
	meta := root.Meta()
	ref := ObjectRef{Version: meta.Version}
	if r, ok := root.(*decision.Root); ok {
		ref.VersionHash = r.VersionHash
	}
	s.Objects[meta.UID] = ref
}

// ObjectVersion returns the recorded tree version for a uid, if any.
func (s *Store) ObjectVersion(uid string) (int, bool) {
	ref, ok := s.Objects[uid]
	if !ok || ref.Version == 0 {
		return 0, false
	}
	return ref.Version, true
}

// ObjectVersionHash returns the recorded version hash for a uid.
func (s *Store) ObjectVersionHash(uid string) string {
	return s.Objects[uid].VersionHash
}

func contains(seq []string, value string) bool {
	for _, v := range seq {
		if v == value {
			return true
		}
	}
	return false
}
