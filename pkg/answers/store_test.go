package answers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/decision"
)

func question(uid string) *decision.Question {
	q := &decision.Question{Label: uid}
	q.UID = uid
	return q
}

func TestAddAnswer(t *testing.T) {
	t.Run("deduplicates while preserving order", func(t *testing.T) {
		s := New("user-1")
		q := question("q1")

		s.AddAnswer(q, "a", "")
		s.AddAnswer(q, "b", "")
		s.AddAnswer(q, "a", "")

		require.Equal(t, []string{"a", "b"}, s.QuestionAnswers("q1", ""))
	})

	t.Run("answer node collapses to its uid", func(t *testing.T) {
		s := New("user-1")
		q := question("q1")
		a := &decision.Answer{Label: "Yes"}
		a.UID = "ans-yes"
		decision.AddChild(q, a)

		s.AddAnswer(q, a, "")

		require.Equal(t, []string{"ans-yes"}, s.QuestionAnswers("q1", ""))
	})

	t.Run("answer node of another question keeps its string form", func(t *testing.T) {
		s := New("user-1")
		q := question("q1")
		other := question("q2")
		a := &decision.Answer{Label: "Yes"}
		a.UID = "ans-yes"
		decision.AddChild(other, a)

		s.AddAnswer(q, a, "")

		require.NotContains(t, s.QuestionAnswers("q1", ""), "ans-yes")
	})

	t.Run("matrix answers record the row id on the question", func(t *testing.T) {
		s := New("user-1")
		q := question("q1")

		s.AddAnswer(q, "hello", "row-1")

		require.Equal(t, []string{"hello"}, s.QuestionAnswers("q1", "row-1"))
		require.Equal(t, []string{"row-1"}, s.QuestionAnswers("q1", ""))
	})

	t.Run("empty answer records nothing but creates the key", func(t *testing.T) {
		s := New("user-1")
		q := question("q1")

		s.AddAnswer(q, "", "")

		require.Empty(t, s.QuestionAnswers("q1", ""))
	})
}

func TestRemoveAnswer(t *testing.T) {
	s := New("user-1")
	q := question("q1")
	s.AddAnswer(q, "a", "")
	s.AddAnswer(q, "b", "")

	s.RemoveAnswer(q, "a", "")

	require.Equal(t, []string{"b"}, s.QuestionAnswers("q1", ""))
}

func TestResetMatrix(t *testing.T) {
	s := New("user-1")
	q1 := question("q1")
	q2 := question("q2")

	s.AddAnswer(q1, "alpha", "row-1")
	s.AddAnswer(q2, "beta", "row-1")
	s.AddAnswer(q1, "gamma", "row-2")

	s.ResetMatrix("row-1")

	require.Empty(t, s.QuestionAnswers("q1", "row-1"))
	require.Empty(t, s.QuestionAnswers("q2", "row-1"))
	require.Equal(t, []string{"gamma"}, s.QuestionAnswers("q1", "row-2"))
	require.Equal(t, []string{"row-2"}, s.QuestionAnswers("q1", ""))
}

func TestHasAnswer(t *testing.T) {
	s := New("user-1")
	q := question("q1")
	s.AddAnswer(q, "picked", "row-9")

	require.True(t, s.HasAnswer("picked"))
	require.True(t, s.HasAnswer("row-9"))
	require.False(t, s.HasAnswer("absent"))
}

func TestFindMatrixIDs(t *testing.T) {
	matrix := &decision.Matrix{Name: "people"}
	matrix.UID = "m1"
	name := question("q-name")
	age := question("q-age")
	decision.AddChild(matrix, name)
	decision.AddChild(matrix, age)

	s := New("user-1")
	s.AddAnswer(name, "Ada", "row-1")
	s.AddAnswer(name, "Grace", "row-2")
	s.AddAnswer(age, "36", "row-1")

	require.Equal(t, []string{"row-1", "row-2"}, s.FindMatrixIDs(matrix))
}

func TestHiddenState(t *testing.T) {
	root := &decision.Root{Name: "root"}
	root.UID = "root"
	group := &decision.Group{Name: "section"}
	group.UID = "g1"
	q := question("q1")
	decision.AddChild(root, group)
	decision.AddChild(group, q)

	t.Run("hidden ancestor hides descendants", func(t *testing.T) {
		s := New("user-1")
		s.SetHidden(group, true, "")

		require.True(t, s.IsHidden(group, root, ""))
		require.True(t, s.IsHidden(q, root, ""))
		require.False(t, s.IsHidden(root, root, ""))
	})

	t.Run("unscoped ancestor state applies inside matrix scope", func(t *testing.T) {
		s := New("user-1")
		s.SetHidden(group, true, "")

		require.True(t, s.IsHidden(q, root, "row-1"))
	})

	t.Run("unhide clears the flag", func(t *testing.T) {
		s := New("user-1")
		s.SetHidden(q, true, "")
		s.SetHidden(q, false, "")

		require.False(t, s.IsHidden(q, root, ""))
	})
}

func TestValidationMessages(t *testing.T) {
	s := New("user-1")
	q := question("q1")

	s.AddValidationMessage(q, "  required  ", "")
	s.AddValidationMessage(q, "   ", "")
	require.Equal(t, []string{"required"}, s.ValidationMessages(q, ""))

	s.ResetValidationState(q, "")
	require.Empty(t, s.ValidationMessages(q, ""))
}

func TestWireRoundTrip(t *testing.T) {
	s := New("user-7")
	q := question("q1")
	s.AddAnswer(q, "a", "")
	root := &decision.Root{Name: "tree", VersionHash: "abc"}
	root.UID = "tree-1"
	root.Version = 3
	s.AddObject(root)
	s.SaveCount = 4
	s.SubmitCount = 1
	s.Extra["note"] = "kept"

	data, err := s.Export()
	require.NoError(t, err)

	restored, err := Import(data)
	require.NoError(t, err)
	require.True(t, restored.Loaded)
	require.Equal(t, "user-7", restored.Key)
	require.Equal(t, []string{"a"}, restored.QuestionAnswers("q1", ""))
	require.Equal(t, 4, restored.SaveCount)
	require.Equal(t, 1, restored.SubmitCount)
	require.Equal(t, "kept", restored.Extra["note"])

	version, ok := restored.ObjectVersion("tree-1")
	require.True(t, ok)
	require.Equal(t, 3, version)
	require.Equal(t, "abc", restored.ObjectVersionHash("tree-1"))
}

func TestImportDefaults(t *testing.T) {
	restored, err := Import([]byte(`{"user_key":"u"}`))
	require.NoError(t, err)
	require.Equal(t, 1, restored.SaveCount)
	require.Equal(t, 0, restored.SubmitCount)
	require.True(t, restored.Loaded)
	require.NotNil(t, restored.Extra)
}

func TestExportHashIgnoresCounters(t *testing.T) {
	a := New("u")
	b := New("u")
	q := question("q1")
	a.AddAnswer(q, "x", "")
	b.AddAnswer(q, "x", "")
	a.SaveCount = 9
	b.SaveCount = 2

	ha, err := a.ExportHash()
	require.NoError(t, err)
	hb, err := b.ExportHash()
	require.NoError(t, err)
	require.Equal(t, ha, hb)
}
