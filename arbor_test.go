package arbor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/decision"
)

const firstTree = `{
  "_uid": "form-1", "_typ": "decision_root", "name": "Step one", "type": "form", "next": "form-2",
  "_chi": [
    {"_uid": "q-work", "_typ": "decision_question", "label": "Do you work?", "type": "choice", "_chi": [
      {"_uid": "a-yes", "_typ": "decision_answer", "label": "Yes", "value": "yes", "_chi": []},
      {"_uid": "a-no", "_typ": "decision_answer", "label": "No", "value": "no", "_chi": []}
    ]},
    {"_uid": "q-employer", "_typ": "decision_question", "label": "Employer", "type": "text", "_chi": [
      {"_uid": "r-vis", "_typ": "decision_rule", "type": "visibility", "script": "return has('a-yes')", "_chi": []},
      {"_uid": "r-req", "_typ": "decision_rule", "type": "validation", "script": "return #get('q-employer') > 0, 'employer is required'", "_chi": []}
    ]}
  ]
}`

const secondTree = `{
  "_uid": "form-2", "_typ": "decision_root", "name": "Step two", "type": "form",
  "_chi": [
    {"_uid": "q-notes", "_typ": "decision_question", "label": "Notes", "type": "text", "_chi": []}
  ]
}`

func newFetcher() *memory.Fetcher {
	f := memory.NewFetcher()
	f.Register("form-1", []byte(firstTree))
	f.Register("form-2", []byte(secondTree))
	return f
}

func question(t *testing.T, tree decision.Node, uid string) *decision.Question {
	t.Helper()
	q, ok := decision.Find(tree, uid).(*decision.Question)
	require.True(t, ok, "question %s not found", uid)
	return q
}

func TestEngineFlow(t *testing.T) {
	ctx := context.Background()
	eng, err := arbor.New(newFetcher(), arbor.WithUserKey("user-1"))
	require.NoError(t, err)
	defer eng.Close()

	tree, err := eng.Load(ctx, "form-1")
	require.NoError(t, err)
	require.Equal(t, "form-1", tree.Meta().UID)

	work := question(t, tree, "q-work")
	employer := question(t, tree, "q-employer")
	data := eng.UserData()

	// Before any answer the employer question is hidden.
	require.True(t, data.IsHidden(employer, tree, ""))

	require.NoError(t, eng.SetAnswer(work, "a-yes", ""))
	require.False(t, data.IsHidden(employer, tree, ""))
	require.Equal(t, []string{"employer is required"}, data.ValidationMessages(employer, ""))
	require.False(t, data.Valid)

	require.NoError(t, eng.SetAnswer(employer, "Initech", ""))
	require.Empty(t, data.ValidationMessages(employer, ""))
	require.True(t, data.Valid)
}

func TestEngineNavigation(t *testing.T) {
	ctx := context.Background()
	eng, err := arbor.New(newFetcher(), arbor.WithUserKey("user-1"))
	require.NoError(t, err)
	defer eng.Close()

	_, err = eng.LoadNext(ctx)
	require.ErrorIs(t, err, arbor.ErrNoTreeLoaded)

	tree, err := eng.Load(ctx, "form-1")
	require.NoError(t, err)

	_, err = eng.LoadPrevious(ctx)
	require.ErrorIs(t, err, arbor.ErrNoPreviousTree)

	next, err := eng.LoadNext(ctx)
	require.NoError(t, err)
	require.Equal(t, "form-2", next.Meta().UID)
	require.Equal(t, "form-2", eng.Current().Meta().UID)

	_, err = eng.LoadNext(ctx)
	require.ErrorIs(t, err, arbor.ErrNoNextTree)

	prev, err := eng.LoadPrevious(ctx)
	require.NoError(t, err)
	require.Equal(t, tree.Meta().UID, prev.Meta().UID)
	require.Len(t, eng.Trees(), 2)
}

func TestEngineSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid data refuses state next", func(t *testing.T) {
		store := memory.NewStore()
		eng, err := arbor.New(newFetcher(),
			arbor.WithUserKey("user-1"),
			arbor.WithUserDataStore(store),
		)
		require.NoError(t, err)
		defer eng.Close()

		tree, err := eng.Load(ctx, "form-1")
		require.NoError(t, err)
		require.NoError(t, eng.SetAnswer(question(t, tree, "q-work"), "a-yes", ""))

		err = eng.Submit(ctx, arbor.StateNext)
		require.ErrorIs(t, err, arbor.ErrValidationFailed)
		require.Equal(t, "form-1", eng.Current().Meta().UID)
	})

	t.Run("valid submit persists and advances", func(t *testing.T) {
		store := memory.NewStore()
		eng, err := arbor.New(newFetcher(),
			arbor.WithUserKey("user-2"),
			arbor.WithUserDataStore(store),
		)
		require.NoError(t, err)
		defer eng.Close()

		tree, err := eng.Load(ctx, "form-1")
		require.NoError(t, err)
		require.NoError(t, eng.SetAnswer(question(t, tree, "q-work"), "a-yes", ""))
		require.NoError(t, eng.SetAnswer(question(t, tree, "q-employer"), "Initech", ""))

		require.NoError(t, eng.Submit(ctx, arbor.StateNext))
		require.Equal(t, "form-2", eng.Current().Meta().UID)

		saved, err := store.Load(ctx, "user-2")
		require.NoError(t, err)
		require.Equal(t, []string{"Initech"}, saved.QuestionAnswers("q-employer", ""))
		require.Equal(t, 1, saved.SaveCount)

		// The submitted record pins the tree version set.
		_, ok := saved.Objects["form-1"]
		require.True(t, ok)
	})

	t.Run("submit on invalid can be allowed", func(t *testing.T) {
		eng, err := arbor.New(newFetcher(),
			arbor.WithUserKey("user-3"),
			arbor.WithSubmitOnInvalid(true),
		)
		require.NoError(t, err)
		defer eng.Close()

		tree, err := eng.Load(ctx, "form-1")
		require.NoError(t, err)
		require.NoError(t, eng.SetAnswer(question(t, tree, "q-work"), "a-yes", ""))

		require.NoError(t, eng.Submit(ctx, arbor.StateNext))
		require.Equal(t, "form-2", eng.Current().Meta().UID)
	})
}

func TestEngineReadOnly(t *testing.T) {
	ctx := context.Background()
	eng, err := arbor.New(newFetcher(),
		arbor.WithUserKey("user-1"),
		arbor.WithReadOnly(true),
	)
	require.NoError(t, err)
	defer eng.Close()

	tree, err := eng.Load(ctx, "form-1")
	require.NoError(t, err)

	q := question(t, tree, "q-work")
	require.ErrorIs(t, eng.SetAnswer(q, "a-yes", ""), arbor.ErrReadOnly)
	require.ErrorIs(t, eng.AddAnswer(q, "a-yes", ""), arbor.ErrReadOnly)
	require.ErrorIs(t, eng.RemoveAnswer(q, "a-yes", ""), arbor.ErrReadOnly)
	require.ErrorIs(t, eng.Submit(ctx, arbor.StateNoChange), arbor.ErrReadOnly)
}

func TestEngineUserDataRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	first, err := arbor.New(newFetcher(),
		arbor.WithUserKey("user-9"),
		arbor.WithUserDataStore(store),
	)
	require.NoError(t, err)
	tree, err := first.Load(ctx, "form-1")
	require.NoError(t, err)
	require.NoError(t, first.SetAnswer(question(t, tree, "q-work"), "a-yes", ""))
	require.NoError(t, first.SaveUserData(ctx))
	first.Close()

	second, err := arbor.New(newFetcher(),
		arbor.WithUserKey("user-9"),
		arbor.WithUserDataStore(store),
	)
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, second.LoadUserData(ctx))
	tree, err = second.Load(ctx, "form-1")
	require.NoError(t, err)

	data := second.UserData()
	require.True(t, data.Loaded)
	require.Equal(t, []string{"a-yes"}, data.QuestionAnswers("q-work", ""))
	// Visibility follows the restored answers.
	require.False(t, data.IsHidden(question(t, tree, "q-employer"), tree, ""))
}

func TestEngineReset(t *testing.T) {
	ctx := context.Background()
	eng, err := arbor.New(newFetcher(), arbor.WithUserKey("user-1"))
	require.NoError(t, err)
	defer eng.Close()

	tree, err := eng.Load(ctx, "form-1")
	require.NoError(t, err)
	require.NoError(t, eng.SetAnswer(question(t, tree, "q-work"), "a-yes", ""))

	eng.Reset()
	require.Nil(t, eng.Current())
	require.Empty(t, eng.UserData().QuestionAnswers("q-work", ""))
	require.Equal(t, "user-1", eng.UserData().Key)
}
