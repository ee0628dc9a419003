package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/answers"
	"github.com/aretw0/arbor/pkg/decision"
	"github.com/aretw0/arbor/pkg/ports"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewFromClient(client, opts...), mr
}

func sampleData(key string) *answers.Store {
	q := &decision.Question{Label: "q"}
	q.UID = "q1"
	data := answers.New(key)
	data.AddAnswer(q, "a-yes", "")
	data.SaveCount = 2
	return data
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.Save(ctx, sampleData("user-1")))

	restored, err := store.Load(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "user-1", restored.Key)
	require.Equal(t, []string{"a-yes"}, restored.QuestionAnswers("q1", ""))
	require.Equal(t, 2, restored.SaveCount)
	require.True(t, restored.Loaded)
}

func TestStoreNotFound(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, err := store.Load(ctx, "absent")
	require.ErrorIs(t, err, ports.ErrUserDataNotFound)
}

func TestStoreDelete(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.Save(ctx, sampleData("user-1")))
	require.NoError(t, store.Delete(ctx, "user-1"))

	_, err := store.Load(ctx, "user-1")
	require.ErrorIs(t, err, ports.ErrUserDataNotFound)
}

func TestStoreTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t, WithTTL(time.Minute))

	require.NoError(t, store.Save(ctx, sampleData("user-1")))

	mr.FastForward(2 * time.Minute)

	_, err := store.Load(ctx, "user-1")
	require.ErrorIs(t, err, ports.ErrUserDataNotFound)
}

func TestStorePrefix(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t, WithPrefix("custom:"))

	require.NoError(t, store.Save(ctx, sampleData("user-1")))
	require.True(t, mr.Exists("custom:user-1"))
}
