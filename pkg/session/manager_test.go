package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDoRejectsConcurrentSameKind(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = m.Do(ctx, OpSubmit, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := m.Do(ctx, OpSubmit, func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrRequestInFlight)

	// A different kind is not blocked.
	require.NoError(t, m.Do(ctx, OpFetch, func(context.Context) error { return nil }))

	close(release)
	wg.Wait()

	// The kind is usable again once the first operation finishes.
	require.NoError(t, m.Do(ctx, OpSubmit, func(context.Context) error { return nil }))
}

func TestGenerationGuard(t *testing.T) {
	m := NewManager()

	gen := m.Generation()
	require.False(t, m.Stale(gen))

	m.Advance()
	require.True(t, m.Stale(gen))
	require.False(t, m.Stale(m.Generation()))
}
