// Package storetest holds the behaviour every presence store backend must
// share. Backend packages run it from their own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// Run exercises s against the store contract.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("CreateGet", func(t *testing.T) { testCreateGet(t, newStore(t)) })
	t.Run("MissingRecord", func(t *testing.T) { testMissing(t, newStore(t)) })
	t.Run("SetNickname", func(t *testing.T) { testSetNickname(t, newStore(t)) })
	t.Run("SetNicknameAfterDelete", func(t *testing.T) { testSetNicknameAfterDelete(t, newStore(t)) })
	t.Run("ConcurrentNicknames", func(t *testing.T) { testConcurrentNicknames(t, newStore(t)) })
}

func testCreateGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	connected := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

	require.NoError(t, s.Create(ctx, store.Record{ConnectionID: "c1", Nickname: store.DefaultNickname, ConnectedAt: connected}))

	rec, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, "c1", rec.ConnectionID)
	require.Equal(t, store.DefaultNickname, rec.Nickname)
	require.True(t, rec.ConnectedAt.Equal(connected), "connected at %v", rec.ConnectedAt)
}

func testMissing(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.Get(ctx, "ghost")
	require.ErrorIs(t, err, store.ErrNotFound)

	// Deleting a missing record is not an error.
	require.NoError(t, s.Delete(ctx, "ghost"))
}

func testSetNickname(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, store.Record{ConnectionID: "c1", Nickname: store.DefaultNickname, ConnectedAt: time.Now()}))

	old, err := s.SetNickname(ctx, "c1", "alice")
	require.NoError(t, err)
	require.Equal(t, store.DefaultNickname, old)

	old, err = s.SetNickname(ctx, "c1", "")
	require.NoError(t, err)
	require.Equal(t, "alice", old)

	rec, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, "", rec.Nickname)
}

func testSetNicknameAfterDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, store.Record{ConnectionID: "c1", Nickname: store.DefaultNickname, ConnectedAt: time.Now()}))
	require.NoError(t, s.Delete(ctx, "c1"))

	_, err := s.SetNickname(ctx, "c1", "alice")
	require.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)

	// The update must not resurrect the record.
	_, err = s.Get(ctx, "c1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testConcurrentNicknames(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, store.Record{ConnectionID: "c1", Nickname: store.DefaultNickname, ConnectedAt: time.Now()}))

	names := []string{"a", "b", "c", "d"}
	olds := make(chan string, len(names))
	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			old, err := s.SetNickname(ctx, "c1", name)
			if err == nil {
				olds <- old
			}
		}(name)
	}
	wg.Wait()
	close(olds)

	// Each swap observes a distinct predecessor.
	seen := make(map[string]bool)
	for old := range olds {
		require.False(t, seen[old], "old nickname %q returned twice", old)
		seen[old] = true
	}
	require.True(t, seen[store.DefaultNickname])
}
