package indexer_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omni/transfer-indexer/indexer"
)

func TestTimestampCache(t *testing.T) {
	t.Parallel()

	cache := indexer.NewTimestampCache()
	_, ok := cache.Get(1)
	require.False(t, ok)

	wg := new(sync.WaitGroup)
	for i := uint(0); i < 50; i++ {
		wg.Add(1)
		go func(n uint) {
			defer wg.Done()
			cache.Set(n, time.Unix(int64(n), 0))
			_, _ = cache.Get(n)
		}(i)
	}
	wg.Wait()

	require.Equal(t, 50, cache.Len())
	ts, ok := cache.Get(7)
	require.True(t, ok)
	require.Equal(t, int64(7), ts.Unix())
}

func TestTimestampResolver_Resolve(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("caches successful lookups", func(t *testing.T) {
		t.Parallel()

		client := newFakeClient(1000)
		env := newTestEnv(client, newFakeTransfersRepo(), 0)

		ts, ok := env.resolver.Resolve(ctx, 100)
		require.True(t, ok)
		require.Equal(t, int64(blockTime(100)), ts.Unix())
		ts2, ok := env.resolver.Resolve(ctx, 100)
		require.True(t, ok)
		require.Equal(t, ts, ts2)

		require.Equal(t, 1, client.headerCalls)
		require.Equal(t, 1, env.resolver.Cache().Len())
		require.Equal(t, 1, env.timestamps.Len())
	})

	t.Run("uses persisted timestamps", func(t *testing.T) {
		t.Parallel()

		client := newFakeClient(1000)
		client.headerErr = errRPC
		env := newTestEnv(client, newFakeTransfersRepo(), 0)
		stored := time.Date(2022, 3, 4, 5, 6, 7, 0, time.UTC)
		env.timestamps.blocks[200] = stored

		ts, ok := env.resolver.Resolve(ctx, 200)
		require.True(t, ok)
		require.Equal(t, stored, ts)
		require.Zero(t, client.headerCalls)
	})

	t.Run("reports absence without caching", func(t *testing.T) {
		t.Parallel()

		client := newFakeClient(1000)
		client.headerErr = errRPC
		env := newTestEnv(client, newFakeTransfersRepo(), 0)

		_, ok := env.resolver.Resolve(ctx, 300)
		require.False(t, ok)
		require.Zero(t, env.resolver.Cache().Len())

		client.mu.Lock()
		client.headerErr = nil
		client.mu.Unlock()

		ts, ok := env.resolver.Resolve(ctx, 300)
		require.True(t, ok)
		require.Equal(t, int64(blockTime(300)), ts.Unix())
		require.Equal(t, 2, client.headerCalls)
	})
}
