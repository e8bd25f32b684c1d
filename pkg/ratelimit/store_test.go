package ratelimit_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aussiebroadwan/gatekeeper/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *ratelimit.RedisStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, ratelimit.NewRedisStore(client)
}

func TestMemoryStore(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	s := ratelimit.NewMemoryStore(clock)
	ctx := context.Background()

	t.Run("counts and reports ttl", func(t *testing.T) {
		n, ttl, err := s.IncrementAndGet(ctx, "k", time.Minute)
		require.NoError(t, err)
		require.Equal(t, int64(1), n)
		require.Equal(t, time.Minute, ttl)

		now = now.Add(10 * time.Second)
		n, ttl, err = s.IncrementAndGet(ctx, "k", time.Minute)
		require.NoError(t, err)
		require.Equal(t, int64(2), n)
		require.Equal(t, 50*time.Second, ttl)
	})

	t.Run("resets after ttl", func(t *testing.T) {
		now = now.Add(time.Minute)
		n, _, err := s.IncrementAndGet(ctx, "k", time.Minute)
		require.NoError(t, err)
		require.Equal(t, int64(1), n)
	})

	t.Run("honours cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, _, err := s.IncrementAndGet(cctx, "k", time.Minute)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestMemoryStoreSweepsExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := ratelimit.NewMemoryStore(func() time.Time { return now })
	ctx := context.Background()

	for i := range 1000 {
		_, _, err := s.IncrementAndGet(ctx, fmt.Sprintf("old-%d", i), time.Second)
		require.NoError(t, err)
	}
	require.Equal(t, 1000, s.Len())

	now = now.Add(time.Minute)
	for range 24 {
		_, _, err := s.IncrementAndGet(ctx, "fresh", time.Second)
		require.NoError(t, err)
	}
	require.Equal(t, 1, s.Len())
}

func TestRedisStore(t *testing.T) {
	mr, s := newMiniredis(t)
	ctx := context.Background()

	n, ttl, err := s.IncrementAndGet(ctx, "rl:k:1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.Equal(t, time.Minute, ttl)
	require.Equal(t, time.Minute, mr.TTL("rl:k:1"))

	n, _, err = s.IncrementAndGet(ctx, "rl:k:1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	// The window expiry is set once, not pushed out on every hit.
	mr.FastForward(30 * time.Second)
	_, ttl, err = s.IncrementAndGet(ctx, "rl:k:1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, ttl)

	mr.FastForward(31 * time.Second)
	require.False(t, mr.Exists("rl:k:1"))

	n, _, err = s.IncrementAndGet(ctx, "rl:k:1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	require.NoError(t, s.Ping(ctx))
}

func TestRedisStoreReArmsMissingExpiry(t *testing.T) {
	mr, s := newMiniredis(t)
	require.NoError(t, mr.Set("rl:stuck", "41"))

	n, ttl, err := s.IncrementAndGet(context.Background(), "rl:stuck", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(42), n)
	require.Equal(t, time.Minute, ttl)
	require.Equal(t, time.Minute, mr.TTL("rl:stuck"))
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, s := newMiniredis(t)
	mr.Close()

	_, _, err := s.IncrementAndGet(context.Background(), "rl:k", time.Minute)
	require.ErrorIs(t, err, ratelimit.ErrStoreUnavailable)
	require.ErrorIs(t, s.Ping(context.Background()), ratelimit.ErrStoreUnavailable)
}

func TestOpenRedisStoreRejectsBadURL(t *testing.T) {
	_, err := ratelimit.OpenRedisStore("http://not-redis")
	require.Error(t, err)
}

// Both stores must hand out strictly increasing counts under contention.
func TestStoresAreAtomicUnderContention(t *testing.T) {
	_, redisStore := newMiniredis(t)

	stores := map[string]ratelimit.CounterStore{
		"memory": ratelimit.NewMemoryStore(nil),
		"redis":  redisStore,
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			const workers = 64

			var wg sync.WaitGroup
			counts := make(chan int64, workers)
			for range workers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					n, _, err := store.IncrementAndGet(context.Background(), "shared", time.Minute)
					if err == nil {
						counts <- n
					}
				}()
			}
			wg.Wait()
			close(counts)

			seen := make(map[int64]bool, workers)
			for n := range counts {
				require.False(t, seen[n], "count %d handed out twice", n)
				seen[n] = true
			}
			require.Len(t, seen, workers)
		})
	}
}
