package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestJSONCacheFetchAndBump(t *testing.T) {
	ctx := context.Background()
	c := NewJSONCache(newTestClient(t), "leaderboard", time.Minute)

	key, err := c.BuildKey(ctx, "period", "7")
	require.NoError(t, err)
	require.Equal(t, "leaderboard:period:7:v1", key)

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return []int{3, 2, 1}, nil
	}
	var got []int
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, []int{3, 2, 1}, got)
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, 1, calls)

	require.NoError(t, c.Bump(ctx))
	bumped, err := c.BuildKey(ctx, "period", "7")
	require.NoError(t, err)
	require.Equal(t, "leaderboard:period:7:v2", bumped)
	require.NoError(t, c.FetchJSON(ctx, bumped, &got, loader))
	require.Equal(t, 2, calls)
}

func TestJSONCacheLoaderError(t *testing.T) {
	c := NewJSONCache(newTestClient(t), "ns", time.Minute)
	var dest []int
	err := c.FetchJSON(context.Background(), "ns:k", &dest, func(context.Context) (any, error) {
		return nil, errors.New("boom")
	})
	require.EqualError(t, err, "boom")
}

func TestJSONCacheWithoutClient(t *testing.T) {
	var c *JSONCache
	var dest map[string]int
	err := c.FetchJSON(context.Background(), "k", &dest, func(context.Context) (any, error) {
		return map[string]int{"a": 1}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, dest["a"])
	require.NoError(t, c.Bump(context.Background()))
}

func TestLockerSerialisesCriticalSection(t *testing.T) {
	locker := NewLocker(newTestClient(t), LockOptions{Expiry: 5 * time.Second, Tries: 200, RetryDelay: 5 * time.Millisecond})

	var inside, maxInside int32
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(context.Background(), "ledger:test:lock", func(context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), maxInside)
}

func TestLockerPropagatesFnError(t *testing.T) {
	locker := NewLocker(newTestClient(t), LockOptions{})
	err := locker.WithLock(context.Background(), "k", func(context.Context) error {
		return errors.New("inner")
	})
	require.EqualError(t, err, "inner")
	require.Error(t, locker.WithLock(context.Background(), "", func(context.Context) error { return nil }))
}
