package flow

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethanbaker/agentlink/pkg/flow"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStoreWithClient(client, DefaultKeyPrefix), server
}

func pending(state string) *flow.PendingFlow {
	return &flow.PendingFlow{
		State:     state,
		Provider:  "slack",
		UserID:    "alice",
		UserEmail: "alice@example.com",
		AgentID:   "agent-1",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestStoreTakeOnce(t *testing.T) {
	redisStore, _ := newRedisStore(t)

	for name, store := range map[string]flow.Store{"redis": redisStore, "memory": NewInMemoryStore()} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Put(ctx, pending("s1"), time.Minute))

			got, err := store.Take(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, pending("s1"), got)

			_, err = store.Take(ctx, "s1")
			assert.ErrorIs(t, err, flow.ErrFlowNotFound)

			_, err = store.Take(ctx, "never-stored")
			assert.ErrorIs(t, err, flow.ErrFlowNotFound)

			assert.Error(t, store.Put(ctx, &flow.PendingFlow{}, time.Minute))
		})
	}
}

func TestStoreConcurrentTake(t *testing.T) {
	redisStore, _ := newRedisStore(t)

	for name, store := range map[string]flow.Store{"redis": redisStore, "memory": NewInMemoryStore()} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Put(ctx, pending("race"), time.Minute))

			var taken atomic.Int32
			var wg sync.WaitGroup
			for range 16 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := store.Take(ctx, "race"); err == nil {
						taken.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(1), taken.Load())
		})
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	store, server := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, pending("s1"), time.Minute))
	assert.True(t, server.Exists(DefaultKeyPrefix+"s1"))

	server.FastForward(2 * time.Minute)

	_, err := store.Take(ctx, "s1")
	assert.ErrorIs(t, err, flow.ErrFlowNotFound)
}

func TestInMemoryStoreExpiry(t *testing.T) {
	store := NewInMemoryStore()
	clock := time.Now()
	store.now = func() time.Time { return clock }
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, pending("old"), time.Minute))
	clock = clock.Add(2 * time.Minute)

	_, err := store.Take(ctx, "old")
	assert.ErrorIs(t, err, flow.ErrFlowNotFound)

	require.NoError(t, store.Put(ctx, pending("a"), time.Minute))
	require.NoError(t, store.Put(ctx, pending("b"), time.Minute))
	clock = clock.Add(2 * time.Minute)
	require.NoError(t, store.Put(ctx, pending("c"), time.Minute))
	assert.Equal(t, 1, store.Len(), "expired flows are swept on put")
}

func TestNewRedisStore(t *testing.T) {
	server := miniredis.RunT(t)
	ctx := context.Background()

	store, err := NewRedisStore(ctx, "redis://"+server.Addr()+"/0")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put(ctx, pending("s1"), time.Minute))
	_, err = store.Take(ctx, "s1")
	assert.NoError(t, err)

	_, err = NewRedisStore(ctx, "not a url")
	assert.Error(t, err)
}
