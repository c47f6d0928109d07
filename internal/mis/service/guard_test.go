package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseGuard(t *testing.T, g BatchGuard) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, g.Begin(ctx, "b1"))
	assert.ErrorIs(t, g.Begin(ctx, "b1"), ErrBatchInProgress)
	require.NoError(t, g.Begin(ctx, "b2"), "batches are independent")

	require.NoError(t, g.Complete(ctx, "b1"))
	assert.ErrorIs(t, g.Begin(ctx, "b1"), ErrBatchSubmitted)

	require.NoError(t, g.Reset(ctx, "b1"))
	assert.NoError(t, g.Begin(ctx, "b1"))
}

func TestMemoryGuard(t *testing.T) {
	exerciseGuard(t, NewMemoryGuard())
}

func TestRedisGuard(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	exerciseGuard(t, NewRedisGuard(rdb, time.Hour))

	assert.Equal(t, "in_progress", mustGet(t, mr, "mis:batch:b1"))
	assert.Greater(t, mr.TTL("mis:batch:b1"), time.Duration(0))
}

func TestRedisGuard_Expiry(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	g := NewRedisGuard(rdb, time.Minute)
	ctx := context.Background()

	require.NoError(t, g.Begin(ctx, "b1"))
	require.NoError(t, g.Complete(ctx, "b1"))
	mr.FastForward(2 * time.Minute)
	assert.NoError(t, g.Begin(ctx, "b1"), "guard state expires with its TTL")
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}
