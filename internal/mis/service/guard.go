package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// BatchGuard 防止同一批次重复提交
// Begin marks a batch in progress, Complete marks it submitted, Reset clears it.
type BatchGuard interface {
	Begin(ctx context.Context, batchID string) error
	Complete(ctx context.Context, batchID string) error
	Reset(ctx context.Context, batchID string) error
}

const (
	batchInProgress = "in_progress"
	batchSubmitted  = "submitted"
)

func guardError(state string) error {
	if state == batchSubmitted {
		return ErrBatchSubmitted
	}
	return ErrBatchInProgress
}

// MemoryGuard 进程内批次状态
type MemoryGuard struct {
	mu     sync.Mutex
	states map[string]string
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{states: make(map[string]string)}
}

func (g *MemoryGuard) Begin(_ context.Context, batchID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if state, ok := g.states[batchID]; ok {
		return guardError(state)
	}
	g.states[batchID] = batchInProgress
	return nil
}

func (g *MemoryGuard) Complete(_ context.Context, batchID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.states[batchID] = batchSubmitted
	return nil
}

func (g *MemoryGuard) Reset(_ context.Context, batchID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.states, batchID)
	return nil
}

// RedisGuard 基于 Redis 的批次状态，多实例共享
type RedisGuard struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisGuard(rdb *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{rdb: rdb, prefix: "mis:batch:", ttl: ttl}
}

func (g *RedisGuard) key(batchID string) string {
	return g.prefix + batchID
}

func (g *RedisGuard) Begin(ctx context.Context, batchID string) error {
	ok, err := g.rdb.SetNX(ctx, g.key(batchID), batchInProgress, g.ttl).Result()
	if err != nil {
		return fmt.Errorf("begin batch %s: %w", batchID, err)
	}
	if ok {
		return nil
	}
	state, err := g.rdb.Get(ctx, g.key(batchID)).Result()
	if err == redis.Nil {
		// expired between SETNX and GET
		return g.Begin(ctx, batchID)
	}
	if err != nil {
		return fmt.Errorf("read batch %s: %w", batchID, err)
	}
	return guardError(state)
}

func (g *RedisGuard) Complete(ctx context.Context, batchID string) error {
	if err := g.rdb.Set(ctx, g.key(batchID), batchSubmitted, g.ttl).Err(); err != nil {
		return fmt.Errorf("complete batch %s: %w", batchID, err)
	}
	return nil
}

func (g *RedisGuard) Reset(ctx context.Context, batchID string) error {
	if err := g.rdb.Del(ctx, g.key(batchID)).Err(); err != nil {
		return fmt.Errorf("reset batch %s: %w", batchID, err)
	}
	return nil
}
