// Package reconcile consumes payment gateway webhook deliveries, fetches the
// authoritative payment record and moves the linked storefront order to paid.
package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/adega-digital/vinicola-backend/pkg/redis"
)

// Guard deduplicates webhook deliveries per payment id within a bounded
// window. Seen answers the cheap early check, TryClaim takes the slot right
// before the order mutation, Release frees it when the mutation fails so a
// redelivery can retry.
type Guard interface {
	Seen(ctx context.Context, paymentID string) (bool, error)
	TryClaim(ctx context.Context, paymentID string) (bool, error)
	Release(ctx context.Context, paymentID string) error
}

const guardScope = "payments"

// RedisGuard backs the dedup window with SETNX + TTL, giving cluster-wide
// at-most-one-processing instead of the per-process map.
type RedisGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewRedisGuard(store redis.IdempotencyStore, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisGuard{store: store, ttl: ttl}
}

func (g *RedisGuard) Seen(ctx context.Context, paymentID string) (bool, error) {
	_, err := g.store.Get(ctx, g.store.IdempotencyKey(guardScope, paymentID))
	if errors.Is(err, redis.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (g *RedisGuard) TryClaim(ctx context.Context, paymentID string) (bool, error) {
	return g.store.SetNX(ctx, g.store.IdempotencyKey(guardScope, paymentID), "processing", g.ttl)
}

func (g *RedisGuard) Release(ctx context.Context, paymentID string) error {
	return g.store.Del(ctx, g.store.IdempotencyKey(guardScope, paymentID))
}

// MemoryGuard is the single-instance fallback: a mutex-protected TTL map
// with lazy eviction. It only guards within one process.
type MemoryGuard struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryGuard{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (g *MemoryGuard) Seen(_ context.Context, paymentID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.evictLocked()
	_, ok := g.entries[paymentID]
	return ok, nil
}

func (g *MemoryGuard) TryClaim(_ context.Context, paymentID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.evictLocked()
	if _, ok := g.entries[paymentID]; ok {
		return false, nil
	}
	g.entries[paymentID] = g.now().Add(g.ttl)
	return true, nil
}

func (g *MemoryGuard) Release(_ context.Context, paymentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, paymentID)
	return nil
}

func (g *MemoryGuard) evictLocked() {
	now := g.now()
	for id, expiry := range g.entries {
		if now.After(expiry) {
			delete(g.entries, id)
		}
	}
}
