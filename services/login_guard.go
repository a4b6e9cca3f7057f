package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginGuard tracks consecutive failed logins per username and locks the
// account once the threshold is reached.
type LoginGuard interface {
	// RecordFailure counts a failed attempt and reports the running count and
	// whether the account is now locked.
	RecordFailure(ctx context.Context, key string) (int, bool, error)
	// IsLocked reports whether key is locked and for how much longer.
	IsLocked(ctx context.Context, key string) (bool, time.Duration, error)
	Attempts(ctx context.Context, key string) (int, error)
	Clear(ctx context.Context, key string) error
}

func guardKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// RedisLoginGuard keeps counters in Redis so every instance shares them.
type RedisLoginGuard struct {
	client    redis.Cmdable
	threshold int
	lockFor   time.Duration
}

func NewRedisLoginGuard(client redis.Cmdable, threshold int, lockFor time.Duration) *RedisLoginGuard {
	return &RedisLoginGuard{client: client, threshold: threshold, lockFor: lockFor}
}

func (g *RedisLoginGuard) failKey(key string) string { return "login:fail:" + guardKey(key) }
func (g *RedisLoginGuard) lockKey(key string) string { return "login:lock:" + guardKey(key) }

func (g *RedisLoginGuard) RecordFailure(ctx context.Context, key string) (int, bool, error) {
	var incr *redis.IntCmd
	_, err := g.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, g.failKey(key))
		pipe.Expire(ctx, g.failKey(key), g.lockFor)
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("record login failure: %w", err)
	}

	attempts := int(incr.Val())
	if attempts < g.threshold {
		return attempts, false, nil
	}
	if err := g.client.Set(ctx, g.lockKey(key), attempts, g.lockFor).Err(); err != nil {
		return attempts, false, fmt.Errorf("lock account: %w", err)
	}
	return attempts, true, nil
}

func (g *RedisLoginGuard) IsLocked(ctx context.Context, key string) (bool, time.Duration, error) {
	ttl, err := g.client.PTTL(ctx, g.lockKey(key)).Result()
	if err != nil {
		return false, 0, fmt.Errorf("check lock: %w", err)
	}
	// PTTL returns a negative duration for missing keys.
	if ttl <= 0 {
		return false, 0, nil
	}
	return true, ttl, nil
}

func (g *RedisLoginGuard) Attempts(ctx context.Context, key string) (int, error) {
	n, err := g.client.Get(ctx, g.failKey(key)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (g *RedisLoginGuard) Clear(ctx context.Context, key string) error {
	return g.client.Del(ctx, g.failKey(key), g.lockKey(key)).Err()
}

type guardEntry struct {
	attempts    int
	lastFailure time.Time
	lockedUntil time.Time
}

// MemoryLoginGuard is the single-process fallback used without Redis.
type MemoryLoginGuard struct {
	mu        sync.Mutex
	entries   map[string]*guardEntry
	threshold int
	lockFor   time.Duration
	now       func() time.Time
}

func NewMemoryLoginGuard(threshold int, lockFor time.Duration) *MemoryLoginGuard {
	return &MemoryLoginGuard{
		entries:   make(map[string]*guardEntry),
		threshold: threshold,
		lockFor:   lockFor,
		now:       time.Now,
	}
}

// entry returns the live entry for key, dropping one whose counter expired.
func (g *MemoryLoginGuard) entry(key string) *guardEntry {
	e, ok := g.entries[key]
	if !ok {
		return nil
	}
	now := g.now()
	if now.After(e.lockedUntil) && now.Sub(e.lastFailure) > g.lockFor {
		delete(g.entries, key)
		return nil
	}
	return e
}

func (g *MemoryLoginGuard) RecordFailure(_ context.Context, key string) (int, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key = guardKey(key)
	e := g.entry(key)
	if e == nil {
		e = &guardEntry{}
		g.entries[key] = e
	}
	now := g.now()
	e.attempts++
	e.lastFailure = now
	if e.attempts >= g.threshold {
		e.lockedUntil = now.Add(g.lockFor)
		return e.attempts, true, nil
	}
	return e.attempts, false, nil
}

func (g *MemoryLoginGuard) IsLocked(_ context.Context, key string) (bool, time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e := g.entry(guardKey(key))
	if e == nil {
		return false, 0, nil
	}
	remaining := e.lockedUntil.Sub(g.now())
	if remaining <= 0 {
		return false, 0, nil
	}
	return true, remaining, nil
}

func (g *MemoryLoginGuard) Attempts(_ context.Context, key string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if e := g.entry(guardKey(key)); e != nil {
		return e.attempts, nil
	}
	return 0, nil
}

func (g *MemoryLoginGuard) Clear(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, guardKey(key))
	return nil
}
