package services

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenDenylist records revoked token ids until the token would have expired
// anyway.
type TokenDenylist interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type RedisDenylist struct {
	client redis.Cmdable
}

func NewRedisDenylist(client redis.Cmdable) *RedisDenylist {
	return &RedisDenylist{client: client}
}

func (d *RedisDenylist) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return d.client.Set(ctx, "token:revoked:"+jti, 1, ttl).Err()
}

func (d *RedisDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := d.client.Exists(ctx, "token:revoked:"+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type MemoryDenylist struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func NewMemoryDenylist() *MemoryDenylist {
	return &MemoryDenylist{revoked: make(map[string]time.Time)}
}

func (d *MemoryDenylist) Revoke(_ context.Context, jti string, until time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for id, exp := range d.revoked {
		if now.After(exp) {
			delete(d.revoked, id)
		}
	}
	if until.After(now) {
		d.revoked[jti] = until
	}
	return nil
}

func (d *MemoryDenylist) IsRevoked(_ context.Context, jti string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	exp, ok := d.revoked[jti]
	return ok && time.Now().Before(exp), nil
}
