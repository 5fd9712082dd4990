package service

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenDenylist remembers revoked token ids until the token would have
// expired anyway.
type TokenDenylist interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	Backend() string
}

type InMemoryTokenDenylist struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]time.Time
}

func NewInMemoryTokenDenylist() *InMemoryTokenDenylist {
	return &InMemoryTokenDenylist{now: time.Now, entries: make(map[string]time.Time)}
}

func (d *InMemoryTokenDenylist) Revoke(_ context.Context, tokenID string, expiresAt time.Time) error {
	now := d.now()
	if !expiresAt.After(now) {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[tokenID] = expiresAt
	// Sweep on write keeps the map bounded by the number of live revoked tokens.
	for id, until := range d.entries {
		if !until.After(now) {
			delete(d.entries, id)
		}
	}
	return nil
}

func (d *InMemoryTokenDenylist) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	until, ok := d.entries[tokenID]
	if !ok {
		return false, nil
	}
	if !until.After(d.now()) {
		delete(d.entries, tokenID)
		return false, nil
	}
	return true, nil
}

func (d *InMemoryTokenDenylist) Backend() string { return "memory" }

type RedisTokenDenylist struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisTokenDenylist(client redis.UniversalClient, prefix string) *RedisTokenDenylist {
	if prefix == "" {
		prefix = "esp"
	}
	return &RedisTokenDenylist{client: client, prefix: prefix + ":token_denylist", now: time.Now}
}

func (d *RedisTokenDenylist) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(d.now())
	if ttl <= 0 {
		return nil
	}
	return d.client.Set(ctx, d.key(tokenID), 1, ttl).Err()
}

func (d *RedisTokenDenylist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *RedisTokenDenylist) Backend() string { return "redis" }

func (d *RedisTokenDenylist) key(tokenID string) string {
	return d.prefix + ":" + tokenID
}
