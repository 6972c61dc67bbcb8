// Package redis stores entitlement snapshots in Redis so every node of a
// deployment serves the same view.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/paywall/entitlement"
)

// DefaultPrefix namespaces snapshot keys.
const DefaultPrefix = "paywall:entitlement:"

// compile-time interface check
var _ entitlement.Cache = (*Cache)(nil)

// Cache implements entitlement.Cache on Redis.
type Cache struct {
	client goredis.UniversalClient
	prefix string
}

// New wraps an existing client.
func New(client goredis.UniversalClient, prefix string) *Cache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Cache{client: client, prefix: prefix}
}

// Open connects to the Redis server at url (redis://...).
func Open(ctx context.Context, url string) (*Cache, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("paywall/redis: parse url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("paywall/redis: ping: %w", err)
	}
	return New(client, ""), nil
}

func (c *Cache) key(accountID string) string { return c.prefix + accountID }

func (c *Cache) Get(ctx context.Context, accountID string) (*entitlement.Snapshot, error) {
	data, err := c.client.Get(ctx, c.key(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, entitlement.ErrCacheMiss
		}
		return nil, fmt.Errorf("paywall/redis: get: %w", err)
	}

	var snap entitlement.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("paywall/redis: decode snapshot: %w", err)
	}
	return &snap, nil
}

func (c *Cache) Set(ctx context.Context, snap *entitlement.Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("paywall/redis: encode snapshot: %w", err)
	}
	if err := c.client.Set(ctx, c.key(snap.AccountID), data, ttl).Err(); err != nil {
		return fmt.Errorf("paywall/redis: set: %w", err)
	}
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, accountID string) error {
	if err := c.client.Del(ctx, c.key(accountID)).Err(); err != nil {
		return fmt.Errorf("paywall/redis: del: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (c *Cache) Close() error {
	return c.client.Close()
}
