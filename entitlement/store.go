package entitlement

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCacheMiss is returned by Cache.Get when no fresh snapshot is stored.
var ErrCacheMiss = errors.New("paywall: cache miss")

// Cache holds entitlement snapshots keyed by account id.
type Cache interface {
	Get(ctx context.Context, accountID string) (*Snapshot, error)
	Set(ctx context.Context, snap *Snapshot, ttl time.Duration) error
	Invalidate(ctx context.Context, accountID string) error
}

type memoryEntry struct {
	snap      Snapshot
	expiresAt time.Time
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns a copy of the cached snapshot.
func (c *MemoryCache) Get(_ context.Context, accountID string) (*Snapshot, error) {
	c.mu.RLock()
	e, ok := c.entries[accountID]
	c.mu.RUnlock()

	if !ok {
		return nil, ErrCacheMiss
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, accountID)
		c.mu.Unlock()
		return nil, ErrCacheMiss
	}
	snap := e.snap
	return &snap, nil
}

// Set stores snap. A ttl of zero keeps it until invalidated.
func (c *MemoryCache) Set(_ context.Context, snap *Snapshot, ttl time.Duration) error {
	e := memoryEntry{snap: *snap}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries[snap.AccountID]; ok && cur.snap.Version > snap.Version {
		return nil
	}
	c.entries[snap.AccountID] = e
	return nil
}

// Invalidate drops the snapshot for accountID.
func (c *MemoryCache) Invalidate(_ context.Context, accountID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, accountID)
	return nil
}
