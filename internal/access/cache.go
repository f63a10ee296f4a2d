package access

import (
	"context"
	"sync"
	"time"
)

// CachedResolver wraps a Resolver with a per-principal TTL cache of the
// resolved Snapshot. Admin writes must call InvalidateAll.
type CachedResolver struct {
	inner *Resolver
	ttl   time.Duration
	now   func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
	// gen advances on every invalidation; a resolve that straddles one is
	// returned to its caller but not stored.
	gen uint64
}

type cacheEntry struct {
	snap      Snapshot
	expiresAt time.Time
}

// NewCachedResolver wraps inner. A non-positive ttl disables caching.
func NewCachedResolver(inner *Resolver, ttl time.Duration) *CachedResolver {
	return &CachedResolver{
		inner: inner,
		ttl:   ttl,
		now:   time.Now,
		cache: make(map[string]cacheEntry),
	}
}

// Snapshot returns the cached snapshot, resolving on miss or expiry.
func (c *CachedResolver) Snapshot(ctx context.Context, principalID string) (Snapshot, error) {
	if c.ttl <= 0 {
		return c.inner.Snapshot(ctx, principalID)
	}
	c.mu.RLock()
	entry, ok := c.cache[principalID]
	gen := c.gen
	c.mu.RUnlock()
	if ok && c.now().Before(entry.expiresAt) {
		return entry.snap, nil
	}

	snap, err := c.inner.Snapshot(ctx, principalID)
	if err != nil {
		return Snapshot{}, err
	}
	c.mu.Lock()
	if c.gen == gen {
		c.cache[principalID] = cacheEntry{snap: snap, expiresAt: c.now().Add(c.ttl)}
	}
	c.mu.Unlock()
	return snap, nil
}

// ProfilesFor implements the resolver surface from the cache.
func (c *CachedResolver) ProfilesFor(ctx context.Context, principalID string) ([]string, error) {
	snap, err := c.Snapshot(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return snap.Profiles, nil
}

// PermissionsFor implements the resolver surface from the cache.
func (c *CachedResolver) PermissionsFor(ctx context.Context, principalID string) (PermissionSet, error) {
	snap, err := c.Snapshot(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return snap.Permissions, nil
}

// VisibleMenuKeysFor implements the resolver surface from the cache.
func (c *CachedResolver) VisibleMenuKeysFor(ctx context.Context, principalID string) (KeySet, error) {
	snap, err := c.Snapshot(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return snap.MenuKeys, nil
}

// MenuTreeFor builds the tree from cached keys.
func (c *CachedResolver) MenuTreeFor(ctx context.Context, principalID string) ([]*TreeNode, error) {
	snap, err := c.Snapshot(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return c.inner.treeFor(ctx, snap.MenuKeys)
}

// Invalidate drops one principal.
func (c *CachedResolver) Invalidate(principalID string) {
	c.mu.Lock()
	delete(c.cache, principalID)
	c.gen++
	c.mu.Unlock()
}

// InvalidateAll clears the cache.
func (c *CachedResolver) InvalidateAll() {
	c.mu.Lock()
	c.cache = make(map[string]cacheEntry)
	c.gen++
	c.mu.Unlock()
}
