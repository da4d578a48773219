package gate

import (
	"context"
	"sync"
	"time"
)

// CachedResolver memoizes another resolver for a fixed TTL.
type CachedResolver[U comparable] struct {
	inner RoleResolver[U]
	ttl   time.Duration
	now   func() time.Time

	mu    sync.RWMutex
	cache map[U]cacheEntry
}

type cacheEntry struct {
	role      *Role
	expiresAt time.Time
}

// NewCachedResolver wraps inner with a TTL cache.
func NewCachedResolver[U comparable](inner RoleResolver[U], ttl time.Duration) *CachedResolver[U] {
	return &CachedResolver[U]{
		inner: inner,
		ttl:   ttl,
		now:   time.Now,
		cache: make(map[U]cacheEntry),
	}
}

// Resolve returns the cached role or asks the inner resolver. Errors are not cached.
func (r *CachedResolver[U]) Resolve(ctx context.Context, user U) (*Role, error) {
	r.mu.RLock()
	e, ok := r.cache[user]
	r.mu.RUnlock()
	if ok && r.now().Before(e.expiresAt) {
		return e.role, nil
	}

	role, err := r.inner.Resolve(ctx, user)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.cache[user] = cacheEntry{role: role, expiresAt: r.now().Add(r.ttl)}
	r.mu.Unlock()
	return role, nil
}
