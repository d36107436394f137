// Package throttle keeps redundant chain head lookups off the RPC endpoints.
package throttle

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultFetchTimeout bounds a shared head lookup.
const DefaultFetchTimeout = 30 * time.Second

// HeadSource fetches the current chain head.
type HeadSource interface {
	GetLatestBlock(ctx context.Context) (uint64, error)
}

// HeadCache caches the chain head for a short TTL. Every currency on a chain
// and the health monitor ask for the head each pass, and concurrent misses
// share one RPC call.
type HeadCache struct {
	src          HeadSource
	ttl          time.Duration
	fetchTimeout time.Duration
	group        singleflight.Group
	calls        uint64

	mu       sync.RWMutex
	cached   uint64
	cachedAt time.Time
}

// NewHeadCache wraps src. A ttl of zero disables caching but still collapses
// concurrent calls.
func NewHeadCache(src HeadSource, ttl time.Duration) *HeadCache {
	return &HeadCache{src: src, ttl: ttl, fetchTimeout: DefaultFetchTimeout}
}

// GetLatestBlock returns the cached head while it is fresh. A miss joins the
// shared fetch, which runs detached from ctx so that the caller starting it
// cannot cancel it for the others; ctx only bounds this caller's wait.
func (c *HeadCache) GetLatestBlock(ctx context.Context) (uint64, error) {
	c.mu.RLock()
	if c.ttl > 0 && !c.cachedAt.IsZero() && time.Since(c.cachedAt) < c.ttl {
		head := c.cached
		c.mu.RUnlock()
		return head, nil
	}
	c.mu.RUnlock()

	ch := c.group.DoChan("head", func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		head, err := c.src.GetLatestBlock(fetchCtx)
		if err != nil {
			return uint64(0), err
		}
		c.mu.Lock()
		c.calls++
		c.cached = head
		c.cachedAt = time.Now()
		c.mu.Unlock()
		return head, nil
	})
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(uint64), nil
	}
}

// Invalidate forces the next call to hit the source.
func (c *HeadCache) Invalidate() {
	c.mu.Lock()
	c.cachedAt = time.Time{}
	c.mu.Unlock()
}

// Fetches reports how many times the source was called successfully.
func (c *HeadCache) Fetches() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.calls
}
