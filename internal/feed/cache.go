package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"goldfeed/internal/provider"
)

// ErrPriceUnavailable means every provider failed and no stale entry was
// usable within the grace window.
var ErrPriceUnavailable = errors.New("price unavailable")

// entry stores the last validated quote for a single symbol.
type entry struct {
	quote     provider.Quote
	fetchedAt time.Time
}

// RefreshFunc fetches a fresh quote; the cache runs it outside its lock.
type RefreshFunc func(ctx context.Context) (provider.Quote, error)

// Cache keeps the last validated quote per symbol for a TTL and coalesces
// concurrent refreshes: under load, N misses for the same symbol cause
// exactly one upstream fetch, and every caller gets its result.
//
// When a refresh fails, a stale entry still within the grace window beyond
// the TTL is served, flagged as stale, instead of failing the caller.
type Cache struct {
	TTL   time.Duration
	Grace time.Duration

	mu      sync.RWMutex
	entries map[string]entry
	sf      singleflight.Group
}

func NewCache(ttl, grace time.Duration) *Cache {
	return &Cache{
		TTL:     ttl,
		Grace:   grace,
		entries: make(map[string]entry),
	}
}

// GetOrRefresh returns the cached quote for symbol if fresh, otherwise runs
// (or joins) the single in-flight refresh for that symbol. The second return
// reports whether the quote is stale-but-graced.
func (c *Cache) GetOrRefresh(ctx context.Context, symbol string, refresh RefreshFunc) (provider.Quote, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[symbol]
	c.mu.RUnlock()
	if ok && time.Since(e.fetchedAt) < c.TTL {
		return e.quote, false, nil
	}

	// Exactly one refresh runs per symbol; late joiners wait on the same
	// flight. The refresh is detached from this caller's context so that an
	// abandoning caller does not cancel it for the other waiters.
	ch := c.sf.DoChan(symbol, func() (any, error) {
		q, err := refresh(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.store(symbol, q)
		return q, nil
	})

	select {
	case <-ctx.Done():
		return provider.Quote{}, false, ctx.Err()
	case res := <-ch:
		if res.Err == nil {
			return res.Val.(provider.Quote), false, nil
		}
		// Refresh failed: fall back to a stale entry within the grace window.
		c.mu.RLock()
		e, ok := c.entries[symbol]
		c.mu.RUnlock()
		if ok && time.Since(e.fetchedAt) < c.TTL+c.Grace {
			return e.quote, true, nil
		}
		return provider.Quote{}, false, fmt.Errorf("%w: %v", ErrPriceUnavailable, res.Err)
	}
}

// Peek returns the cached entry for symbol without triggering a refresh.
func (c *Cache) Peek(symbol string) (provider.Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[symbol]
	return e.quote, ok
}

func (c *Cache) store(symbol string, q provider.Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[string]entry)
	}
	c.entries[symbol] = entry{quote: q, fetchedAt: time.Now()}
}
