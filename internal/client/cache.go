package client

import (
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/studiowebux/perfwatch/internal/monitoring"
	"github.com/studiowebux/perfwatch/internal/types"
)

const (
	defaultCacheTTL        = 5 * time.Minute
	defaultCacheMaxEntries = 256
)

// detailCache is a bounded TTL cache of execution details owned by one client
type detailCache struct {
	items      *cache.Cache
	maxEntries int
}

func newDetailCache(ttl time.Duration, maxEntries int) *detailCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultCacheMaxEntries
	}
	return &detailCache{
		items:      cache.New(ttl, 2*ttl),
		maxEntries: maxEntries,
	}
}

func (c *detailCache) get(execID string) (*types.ExecutionDetail, bool) {
	v, ok := c.items.Get(execID)
	if !ok {
		monitoring.CacheMisses.Inc()
		return nil, false
	}
	monitoring.CacheHits.Inc()
	return copyDetail(v.(*types.ExecutionDetail)), true
}

// put stores a detail unless the cache is full of live entries
func (c *detailCache) put(execID string, detail *types.ExecutionDetail) bool {
	if _, exists := c.items.Get(execID); !exists && c.items.ItemCount() >= c.maxEntries {
		c.items.DeleteExpired()
		if c.items.ItemCount() >= c.maxEntries {
			return false
		}
	}
	c.items.SetDefault(execID, copyDetail(detail))
	return true
}

func (c *detailCache) count() int {
	return c.items.ItemCount()
}

func copyDetail(d *types.ExecutionDetail) *types.ExecutionDetail {
	out := *d
	out.Pipelines = make([]types.Pipeline, len(d.Pipelines))
	for i, p := range d.Pipelines {
		out.Pipelines[i] = types.Pipeline{Name: p.Name, Children: append([]string(nil), p.Children...)}
	}
	return &out
}
