package redis

import (
	"context"
	"errors"
	"time"

	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/task"
	"github.com/fitcoach-hub/fitcoach-client-hub/pkg/logger"
)

// CountsCache stores per-org task bucket counts. Redis failures are
// logged and treated as cache misses so the dashboard always falls
// back to recomputation.
type CountsCache struct {
	cache *Cache
	log   *logger.Logger
}

// NewCountsCache creates a CountsCache.
func NewCountsCache(cache *Cache, log *logger.Logger) *CountsCache {
	return &CountsCache{
		cache: cache,
		log:   log.With(logger.Component("counts_cache")),
	}
}

// GetCounts returns cached counts for an organization, if present.
func (c *CountsCache) GetCounts(ctx context.Context, orgID string) (*task.Counts, bool) {
	var counts task.Counts
	err := c.cache.Get(ctx, CountsKey(orgID), &counts)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.log.Warn("counts cache read failed", logger.OrgID(orgID), logger.Err(err))
		}
		return nil, false
	}
	return &counts, true
}

// SetCounts caches counts for an organization with the given TTL.
func (c *CountsCache) SetCounts(ctx context.Context, orgID string, counts task.Counts, ttl time.Duration) {
	if ttl <= 0 {
		ttl = TTLCounts
	}
	if err := c.cache.Set(ctx, CountsKey(orgID), counts, ttl); err != nil {
		c.log.Warn("counts cache write failed", logger.OrgID(orgID), logger.Err(err))
	}
}

// InvalidateCounts drops cached counts after a task status change.
func (c *CountsCache) InvalidateCounts(ctx context.Context, orgID string) error {
	return c.cache.Delete(ctx, CountsKey(orgID))
}
