package query

import (
	"context"
	"fmt"
	"time"

	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/shared"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/task"
	"github.com/fitcoach-hub/fitcoach-client-hub/pkg/logger"
	"github.com/fitcoach-hub/fitcoach-client-hub/pkg/timeutil"
)

// CountsCache caches per-org bucket counts between refreshes. Misses
// and cache failures fall through to recomputation.
type CountsCache interface {
	GetCounts(ctx context.Context, orgID string) (*task.Counts, bool)
	SetCounts(ctx context.Context, orgID string, c task.Counts, ttl time.Duration)
	InvalidateCounts(ctx context.Context, orgID string) error
}

// BucketCountsQuery asks for the dashboard badge counts.
type BucketCountsQuery struct {
	OrgID string

	// Fresh bypasses the cache (dashboard refresh button).
	Fresh bool
}

// BucketCountsHandler computes per-bucket task counts by classifying
// the organization's full task set in memory. Counts are cached with a
// short TTL; bucket boundaries shift at midnight, so the TTL stays
// well under a day.
type BucketCountsHandler struct {
	tasks task.Repository
	cache CountsCache
	ttl   time.Duration
	now   Clock
	log   *logger.Logger
}

// NewBucketCountsHandler creates a BucketCountsHandler. cache may be
// nil, disabling caching.
func NewBucketCountsHandler(tasks task.Repository, cache CountsCache, ttl time.Duration, now Clock, log *logger.Logger) *BucketCountsHandler {
	if now == nil {
		now = timeutil.Now
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &BucketCountsHandler{
		tasks: tasks,
		cache: cache,
		ttl:   ttl,
		now:   now,
		log:   log.With(logger.Component("bucket_counts")),
	}
}

// Handle returns the bucket counts for an organization.
func (h *BucketCountsHandler) Handle(ctx context.Context, q BucketCountsQuery) (*task.Counts, error) {
	if q.OrgID == "" {
		return nil, shared.NewDomainError("query", "BucketCounts", shared.ErrValidation, "org id is required")
	}

	if h.cache != nil && !q.Fresh {
		if cached, ok := h.cache.GetCounts(ctx, q.OrgID); ok {
			return cached, nil
		}
	}

	rows, err := h.tasks.FindAll(ctx, q.OrgID)
	if err != nil {
		return nil, fmt.Errorf("loading tasks for counts: %w", err)
	}

	counts := task.CountBuckets(rows, h.now())
	if !counts.Consistent() {
		// Classification is total over non-failed statuses, so this
		// only fires on a broken classifier build.
		return nil, shared.NewDomainError("query", "BucketCounts", shared.ErrInvalidState, "bucket counts do not sum to total")
	}

	if h.cache != nil {
		h.cache.SetCounts(ctx, q.OrgID, counts, h.ttl)
	}
	return &counts, nil
}

// Invalidate drops the cached counts for an organization. Called after
// task status transitions.
func (h *BucketCountsHandler) Invalidate(ctx context.Context, orgID string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.InvalidateCounts(ctx, orgID); err != nil {
		h.log.Warn("counts cache invalidation failed", logger.OrgID(orgID), logger.Err(err))
	}
}
