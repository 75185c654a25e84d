// Package jobs contains the scheduled background jobs.
package jobs

import (
	"context"
	"fmt"

	"github.com/fitcoach-hub/fitcoach-client-hub/internal/application/query"
	"github.com/fitcoach-hub/fitcoach-client-hub/pkg/logger"
)

// OrgLister yields the organizations to fan per-org work over.
type OrgLister interface {
	ListIDs(ctx context.Context) ([]string, error)
}

// RefreshCountsJob recomputes each organization's task bucket counts
// and rewarms the cache. Bucket membership shifts at UTC midnight even
// when no task changes, so the dashboard badges need a periodic
// recompute on top of mutation-driven invalidation.
type RefreshCountsJob struct {
	orgs   OrgLister
	counts *query.BucketCountsHandler
	logger *logger.Logger
}

// NewRefreshCountsJob creates the job.
func NewRefreshCountsJob(orgs OrgLister, counts *query.BucketCountsHandler, log *logger.Logger) *RefreshCountsJob {
	return &RefreshCountsJob{
		orgs:   orgs,
		counts: counts,
		logger: log.With(logger.Component("refresh_counts")),
	}
}

// Name implements scheduler.Job.
func (j *RefreshCountsJob) Name() string { return "refresh_bucket_counts" }

// Description implements scheduler.Job.
func (j *RefreshCountsJob) Description() string {
	return "Recomputes per-org task bucket counts and rewarms the cache"
}

// Run implements scheduler.Job. A failure for one organization does not
// stop the sweep; the job fails only when every refresh failed.
func (j *RefreshCountsJob) Run(ctx context.Context) error {
	orgIDs, err := j.orgs.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("list orgs: %w", err)
	}
	if len(orgIDs) == 0 {
		return nil
	}

	var failures int
	for _, orgID := range orgIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		_, err := j.counts.Handle(ctx, query.BucketCountsQuery{OrgID: orgID, Fresh: true})
		if err != nil {
			failures++
			j.logger.Warn("counts refresh failed", logger.OrgID(orgID), logger.Err(err))
		}
	}

	j.logger.Info("counts refresh sweep finished",
		logger.Int("orgs", len(orgIDs)),
		logger.Int("failures", failures),
	)

	if failures == len(orgIDs) {
		return fmt.Errorf("counts refresh failed for all %d orgs", failures)
	}
	return nil
}
