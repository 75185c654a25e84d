package query

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/shared"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/task"
	"github.com/fitcoach-hub/fitcoach-client-hub/pkg/logger"
	"github.com/fitcoach-hub/fitcoach-client-hub/pkg/timeutil"
)

// fakeTaskRepo evaluates predicates in memory the way the store would.
type fakeTaskRepo struct {
	mu    sync.Mutex
	tasks []*task.Task
}

func (r *fakeTaskRepo) GetByID(_ context.Context, orgID, id string) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		if t.OrgID == orgID && t.ID == id {
			return t, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeTaskRepo) Find(_ context.Context, p task.Predicate, page task.Page) ([]*task.Task, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*task.Task
	for _, t := range r.tasks {
		if matches(t, p) {
			matched = append(matched, t)
		}
	}
	total := len(matched)
	if page.Offset >= total {
		return nil, total, nil
	}
	end := page.Offset + page.Limit
	if end > total {
		end = total
	}
	return matched[page.Offset:end], total, nil
}

func matches(t *task.Task, p task.Predicate) bool {
	if t.OrgID != p.OrgID {
		return false
	}
	if len(p.Statuses) > 0 {
		found := false
		for _, s := range p.Statuses {
			if t.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !p.ScheduledFrom.IsZero() && t.ScheduledFor.Before(p.ScheduledFrom) {
		return false
	}
	if !p.ScheduledTo.IsZero() && t.ScheduledFor.After(p.ScheduledTo) {
		return false
	}
	if p.Anchor != "" && t.Anchor != p.Anchor {
		return false
	}
	if p.Channel != "" && t.Channel != p.Channel {
		return false
	}
	if p.Text != "" {
		needle := strings.ToLower(p.Text)
		if !strings.Contains(strings.ToLower(t.StudentName), needle) &&
			!strings.Contains(strings.ToLower(t.Payload), needle) {
			return false
		}
	}
	return true
}

func (r *fakeTaskRepo) FindAll(_ context.Context, orgID string) ([]*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*task.Task
	for _, t := range r.tasks {
		if t.OrgID == orgID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeTaskRepo) Update(_ context.Context, updated *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, t := range r.tasks {
		if t.OrgID == updated.OrgID && t.ID == updated.ID {
			r.tasks[i] = updated
			return nil
		}
	}
	return shared.ErrNotFound
}

var testNow = timeutil.DateTime(2025, 3, 10, 12, 0, 0)

func fixedClock() time.Time { return testNow }

func seedTasks() []*task.Task {
	return []*task.Task{
		{ID: "t1", OrgID: "org-1", StudentName: "Ana", Status: task.StatusPending, ScheduledFor: timeutil.Date(2025, 3, 8), Anchor: "first_workout"},
		{ID: "t2", OrgID: "org-1", StudentName: "Bia", Status: task.StatusPending, ScheduledFor: timeutil.DateTime(2025, 3, 10, 15, 0, 0)},
		{ID: "t3", OrgID: "org-1", StudentName: "Caio", Status: task.StatusPending, ScheduledFor: timeutil.Date(2025, 3, 14)},
		{ID: "t4", OrgID: "org-1", StudentName: "Davi", Status: task.StatusSent, ScheduledFor: timeutil.Date(2025, 3, 9)},
		{ID: "t5", OrgID: "org-1", StudentName: "Eva", Status: task.StatusSnoozed, ScheduledFor: timeutil.Date(2025, 3, 12)},
		{ID: "t6", OrgID: "org-1", StudentName: "Gil", Status: task.StatusFailed, ScheduledFor: timeutil.Date(2025, 3, 9)},
		{ID: "t7", OrgID: "org-2", StudentName: "Hugo", Status: task.StatusPending, ScheduledFor: timeutil.Date(2025, 3, 8)},
	}
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Output: io.Discard})
}

func TestListTasks_BucketFilter(t *testing.T) {
	repo := &fakeTaskRepo{tasks: seedTasks()}
	h := NewListTasksHandler(repo, fixedClock, testLogger())

	tests := []struct {
		bucket  task.Bucket
		wantIDs []string
	}{
		{task.BucketOverdue, []string{"t1"}},
		{task.BucketDueToday, []string{"t2"}},
		{task.BucketPendingFuture, []string{"t3"}},
		{task.BucketSent, []string{"t4"}},
		{task.BucketPostponedSkipped, []string{"t5"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.bucket), func(t *testing.T) {
			res, err := h.Handle(context.Background(), ListTasksQuery{
				OrgID:  "org-1",
				Filter: task.Filter{Bucket: tt.bucket},
			})
			require.NoError(t, err)

			var ids []string
			for _, item := range res.Items {
				ids = append(ids, item.Task.ID)
				assert.Equal(t, tt.bucket, item.Bucket)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestListTasks_TextSearch(t *testing.T) {
	repo := &fakeTaskRepo{tasks: seedTasks()}
	h := NewListTasksHandler(repo, fixedClock, testLogger())

	res, err := h.Handle(context.Background(), ListTasksQuery{
		OrgID:  "org-1",
		Filter: task.Filter{Text: "ANA"},
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "t1", res.Items[0].Task.ID)
}

func TestListTasks_Pagination(t *testing.T) {
	repo := &fakeTaskRepo{tasks: seedTasks()}
	h := NewListTasksHandler(repo, fixedClock, testLogger())

	res, err := h.Handle(context.Background(), ListTasksQuery{
		OrgID: "org-1",
		Page:  2,
		Limit: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, 6, res.Total)
	assert.Equal(t, 3, res.TotalPages)
	assert.Len(t, res.Items, 2)
}

func TestListTasks_UnknownBucket(t *testing.T) {
	repo := &fakeTaskRepo{tasks: seedTasks()}
	h := NewListTasksHandler(repo, fixedClock, testLogger())

	_, err := h.Handle(context.Background(), ListTasksQuery{
		OrgID:  "org-1",
		Filter: task.Filter{Bucket: "bogus"},
	})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

// memCountsCache is a map-backed CountsCache.
type memCountsCache struct {
	mu     sync.Mutex
	counts map[string]task.Counts
	hits   int
}

func newMemCountsCache() *memCountsCache {
	return &memCountsCache{counts: make(map[string]task.Counts)}
}

func (c *memCountsCache) GetCounts(_ context.Context, orgID string) (*task.Counts, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.counts[orgID]; ok {
		c.hits++
		return &v, true
	}
	return nil, false
}

func (c *memCountsCache) SetCounts(_ context.Context, orgID string, v task.Counts, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[orgID] = v
}

func (c *memCountsCache) InvalidateCounts(_ context.Context, orgID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, orgID)
	return nil
}

func TestBucketCounts(t *testing.T) {
	repo := &fakeTaskRepo{tasks: seedTasks()}
	h := NewBucketCountsHandler(repo, nil, 0, fixedClock, testLogger())

	counts, err := h.Handle(context.Background(), BucketCountsQuery{OrgID: "org-1"})
	require.NoError(t, err)

	assert.Equal(t, 1, counts.Overdue)
	assert.Equal(t, 1, counts.DueToday)
	assert.Equal(t, 1, counts.PendingFuture)
	assert.Equal(t, 1, counts.Sent)
	assert.Equal(t, 1, counts.PostponedSkipped)
	assert.Equal(t, 1, counts.Failed)
	assert.Equal(t, 6, counts.Total)
	assert.True(t, counts.Consistent())
}

func TestBucketCounts_CacheHitAndInvalidate(t *testing.T) {
	repo := &fakeTaskRepo{tasks: seedTasks()}
	cache := newMemCountsCache()
	h := NewBucketCountsHandler(repo, cache, time.Minute, fixedClock, testLogger())

	_, err := h.Handle(context.Background(), BucketCountsQuery{OrgID: "org-1"})
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), BucketCountsQuery{OrgID: "org-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)

	// Fresh bypasses the cache.
	_, err = h.Handle(context.Background(), BucketCountsQuery{OrgID: "org-1", Fresh: true})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)

	h.Invalidate(context.Background(), "org-1")
	_, ok := cache.GetCounts(context.Background(), "org-1")
	assert.False(t, ok)
}

func TestBucketCounts_TenantScoped(t *testing.T) {
	repo := &fakeTaskRepo{tasks: seedTasks()}
	h := NewBucketCountsHandler(repo, nil, 0, fixedClock, testLogger())

	counts, err := h.Handle(context.Background(), BucketCountsQuery{OrgID: "org-2"})
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Total)
	assert.Equal(t, 1, counts.Overdue)
}
