// Package query contains read-side handlers: they translate caller
// filters into store predicates and shape the results for the API.
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

// Clock supplies the current instant. Queries take it injected so
// bucket boundaries are testable.
type Clock func() time.Time

// ListTasksQuery is a request for a filtered, paginated task list.
type ListTasksQuery struct {
	OrgID  string
	Filter task.Filter
	Page   int
	Limit  int
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// TaskItem is one task in a list response, carrying its effective
// bucket alongside the persisted status.
type TaskItem struct {
	Task   *task.Task
	Bucket task.Bucket // empty for failed tasks
}

// ListTasksResult is a page of classified tasks.
type ListTasksResult struct {
	Items      []TaskItem
	Total      int
	Page       int
	Limit      int
	TotalPages int
}

// ListTasksHandler serves task list queries.
type ListTasksHandler struct {
	tasks task.Repository
	now   Clock
	log   *logger.Logger
}

// NewListTasksHandler creates a ListTasksHandler.
func NewListTasksHandler(tasks task.Repository, now Clock, log *logger.Logger) *ListTasksHandler {
	if now == nil {
		now = timeutil.Now
	}
	return &ListTasksHandler{
		tasks: tasks,
		now:   now,
		log:   log.With(logger.Component("list_tasks")),
	}
}

// Handle translates the filter, queries the store and classifies each
// returned task against the same instant the predicate used.
func (h *ListTasksHandler) Handle(ctx context.Context, q ListTasksQuery) (*ListTasksResult, error) {
	if q.OrgID == "" {
		return nil, shared.NewDomainError("query", "ListTasks", shared.ErrValidation, "org id is required")
	}
	if !q.Filter.Bucket.IsValid() && q.Filter.Bucket != "" {
		return nil, shared.NewDomainError("query", "ListTasks", shared.ErrValidation,
			fmt.Sprintf("unknown bucket %q", q.Filter.Bucket))
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	now := h.now()
	predicate := q.Filter.ToPredicate(q.OrgID, now)

	rows, total, err := h.tasks.Find(ctx, predicate, task.Page{
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}

	items := make([]TaskItem, 0, len(rows))
	for _, t := range rows {
		bucket, _ := task.ClassifyTask(t, now)
		items = append(items, TaskItem{Task: t, Bucket: bucket})
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + limit - 1) / limit
	}

	return &ListTasksResult{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}, nil
}
