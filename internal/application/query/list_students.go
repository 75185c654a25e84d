package query

import (
	"context"
	"fmt"

	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/shared"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/student"
	"github.com/fitcoach-hub/fitcoach-client-hub/pkg/logger"
)

// ListStudentsQuery is a request for a filtered, paginated student list.
type ListStudentsQuery struct {
	OrgID  string
	Search string
	Status student.Status
	Page   int
	Limit  int
}

// ListStudentsResult is a page of students.
type ListStudentsResult struct {
	Students   []*student.Student
	Total      int
	Page       int
	Limit      int
	TotalPages int
}

// ListStudentsHandler serves student list queries.
type ListStudentsHandler struct {
	students student.Repository
	log      *logger.Logger
}

// NewListStudentsHandler creates a ListStudentsHandler.
func NewListStudentsHandler(students student.Repository, log *logger.Logger) *ListStudentsHandler {
	return &ListStudentsHandler{
		students: students,
		log:      log.With(logger.Component("list_students")),
	}
}

// Handle returns one page of the organization's students.
func (h *ListStudentsHandler) Handle(ctx context.Context, q ListStudentsQuery) (*ListStudentsResult, error) {
	if q.OrgID == "" {
		return nil, shared.NewDomainError("query", "ListStudents", shared.ErrValidation, "org id is required")
	}
	if q.Status != "" && !q.Status.IsValid() {
		return nil, shared.NewDomainError("query", "ListStudents", shared.ErrValidation,
			fmt.Sprintf("unknown status %q", q.Status))
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

	rows, total, err := h.students.List(ctx, q.OrgID, student.ListFilter{
		Search: q.Search,
		Status: q.Status,
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return nil, fmt.Errorf("querying students: %w", err)
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + limit - 1) / limit
	}

	return &ListStudentsResult{
		Students:   rows,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}, nil
}
