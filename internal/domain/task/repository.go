package task

import "context"

// Page is the pagination window for list queries.
type Page struct {
	Limit  int
	Offset int
}

// Repository is the persistence port for relationship tasks.
type Repository interface {
	// GetByID returns one task, or shared.ErrNotFound.
	GetByID(ctx context.Context, orgID, id string) (*Task, error)

	// Find returns tasks matching the predicate, newest scheduled first,
	// along with the total match count for pagination.
	Find(ctx context.Context, p Predicate, page Page) ([]*Task, int, error)

	// FindAll returns every task for the organization. Used by the
	// bucket aggregator, which classifies in memory.
	FindAll(ctx context.Context, orgID string) ([]*Task, error)

	// Update persists a task's mutable fields (status, scheduled_for,
	// sent_at, updated_at), or shared.ErrNotFound.
	Update(ctx context.Context, t *Task) error
}
