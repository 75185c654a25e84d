package student

import "context"

// ListFilter narrows List results.
type ListFilter struct {
	// Search matches name, email or phone (case-insensitive substring).
	Search string

	// Status filters by lifecycle status (empty = all).
	Status Status

	// Limit and Offset paginate the result set.
	Limit  int
	Offset int
}

// Repository is the persistence port for students.
//
// Implementations map store-level failures onto the shared sentinels:
// a unique-constraint violation on email becomes shared.ErrEmailTaken,
// a missing row becomes shared.ErrNotFound.
type Repository interface {
	// Create persists a new student.
	Create(ctx context.Context, s *Student) error

	// GetByID returns a student by ID within an organization.
	GetByID(ctx context.Context, orgID, id string) (*Student, error)

	// List returns non-deleted students matching the filter, newest first.
	List(ctx context.Context, orgID string, f ListFilter) ([]*Student, int, error)

	// UpdateOnboardOpt sets the onboarding option for a student.
	UpdateOnboardOpt(ctx context.Context, orgID, id string, opt OnboardOpt) error

	// Delete removes the student row. Used only by provisioning
	// compensation; regular deletion is a soft delete out of this scope.
	Delete(ctx context.Context, orgID, id string) error
}
