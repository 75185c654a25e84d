package pipeline

import "context"

// StageRepository is the read-only persistence port for stages.
type StageRepository interface {
	// GetByPosition returns the stage at an exact position, or
	// shared.ErrNotFound when the organization has no stage there.
	GetByPosition(ctx context.Context, orgID string, position int) (*Stage, error)

	// GetLowest returns the stage with the smallest position, or
	// shared.ErrNotFound when the organization has no stages at all.
	GetLowest(ctx context.Context, orgID string) (*Stage, error)

	// CreateMany inserts a batch of stages. Used by organization signup
	// to seed the default board.
	CreateMany(ctx context.Context, stages []*Stage) error
}

// CardRepository is the persistence port for pipeline cards.
//
// Create maps a unique-constraint violation onto shared.ErrConflict
// (via shared.StoreError) and a schema-cache miss onto
// shared.ErrUnknownColumn; callers depend on those kinds.
type CardRepository interface {
	// ExistsForStudent reports whether a card already exists for the
	// student within the organization.
	ExistsForStudent(ctx context.Context, orgID, studentID string) (bool, error)

	// MaxPositionInStage returns the highest card position in a stage
	// and whether the stage holds any cards at all.
	MaxPositionInStage(ctx context.Context, orgID, stageID string) (int, bool, error)

	// Create persists a new card. Optional columns named in omit are
	// left out of the insert; provisioning uses this to recover when the
	// store's schema cache does not know an optional column yet.
	Create(ctx context.Context, c *Card, omit ...string) error

	// DeleteByStudent removes the student's card. Used by rollback paths
	// to prevent orphans.
	DeleteByStudent(ctx context.Context, orgID, studentID string) error
}
