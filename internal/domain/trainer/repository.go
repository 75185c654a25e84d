package trainer

import "context"

// OrgRepository is the persistence port for organizations.
type OrgRepository interface {
	// Create persists a new organization.
	Create(ctx context.Context, o *Org) error

	// GetByID returns one organization, or shared.ErrNotFound.
	GetByID(ctx context.Context, id string) (*Org, error)

	// Delete removes an organization. Compensation only.
	Delete(ctx context.Context, id string) error
}

// Repository is the persistence port for trainer accounts.
type Repository interface {
	// Create persists a new trainer. A unique-email violation maps onto
	// shared.ErrEmailTaken.
	Create(ctx context.Context, t *Trainer) error

	// GetByEmail returns one trainer by login email, or
	// shared.ErrNotFound.
	GetByEmail(ctx context.Context, email string) (*Trainer, error)

	// Delete removes a trainer account. Compensation only.
	Delete(ctx context.Context, id string) error
}
