// Package trainer contains the organization and trainer account model
// used by signup and authentication.
package trainer

import (
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/shared"
)

// Plan is the billing tier of an organization. The student limit per
// plan gates provisioning.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// StudentLimit returns the maximum active students the plan allows.
// Zero means unlimited.
func (p Plan) StudentLimit() int {
	if p == PlanFree {
		return 25
	}
	return 0
}

// Org is a tenant: one training business with its own board, students
// and tasks.
type Org struct {
	ID        string
	Name      string
	Plan      Plan
	CreatedAt time.Time
}

// NewOrg creates a validated organization on the free plan.
func NewOrg(id, name string) (*Org, error) {
	if id == "" {
		return nil, shared.NewDomainError("trainer", "NewOrg", shared.ErrInvalidID, "id is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewDomainError("trainer", "NewOrg", shared.ErrValidation, "name is required")
	}
	return &Org{
		ID:        id,
		Name:      name,
		Plan:      PlanFree,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// WithinStudentLimit reports whether one more student fits the plan.
func (o *Org) WithinStudentLimit(current int) bool {
	limit := o.Plan.StudentLimit()
	return limit == 0 || current < limit
}

// Trainer is an authenticated account belonging to one organization.
type Trainer struct {
	ID           string
	OrgID        string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// NewTrainer creates a validated trainer with a bcrypt password hash.
func NewTrainer(id, orgID, name, email, password string) (*Trainer, error) {
	if id == "" || orgID == "" {
		return nil, shared.NewDomainError("trainer", "NewTrainer", shared.ErrInvalidID, "id and org are required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewDomainError("trainer", "NewTrainer", shared.ErrValidation, "name is required")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, shared.NewDomainError("trainer", "NewTrainer", shared.ErrValidation, "invalid email address")
	}
	if len(password) < 8 {
		return nil, shared.NewDomainError("trainer", "NewTrainer", shared.ErrValidation, "password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, shared.WrapDomainError("trainer", "NewTrainer", shared.ErrValidation, "hashing password", err)
	}

	return &Trainer{
		ID:           id,
		OrgID:        orgID,
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// CheckPassword verifies a plaintext password against the stored hash.
func (t *Trainer) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(t.PasswordHash), []byte(password)) == nil
}
