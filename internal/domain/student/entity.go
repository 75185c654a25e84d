// Package student contains the client (student) domain model for
// FitCoach Client Hub. This is core business logic - no external
// dependencies.
package student

import (
	"strings"
	"time"

	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/shared"
)

// Status represents the lifecycle state of a student.
type Status string

const (
	StatusOnboarding Status = "onboarding"
	StatusActive     Status = "active"
	StatusPaused     Status = "paused"
)

// IsValid checks that the status is one of the known values.
func (s Status) IsValid() bool {
	switch s {
	case StatusOnboarding, StatusActive, StatusPaused:
		return true
	}
	return false
}

// String returns the string representation of the status.
func (s Status) String() string { return string(s) }

// OnboardOpt controls whether a pipeline card should exist for the
// student. The values match the store's column enum.
type OnboardOpt string

const (
	// OnboardSkip - no card is wanted for this student.
	OnboardSkip OnboardOpt = "nao_enviar"
	// OnboardRequested - a card must be provisioned.
	OnboardRequested OnboardOpt = "enviar"
	// OnboardDone - a card exists; set exactly once by provisioning.
	OnboardDone OnboardOpt = "enviado"
)

// IsValid checks that the option is one of the known values.
func (o OnboardOpt) IsValid() bool {
	switch o {
	case OnboardSkip, OnboardRequested, OnboardDone:
		return true
	}
	return false
}

// String returns the string representation of the option.
func (o OnboardOpt) String() string { return string(o) }

// Student is the aggregate root for a coached client.
type Student struct {
	ID         string
	OrgID      string
	Name       string
	Email      string
	Phone      string
	Status     Status
	OnboardOpt OnboardOpt
	TrainerID  string // owning trainer, optional
	DeletedAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewStudentParams contains parameters for creating a student.
type NewStudentParams struct {
	ID         string
	OrgID      string
	Name       string
	Email      string
	Phone      string
	Status     Status
	OnboardOpt OnboardOpt
	TrainerID  string
}

// NewStudent creates a validated Student entity.
func NewStudent(p NewStudentParams) (*Student, error) {
	name := strings.TrimSpace(p.Name)
	email := strings.ToLower(strings.TrimSpace(p.Email))

	if p.ID == "" {
		return nil, shared.NewDomainError("student", "New", shared.ErrInvalidID, "id is required")
	}
	if p.OrgID == "" {
		return nil, shared.NewDomainError("student", "New", shared.ErrValidation, "org id is required")
	}
	if name == "" {
		return nil, shared.NewDomainError("student", "New", shared.ErrValidation, "name is required")
	}
	if !isValidEmail(email) {
		return nil, shared.NewDomainError("student", "New", shared.ErrValidation, "invalid email")
	}

	status := p.Status
	if status == "" {
		status = StatusOnboarding
	}
	if !status.IsValid() {
		return nil, shared.NewDomainError("student", "New", shared.ErrValidation, "invalid status")
	}

	opt := p.OnboardOpt
	if opt == "" {
		opt = OnboardSkip
	}
	if !opt.IsValid() {
		return nil, shared.NewDomainError("student", "New", shared.ErrValidation, "invalid onboard option")
	}
	// "enviado" is an outcome of provisioning, never an input.
	if opt == OnboardDone {
		return nil, shared.NewDomainError("student", "New", shared.ErrValidation, "onboard option cannot start as enviado")
	}

	now := time.Now().UTC()
	return &Student{
		ID:         p.ID,
		OrgID:      p.OrgID,
		Name:       name,
		Email:      email,
		Phone:      normalizePhone(p.Phone),
		Status:     status,
		OnboardOpt: opt,
		TrainerID:  p.TrainerID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// WantsCard reports whether provisioning must create a pipeline card.
func (s *Student) WantsCard() bool {
	return s.OnboardOpt == OnboardRequested
}

// MarkOnboarded transitions OnboardOpt to "enviado". The transition is
// idempotent: marking an already onboarded student is a no-op.
func (s *Student) MarkOnboarded() error {
	if s.OnboardOpt == OnboardDone {
		return nil
	}
	s.OnboardOpt = OnboardDone
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// IsDeleted reports whether the student is soft-deleted.
func (s *Student) IsDeleted() bool { return s.DeletedAt != nil }

// isValidEmail performs the minimal structural check the store also
// enforces. Full RFC validation happens at the HTTP boundary.
func isValidEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return false
	}
	return !strings.ContainsAny(email, " \t\n")
}

// normalizePhone strips everything but digits, matching the reference
// system's storage format.
func normalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
