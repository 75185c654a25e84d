package postgres

import (
	"context"
	"fmt"

	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/shared"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/trainer"
)

// OrgRepository implements trainer.OrgRepository for PostgreSQL.
type OrgRepository struct {
	conn *Connection
}

// NewOrgRepository creates a new OrgRepository.
func NewOrgRepository(conn *Connection) *OrgRepository {
	return &OrgRepository{conn: conn}
}

// Create persists a new organization.
func (r *OrgRepository) Create(ctx context.Context, o *trainer.Org) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO orgs (id, name, plan, created_at)
		VALUES ($1, $2, $3, $4)
	`, o.ID, o.Name, string(o.Plan), o.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create org: %w", err)
	}
	return nil
}

// GetByID returns one organization.
func (r *OrgRepository) GetByID(ctx context.Context, id string) (*trainer.Org, error) {
	var o trainer.Org
	var plan string

	err := r.conn.QueryRow(ctx,
		"SELECT id, name, plan, created_at FROM orgs WHERE id = $1", id,
	).Scan(&o.ID, &o.Name, &plan, &o.CreatedAt)
	if IsNoRows(err) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan org: %w", err)
	}

	o.Plan = trainer.Plan(plan)
	return &o, nil
}

// ListIDs returns every organization ID. Used by background jobs that
// fan out per-org work.
func (r *OrgRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.conn.Query(ctx, "SELECT id FROM orgs ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to query org ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan org id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes an organization. Compensation only.
func (r *OrgRepository) Delete(ctx context.Context, id string) error {
	_, err := r.conn.Exec(ctx, "DELETE FROM orgs WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete org: %w", err)
	}
	return nil
}

// TrainerRepository implements trainer.Repository for PostgreSQL.
type TrainerRepository struct {
	conn *Connection
}

// NewTrainerRepository creates a new TrainerRepository.
func NewTrainerRepository(conn *Connection) *TrainerRepository {
	return &TrainerRepository{conn: conn}
}

// Create persists a new trainer account.
func (r *TrainerRepository) Create(ctx context.Context, t *trainer.Trainer) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO trainers (id, org_id, name, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.ID, t.OrgID, t.Name, t.Email, t.PasswordHash, t.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.WrapDomainError("trainer", "Create", shared.ErrEmailTaken,
				"email already registered", err)
		}
		return fmt.Errorf("failed to create trainer: %w", err)
	}
	return nil
}

// GetByEmail returns one trainer by login email.
func (r *TrainerRepository) GetByEmail(ctx context.Context, email string) (*trainer.Trainer, error) {
	var t trainer.Trainer
	err := r.conn.QueryRow(ctx, `
		SELECT id, org_id, name, email, password_hash, created_at
		FROM trainers WHERE email = $1
	`, email).Scan(&t.ID, &t.OrgID, &t.Name, &t.Email, &t.PasswordHash, &t.CreatedAt)
	if IsNoRows(err) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan trainer: %w", err)
	}
	return &t, nil
}

// Delete removes a trainer account. Compensation only.
func (r *TrainerRepository) Delete(ctx context.Context, id string) error {
	_, err := r.conn.Exec(ctx, "DELETE FROM trainers WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete trainer: %w", err)
	}
	return nil
}

// OrgLimiter gates new students by the organization's plan limit.
type OrgLimiter struct {
	orgs     *OrgRepository
	students *StudentRepository
}

// NewOrgLimiter creates an OrgLimiter.
func NewOrgLimiter(orgs *OrgRepository, students *StudentRepository) *OrgLimiter {
	return &OrgLimiter{orgs: orgs, students: students}
}

// CanAddStudent reports whether one more student fits the plan.
func (l *OrgLimiter) CanAddStudent(ctx context.Context, orgID string) (bool, error) {
	org, err := l.orgs.GetByID(ctx, orgID)
	if err != nil {
		return false, err
	}
	current, err := l.students.CountActive(ctx, orgID)
	if err != nil {
		return false, err
	}
	return org.WithinStudentLimit(current), nil
}
