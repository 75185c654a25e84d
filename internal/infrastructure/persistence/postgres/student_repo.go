package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/shared"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/student"

	"github.com/jackc/pgx/v5"
)

// StudentRepository implements student.Repository for PostgreSQL.
type StudentRepository struct {
	conn *Connection
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(conn *Connection) *StudentRepository {
	return &StudentRepository{conn: conn}
}

const studentColumns = `id, org_id, name, email, phone, status, onboard_opt,
	   COALESCE(trainer_id, ''), deleted_at, created_at, updated_at`

// Create creates a new student.
func (r *StudentRepository) Create(ctx context.Context, s *student.Student) error {
	query := `
		INSERT INTO students (
			id, org_id, name, email, phone, status, onboard_opt,
			trainer_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)
	`

	_, err := r.conn.Exec(ctx, query,
		s.ID,
		s.OrgID,
		s.Name,
		s.Email,
		s.Phone,
		string(s.Status),
		string(s.OnboardOpt),
		s.TrainerID,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.WrapDomainError("student", "Create", shared.ErrEmailTaken,
				"email already registered in organization", err)
		}
		return fmt.Errorf("failed to create student: %w", err)
	}
	return nil
}

// GetByID returns a student by ID within an organization.
func (r *StudentRepository) GetByID(ctx context.Context, orgID, id string) (*student.Student, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM students
		WHERE org_id = $1 AND id = $2 AND deleted_at IS NULL
	`, studentColumns)

	row := r.conn.QueryRow(ctx, query, orgID, id)
	return scanStudent(row)
}

// List returns non-deleted students matching the filter, newest first.
func (r *StudentRepository) List(ctx context.Context, orgID string, f student.ListFilter) ([]*student.Student, int, error) {
	conditions := []string{"org_id = $1", "deleted_at IS NULL"}
	args := []interface{}{orgID}

	if f.Status != "" {
		args = append(args, string(f.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+strings.ToLower(f.Search)+"%")
		conditions = append(conditions, fmt.Sprintf(
			"(LOWER(name) LIKE $%[1]d OR LOWER(email) LIKE $%[1]d OR phone LIKE $%[1]d)", len(args)))
	}

	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM students WHERE " + where
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count students: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	query := fmt.Sprintf(`
		SELECT %s FROM students
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, studentColumns, where, len(args)-1, len(args))

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query students: %w", err)
	}
	defer rows.Close()

	var students []*student.Student
	for rows.Next() {
		s, err := scanStudentFromRows(rows)
		if err != nil {
			return nil, 0, err
		}
		students = append(students, s)
	}
	return students, total, rows.Err()
}

// UpdateOnboardOpt sets the onboarding option for a student.
func (r *StudentRepository) UpdateOnboardOpt(ctx context.Context, orgID, id string, opt student.OnboardOpt) error {
	query := `
		UPDATE students SET onboard_opt = $1, updated_at = $2
		WHERE org_id = $3 AND id = $4 AND deleted_at IS NULL
	`

	result, err := r.conn.Exec(ctx, query, string(opt), time.Now().UTC(), orgID, id)
	if err != nil {
		return fmt.Errorf("failed to update onboard option: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes the student row. Compensation only; regular deletion
// is a soft delete handled elsewhere.
func (r *StudentRepository) Delete(ctx context.Context, orgID, id string) error {
	result, err := r.conn.Exec(ctx,
		"DELETE FROM students WHERE org_id = $1 AND id = $2", orgID, id)
	if err != nil {
		return fmt.Errorf("failed to delete student: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CountActive returns the number of non-deleted students in an
// organization. Backs the plan-limit check.
func (r *StudentRepository) CountActive(ctx context.Context, orgID string) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx,
		"SELECT COUNT(*) FROM students WHERE org_id = $1 AND deleted_at IS NULL",
		orgID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count students: %w", err)
	}
	return count, nil
}

func scanStudent(row pgx.Row) (*student.Student, error) {
	var s student.Student
	var status, opt string

	err := row.Scan(
		&s.ID,
		&s.OrgID,
		&s.Name,
		&s.Email,
		&s.Phone,
		&status,
		&opt,
		&s.TrainerID,
		&s.DeletedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if IsNoRows(err) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan student: %w", err)
	}

	s.Status = student.Status(status)
	s.OnboardOpt = student.OnboardOpt(opt)
	return &s, nil
}

func scanStudentFromRows(rows pgx.Rows) (*student.Student, error) {
	return scanStudent(rows)
}
