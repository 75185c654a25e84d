package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/shared"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/task"

	"github.com/jackc/pgx/v5"
)

// TaskRepository implements task.Repository for PostgreSQL.
type TaskRepository struct {
	conn *Connection
}

// NewTaskRepository creates a new TaskRepository.
func NewTaskRepository(conn *Connection) *TaskRepository {
	return &TaskRepository{conn: conn}
}

const taskColumns = `id, org_id, student_id, student_name, template_code, anchor,
	   channel, status, scheduled_for, payload, sent_at, created_at, updated_at`

// GetByID returns one task.
func (r *TaskRepository) GetByID(ctx context.Context, orgID, id string) (*task.Task, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM relationship_tasks
		WHERE org_id = $1 AND id = $2
	`, taskColumns)

	row := r.conn.QueryRow(ctx, query, orgID, id)
	return scanTask(row)
}

// Find returns tasks matching the predicate, newest scheduled first,
// with the total match count for pagination.
func (r *TaskRepository) Find(ctx context.Context, p task.Predicate, page task.Page) ([]*task.Task, int, error) {
	where, args := buildTaskWhere(p)

	var total int
	countQuery := "SELECT COUNT(*) FROM relationship_tasks WHERE " + where
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tasks: %w", err)
	}

	limit := page.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, page.Offset)
	query := fmt.Sprintf(`
		SELECT %s FROM relationship_tasks
		WHERE %s
		ORDER BY scheduled_for DESC
		LIMIT $%d OFFSET $%d
	`, taskColumns, where, len(args)-1, len(args))

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// FindAll returns every task for the organization.
func (r *TaskRepository) FindAll(ctx context.Context, orgID string) ([]*task.Task, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM relationship_tasks
		WHERE org_id = $1
	`, taskColumns)

	rows, err := r.conn.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// Update persists a task's mutable fields.
func (r *TaskRepository) Update(ctx context.Context, t *task.Task) error {
	query := `
		UPDATE relationship_tasks SET
			status = $1,
			scheduled_for = $2,
			sent_at = $3,
			updated_at = $4
		WHERE org_id = $5 AND id = $6
	`

	result, err := r.conn.Exec(ctx, query,
		string(t.Status),
		t.ScheduledFor,
		t.SentAt,
		t.UpdatedAt,
		t.OrgID,
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// buildTaskWhere translates a predicate into SQL conditions. Statuses
// are ORed inside one IN clause, everything else is ANDed.
func buildTaskWhere(p task.Predicate) (string, []interface{}) {
	conditions := []string{"org_id = $1"}
	args := []interface{}{p.OrgID}

	if len(p.Statuses) > 0 {
		placeholders := make([]string, 0, len(p.Statuses))
		for _, s := range p.Statuses {
			args = append(args, string(s))
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}
	if !p.ScheduledFrom.IsZero() {
		args = append(args, p.ScheduledFrom)
		conditions = append(conditions, fmt.Sprintf("scheduled_for >= $%d", len(args)))
	}
	if !p.ScheduledTo.IsZero() {
		args = append(args, p.ScheduledTo)
		conditions = append(conditions, fmt.Sprintf("scheduled_for <= $%d", len(args)))
	}
	if p.Anchor != "" {
		args = append(args, p.Anchor)
		conditions = append(conditions, fmt.Sprintf("anchor = $%d", len(args)))
	}
	if p.TemplateCode != "" {
		args = append(args, p.TemplateCode)
		conditions = append(conditions, fmt.Sprintf("template_code = $%d", len(args)))
	}
	if p.Channel != "" {
		args = append(args, string(p.Channel))
		conditions = append(conditions, fmt.Sprintf("channel = $%d", len(args)))
	}
	if p.Text != "" {
		args = append(args, "%"+strings.ToLower(p.Text)+"%")
		conditions = append(conditions, fmt.Sprintf(
			"(LOWER(student_name) LIKE $%[1]d OR LOWER(payload) LIKE $%[1]d)", len(args)))
	}
	if !p.CreatedFrom.IsZero() {
		args = append(args, p.CreatedFrom)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !p.CreatedTo.IsZero() {
		args = append(args, p.CreatedTo)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	return strings.Join(conditions, " AND "), args
}

func scanTask(row pgx.Row) (*task.Task, error) {
	var t task.Task
	var channel, status string

	err := row.Scan(
		&t.ID,
		&t.OrgID,
		&t.StudentID,
		&t.StudentName,
		&t.TemplateCode,
		&t.Anchor,
		&channel,
		&status,
		&t.ScheduledFor,
		&t.Payload,
		&t.SentAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if IsNoRows(err) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	t.Channel = task.Channel(channel)
	t.Status = task.Status(status)
	return &t, nil
}

func scanTasks(rows pgx.Rows) ([]*task.Task, error) {
	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
