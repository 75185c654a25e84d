package postgrest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/pipeline"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/shared"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/student"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/task"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/trainer"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements student.Repository over the store API.
type StudentRepository struct {
	client *Client
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(client *Client) *StudentRepository {
	return &StudentRepository{client: client}
}

// Create persists a new student.
func (r *StudentRepository) Create(ctx context.Context, s *student.Student) error {
	err := r.client.Insert(ctx, "students", studentRowFrom(s), nil)
	if err != nil {
		if errors.Is(err, shared.ErrConflict) {
			return shared.WrapDomainError("student", "Create", shared.ErrEmailTaken,
				"email already registered in organization", err)
		}
		return fmt.Errorf("failed to create student: %w", err)
	}
	return nil
}

// GetByID returns a student by ID within an organization.
func (r *StudentRepository) GetByID(ctx context.Context, orgID, id string) (*student.Student, error) {
	q := NewQuery().Eq("org_id", orgID).Eq("id", id).IsNull("deleted_at").Limit(1)

	var rows []studentRow
	if err := r.client.Select(ctx, "students", q, &rows); err != nil {
		return nil, fmt.Errorf("failed to query student: %w", err)
	}
	if len(rows) == 0 {
		return nil, shared.ErrNotFound
	}
	return rows[0].toDomain(), nil
}

// List returns non-deleted students matching the filter, newest first.
func (r *StudentRepository) List(ctx context.Context, orgID string, f student.ListFilter) ([]*student.Student, int, error) {
	q := NewQuery().Eq("org_id", orgID).IsNull("deleted_at").OrderBy("created_at", true)

	if f.Status != "" {
		q = q.Eq("status", string(f.Status))
	}
	if f.Search != "" {
		pattern := "*" + f.Search + "*"
		q = q.Or(
			"name.ilike."+pattern,
			"email.ilike."+pattern,
			"phone.ilike."+pattern,
		)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	q = q.Limit(limit).Offset(f.Offset)

	var rows []studentRow
	total, err := r.client.SelectWithCount(ctx, "students", q, &rows)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query students: %w", err)
	}

	students := make([]*student.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, row.toDomain())
	}
	return students, total, nil
}

// UpdateOnboardOpt sets the onboarding option for a student.
func (r *StudentRepository) UpdateOnboardOpt(ctx context.Context, orgID, id string, opt student.OnboardOpt) error {
	q := NewQuery().Eq("org_id", orgID).Eq("id", id).IsNull("deleted_at")
	body := map[string]interface{}{
		"onboard_opt": string(opt),
		"updated_at":  time.Now().UTC(),
	}

	var updated []studentRow
	if err := r.client.Update(ctx, "students", q, body, &updated); err != nil {
		return fmt.Errorf("failed to update onboard option: %w", err)
	}
	if len(updated) == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CountActive returns the number of non-deleted students in an
// organization. Backs the plan-limit check.
func (r *StudentRepository) CountActive(ctx context.Context, orgID string) (int, error) {
	q := NewQuery().SelectColumns("id").Eq("org_id", orgID).IsNull("deleted_at").Limit(1)

	var rows []struct {
		ID string `json:"id"`
	}
	total, err := r.client.SelectWithCount(ctx, "students", q, &rows)
	if err != nil {
		return 0, fmt.Errorf("failed to count students: %w", err)
	}
	return total, nil
}

// Delete removes the student row. Compensation only.
func (r *StudentRepository) Delete(ctx context.Context, orgID, id string) error {
	q := NewQuery().Eq("org_id", orgID).Eq("id", id)
	if err := r.client.Delete(ctx, "students", q); err != nil {
		return fmt.Errorf("failed to delete student: %w", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PIPELINE REPOSITORIES
// ══════════════════════════════════════════════════════════════════════════════

// StageRepository implements pipeline.StageRepository over the store API.
type StageRepository struct {
	client *Client
}

// NewStageRepository creates a new StageRepository.
func NewStageRepository(client *Client) *StageRepository {
	return &StageRepository{client: client}
}

// GetByPosition returns the stage at an exact position.
func (r *StageRepository) GetByPosition(ctx context.Context, orgID string, position int) (*pipeline.Stage, error) {
	q := NewQuery().Eq("org_id", orgID).Eq("position", position).Limit(1)
	return r.selectOne(ctx, q)
}

// GetLowest returns the stage with the smallest position.
func (r *StageRepository) GetLowest(ctx context.Context, orgID string) (*pipeline.Stage, error) {
	q := NewQuery().Eq("org_id", orgID).OrderBy("position", false).Limit(1)
	return r.selectOne(ctx, q)
}

// CreateMany inserts a batch of stages.
func (r *StageRepository) CreateMany(ctx context.Context, stages []*pipeline.Stage) error {
	rows := make([]stageRow, 0, len(stages))
	for _, s := range stages {
		rows = append(rows, stageRowFrom(s))
	}
	if err := r.client.Insert(ctx, "kanban_stages", rows, nil); err != nil {
		return fmt.Errorf("failed to insert stages: %w", err)
	}
	return nil
}

func (r *StageRepository) selectOne(ctx context.Context, q Query) (*pipeline.Stage, error) {
	var rows []stageRow
	if err := r.client.Select(ctx, "kanban_stages", q, &rows); err != nil {
		return nil, fmt.Errorf("failed to query stages: %w", err)
	}
	if len(rows) == 0 {
		return nil, shared.ErrNotFound
	}
	return rows[0].toDomain(), nil
}

// CardRepository implements pipeline.CardRepository over the store API.
type CardRepository struct {
	client *Client
}

// NewCardRepository creates a new CardRepository.
func NewCardRepository(client *Client) *CardRepository {
	return &CardRepository{client: client}
}

// ExistsForStudent reports whether a card exists for (org, student).
func (r *CardRepository) ExistsForStudent(ctx context.Context, orgID, studentID string) (bool, error) {
	q := NewQuery().SelectColumns("id").Eq("org_id", orgID).Eq("student_id", studentID).Limit(1)

	var rows []struct {
		ID string `json:"id"`
	}
	if err := r.client.Select(ctx, "kanban_cards", q, &rows); err != nil {
		return false, fmt.Errorf("failed to check card existence: %w", err)
	}
	return len(rows) > 0, nil
}

// MaxPositionInStage returns the highest card position in a stage and
// whether the stage holds any cards.
func (r *CardRepository) MaxPositionInStage(ctx context.Context, orgID, stageID string) (int, bool, error) {
	q := NewQuery().SelectColumns("position").
		Eq("org_id", orgID).Eq("stage_id", stageID).
		OrderBy("position", true).Limit(1)

	var rows []struct {
		Position int `json:"position"`
	}
	if err := r.client.Select(ctx, "kanban_cards", q, &rows); err != nil {
		return 0, false, fmt.Errorf("failed to query max card position: %w", err)
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return rows[0].Position, true, nil
}

// Create persists a new card. Store errors arrive already structured
// from the client: conflicts as shared.ErrConflict, schema-cache misses
// as shared.ErrUnknownColumn with the offending column attached.
func (r *CardRepository) Create(ctx context.Context, c *pipeline.Card, omit ...string) error {
	return r.client.Insert(ctx, "kanban_cards", cardBody(c, omit...), nil)
}

// DeleteByStudent removes the student's card.
func (r *CardRepository) DeleteByStudent(ctx context.Context, orgID, studentID string) error {
	q := NewQuery().Eq("org_id", orgID).Eq("student_id", studentID)
	if err := r.client.Delete(ctx, "kanban_cards", q); err != nil {
		return fmt.Errorf("failed to delete card: %w", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TASK REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// TaskRepository implements task.Repository over the store API.
type TaskRepository struct {
	client *Client
}

// NewTaskRepository creates a new TaskRepository.
func NewTaskRepository(client *Client) *TaskRepository {
	return &TaskRepository{client: client}
}

// GetByID returns one task.
func (r *TaskRepository) GetByID(ctx context.Context, orgID, id string) (*task.Task, error) {
	q := NewQuery().Eq("org_id", orgID).Eq("id", id).Limit(1)

	var rows []taskRow
	if err := r.client.Select(ctx, "relationship_tasks", q, &rows); err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}
	if len(rows) == 0 {
		return nil, shared.ErrNotFound
	}
	return rows[0].toDomain(), nil
}

// Find returns tasks matching the predicate, newest scheduled first,
// with the total match count for pagination.
func (r *TaskRepository) Find(ctx context.Context, p task.Predicate, page task.Page) ([]*task.Task, int, error) {
	q := taskQuery(p).OrderBy("scheduled_for", true)

	limit := page.Limit
	if limit <= 0 {
		limit = 20
	}
	q = q.Limit(limit).Offset(page.Offset)

	var rows []taskRow
	total, err := r.client.SelectWithCount(ctx, "relationship_tasks", q, &rows)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query tasks: %w", err)
	}
	return tasksToDomain(rows), total, nil
}

// FindAll returns every task for the organization.
func (r *TaskRepository) FindAll(ctx context.Context, orgID string) ([]*task.Task, error) {
	q := NewQuery().Eq("org_id", orgID)

	var rows []taskRow
	if err := r.client.Select(ctx, "relationship_tasks", q, &rows); err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	return tasksToDomain(rows), nil
}

// Update persists a task's mutable fields.
func (r *TaskRepository) Update(ctx context.Context, t *task.Task) error {
	q := NewQuery().Eq("org_id", t.OrgID).Eq("id", t.ID)
	body := map[string]interface{}{
		"status":        string(t.Status),
		"scheduled_for": t.ScheduledFor,
		"sent_at":       t.SentAt,
		"updated_at":    t.UpdatedAt,
	}

	var updated []taskRow
	if err := r.client.Update(ctx, "relationship_tasks", q, body, &updated); err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if len(updated) == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ORG / TRAINER REPOSITORIES
// ══════════════════════════════════════════════════════════════════════════════

// OrgRepository implements trainer.OrgRepository over the store API.
type OrgRepository struct {
	client *Client
}

// NewOrgRepository creates a new OrgRepository.
func NewOrgRepository(client *Client) *OrgRepository {
	return &OrgRepository{client: client}
}

// Create persists a new organization.
func (r *OrgRepository) Create(ctx context.Context, o *trainer.Org) error {
	if err := r.client.Insert(ctx, "orgs", orgRowFrom(o), nil); err != nil {
		return fmt.Errorf("failed to create org: %w", err)
	}
	return nil
}

// GetByID returns one organization.
func (r *OrgRepository) GetByID(ctx context.Context, id string) (*trainer.Org, error) {
	q := NewQuery().Eq("id", id).Limit(1)

	var rows []orgRow
	if err := r.client.Select(ctx, "orgs", q, &rows); err != nil {
		return nil, fmt.Errorf("failed to query org: %w", err)
	}
	if len(rows) == 0 {
		return nil, shared.ErrNotFound
	}
	return rows[0].toDomain(), nil
}

// ListIDs returns every organization ID. Used by background jobs that
// fan out per-org work.
func (r *OrgRepository) ListIDs(ctx context.Context) ([]string, error) {
	q := NewQuery().SelectColumns("id").OrderBy("created_at", false)

	var rows []struct {
		ID string `json:"id"`
	}
	if err := r.client.Select(ctx, "orgs", q, &rows); err != nil {
		return nil, fmt.Errorf("failed to query org ids: %w", err)
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}

// Delete removes an organization. Compensation only.
func (r *OrgRepository) Delete(ctx context.Context, id string) error {
	q := NewQuery().Eq("id", id)
	if err := r.client.Delete(ctx, "orgs", q); err != nil {
		return fmt.Errorf("failed to delete org: %w", err)
	}
	return nil
}

// TrainerRepository implements trainer.Repository over the store API.
type TrainerRepository struct {
	client *Client
}

// NewTrainerRepository creates a new TrainerRepository.
func NewTrainerRepository(client *Client) *TrainerRepository {
	return &TrainerRepository{client: client}
}

// Create persists a new trainer account. A unique-email violation maps
// onto shared.ErrEmailTaken.
func (r *TrainerRepository) Create(ctx context.Context, t *trainer.Trainer) error {
	err := r.client.Insert(ctx, "trainers", trainerRowFrom(t), nil)
	if err != nil {
		if errors.Is(err, shared.ErrConflict) {
			return shared.WrapDomainError("trainer", "Create", shared.ErrEmailTaken,
				"email already registered", err)
		}
		return fmt.Errorf("failed to create trainer: %w", err)
	}
	return nil
}

// GetByEmail returns one trainer by login email.
func (r *TrainerRepository) GetByEmail(ctx context.Context, email string) (*trainer.Trainer, error) {
	q := NewQuery().Eq("email", email).Limit(1)

	var rows []trainerRow
	if err := r.client.Select(ctx, "trainers", q, &rows); err != nil {
		return nil, fmt.Errorf("failed to query trainer: %w", err)
	}
	if len(rows) == 0 {
		return nil, shared.ErrNotFound
	}
	return rows[0].toDomain(), nil
}

// Delete removes a trainer account. Compensation only.
func (r *TrainerRepository) Delete(ctx context.Context, id string) error {
	q := NewQuery().Eq("id", id)
	if err := r.client.Delete(ctx, "trainers", q); err != nil {
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

// taskQuery translates a predicate into store filter parameters.
// Statuses are ORed inside one "in" filter, everything else is ANDed.
func taskQuery(p task.Predicate) Query {
	q := NewQuery().Eq("org_id", p.OrgID)

	if len(p.Statuses) > 0 {
		values := make([]string, 0, len(p.Statuses))
		for _, s := range p.Statuses {
			values = append(values, string(s))
		}
		q = q.In("status", values...)
	}
	if !p.ScheduledFrom.IsZero() {
		q = q.Gte("scheduled_for", p.ScheduledFrom)
	}
	if !p.ScheduledTo.IsZero() {
		q = q.Lte("scheduled_for", p.ScheduledTo)
	}
	if p.Anchor != "" {
		q = q.Eq("anchor", p.Anchor)
	}
	if p.TemplateCode != "" {
		q = q.Eq("template_code", p.TemplateCode)
	}
	if p.Channel != "" {
		q = q.Eq("channel", string(p.Channel))
	}
	if p.Text != "" {
		pattern := "*" + p.Text + "*"
		q = q.Or("student_name.ilike."+pattern, "payload.ilike."+pattern)
	}
	if !p.CreatedFrom.IsZero() {
		q = q.Gte("created_at", p.CreatedFrom)
	}
	if !p.CreatedTo.IsZero() {
		q = q.Lte("created_at", p.CreatedTo)
	}
	return q
}
