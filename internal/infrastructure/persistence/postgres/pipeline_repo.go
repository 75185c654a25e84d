package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/pipeline"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/shared"

	"github.com/jackc/pgx/v5"
)

// StageRepository implements pipeline.StageRepository for PostgreSQL.
type StageRepository struct {
	conn *Connection
}

// NewStageRepository creates a new StageRepository.
func NewStageRepository(conn *Connection) *StageRepository {
	return &StageRepository{conn: conn}
}

// GetByPosition returns the stage at an exact position.
func (r *StageRepository) GetByPosition(ctx context.Context, orgID string, position int) (*pipeline.Stage, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT id, org_id, name, position, color FROM kanban_stages
		WHERE org_id = $1 AND position = $2
	`, orgID, position)
	return scanStage(row)
}

// GetLowest returns the stage with the smallest position.
func (r *StageRepository) GetLowest(ctx context.Context, orgID string) (*pipeline.Stage, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT id, org_id, name, position, color FROM kanban_stages
		WHERE org_id = $1
		ORDER BY position ASC
		LIMIT 1
	`, orgID)
	return scanStage(row)
}

// CreateMany inserts a batch of stages in one transaction.
func (r *StageRepository) CreateMany(ctx context.Context, stages []*pipeline.Stage) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		for _, s := range stages {
			_, err := tx.Exec(ctx, `
				INSERT INTO kanban_stages (id, org_id, name, position, color)
				VALUES ($1, $2, $3, $4, $5)
			`, s.ID, s.OrgID, s.Name, s.Position, s.Color)
			if err != nil {
				return fmt.Errorf("failed to insert stage %q: %w", s.Name, err)
			}
		}
		return nil
	})
}

func scanStage(row pgx.Row) (*pipeline.Stage, error) {
	var s pipeline.Stage
	err := row.Scan(&s.ID, &s.OrgID, &s.Name, &s.Position, &s.Color)
	if IsNoRows(err) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan stage: %w", err)
	}
	return &s, nil
}

// CardRepository implements pipeline.CardRepository for PostgreSQL.
type CardRepository struct {
	conn *Connection
}

// NewCardRepository creates a new CardRepository.
func NewCardRepository(conn *Connection) *CardRepository {
	return &CardRepository{conn: conn}
}

// ExistsForStudent reports whether a card exists for (org, student).
func (r *CardRepository) ExistsForStudent(ctx context.Context, orgID, studentID string) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM kanban_cards WHERE org_id = $1 AND student_id = $2)",
		orgID, studentID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check card existence: %w", err)
	}
	return exists, nil
}

// MaxPositionInStage returns the highest card position in a stage and
// whether the stage holds any cards.
func (r *CardRepository) MaxPositionInStage(ctx context.Context, orgID, stageID string) (int, bool, error) {
	var max *int
	err := r.conn.QueryRow(ctx,
		"SELECT MAX(position) FROM kanban_cards WHERE org_id = $1 AND stage_id = $2",
		orgID, stageID,
	).Scan(&max)
	if err != nil {
		return 0, false, fmt.Errorf("failed to query max card position: %w", err)
	}
	if max == nil {
		return 0, false, nil
	}
	return *max, true, nil
}

// cardInsertColumns are the card columns in insert order; optional ones
// can be omitted on schema-drift retry.
var cardInsertColumns = []string{"id", "org_id", "student_id", "stage_id", "position", "created_at"}

// Create persists a new card. A unique violation on (org_id,
// student_id) maps onto shared.ErrConflict, an undefined column onto
// shared.ErrUnknownColumn so the caller can retry without it.
func (r *CardRepository) Create(ctx context.Context, c *pipeline.Card, omit ...string) error {
	skip := make(map[string]bool, len(omit))
	for _, col := range omit {
		skip[col] = true
	}

	values := map[string]interface{}{
		"id":         c.ID,
		"org_id":     c.OrgID,
		"student_id": c.StudentID,
		"stage_id":   c.StageID,
		"position":   c.Position,
		"created_at": c.CreatedAt,
	}

	var cols []string
	var args []interface{}
	var placeholders []string
	for _, col := range cardInsertColumns {
		if skip[col] {
			continue
		}
		cols = append(cols, col)
		args = append(args, values[col])
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	query := fmt.Sprintf("INSERT INTO kanban_cards (%s) VALUES (%s)",
		strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	_, err := r.conn.Exec(ctx, query, args...)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ConflictError(0, err.Error())
		}
		if IsUndefinedColumn(err) {
			return shared.UnknownColumnError(0, UndefinedColumnName(err), err.Error())
		}
		return &shared.StoreError{Kind: shared.ErrStoreFailure, Body: err.Error()}
	}
	return nil
}

// DeleteByStudent removes the student's card.
func (r *CardRepository) DeleteByStudent(ctx context.Context, orgID, studentID string) error {
	_, err := r.conn.Exec(ctx,
		"DELETE FROM kanban_cards WHERE org_id = $1 AND student_id = $2",
		orgID, studentID)
	if err != nil {
		return fmt.Errorf("failed to delete card: %w", err)
	}
	return nil
}
