// Package pipeline contains the onboarding pipeline domain model:
// ordered stages and the cards that move through them. One card tracks
// one student; the store enforces at most one non-deleted card per
// (org, student) with a unique constraint.
package pipeline

import (
	"time"

	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/shared"
)

// EntryStagePosition is the fixed position of the pipeline's first
// column. Provisioning prefers this stage and falls back to the
// lowest-ordered one when an organization has renumbered its columns.
const EntryStagePosition = 1

// Stage is an ordered pipeline column. Stages are read-only for
// provisioning; they are managed by the board configuration screens.
type Stage struct {
	ID       string
	OrgID    string
	Name     string
	Position int
	Color    string
}

// Card is a workflow item linking one student to one stage. Position
// orders cards within a stage, starting at 0.
type Card struct {
	ID        string
	OrgID     string
	StudentID string
	StageID   string
	Position  int
	CreatedAt time.Time
}

// NewCard creates a validated Card.
func NewCard(id, orgID, studentID, stageID string, position int) (*Card, error) {
	if id == "" {
		return nil, shared.NewDomainError("pipeline", "NewCard", shared.ErrInvalidID, "id is required")
	}
	if orgID == "" || studentID == "" || stageID == "" {
		return nil, shared.NewDomainError("pipeline", "NewCard", shared.ErrValidation, "org, student and stage are required")
	}
	if position < 0 {
		return nil, shared.NewDomainError("pipeline", "NewCard", shared.ErrValidation, "position cannot be negative")
	}
	return &Card{
		ID:        id,
		OrgID:     orgID,
		StudentID: studentID,
		StageID:   stageID,
		Position:  position,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// NextPosition computes the insertion position after the current
// highest position in a stage. An empty stage starts at 0.
func NextPosition(maxPosition int, stageEmpty bool) int {
	if stageEmpty {
		return 0
	}
	return maxPosition + 1
}
