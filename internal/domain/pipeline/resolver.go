package pipeline

import (
	"context"
	"errors"

	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/shared"
)

// StageResolver picks the stage a freshly provisioned card lands in.
type StageResolver struct {
	stages StageRepository
}

// NewStageResolver creates a StageResolver.
func NewStageResolver(stages StageRepository) *StageResolver {
	return &StageResolver{stages: stages}
}

// ResolveEntryStage returns the organization's entry stage: the fixed
// first column when present, otherwise the lowest-ordered stage.
// Returns shared.ErrNoStage when the organization has no stages
// configured, which is fatal for provisioning.
func (r *StageResolver) ResolveEntryStage(ctx context.Context, orgID string) (*Stage, error) {
	stage, err := r.stages.GetByPosition(ctx, orgID, EntryStagePosition)
	if err == nil {
		return stage, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	stage, err = r.stages.GetLowest(ctx, orgID)
	if err == nil {
		return stage, nil
	}
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.NewDomainError("pipeline", "ResolveEntryStage", shared.ErrNoStage, "organization has no stages")
	}
	return nil, err
}
