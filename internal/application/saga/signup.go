package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/pipeline"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/shared"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/trainer"
	"github.com/fitcoach-hub/fitcoach-client-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SIGNUP SAGA
// Flow: Validate → Create Org → Create Trainer → Seed Default Board →
//
//	Publish Event
//
// Compensation runs in reverse: a failed step deletes everything the
// earlier steps created.
// ══════════════════════════════════════════════════════════════════════════════

// SignupInput carries a new-organization registration payload.
type SignupInput struct {
	OrgName     string
	TrainerName string
	Email       string
	Password    string
}

// SignupResult is returned on success.
type SignupResult struct {
	Org         *trainer.Org
	Trainer     *trainer.Trainer
	Stages      []*pipeline.Stage
	CompletedAt time.Time
}

// defaultStageNames seeds a new organization's board, positions 1..5.
var defaultStageNames = []string{
	"Novo aluno",
	"Primeiro contato",
	"Avaliação",
	"Treinando",
	"Acompanhamento",
}

// SignupSaga registers a new organization with its first trainer
// account and a default pipeline board.
type SignupSaga struct {
	orgs     trainer.OrgRepository
	trainers trainer.Repository
	stages   pipeline.StageRepository
	eventBus shared.EventPublisher
	idGen    IDGenerator
	log      *logger.Logger
}

// NewSignupSaga creates a SignupSaga with all dependencies.
func NewSignupSaga(
	orgs trainer.OrgRepository,
	trainers trainer.Repository,
	stages pipeline.StageRepository,
	eventBus shared.EventPublisher,
	idGen IDGenerator,
	log *logger.Logger,
) *SignupSaga {
	return &SignupSaga{
		orgs:     orgs,
		trainers: trainers,
		stages:   stages,
		eventBus: eventBus,
		idGen:    idGen,
		log:      log.With(logger.Component("signup_saga")),
	}
}

// Execute runs the signup flow.
func (s *SignupSaga) Execute(ctx context.Context, input SignupInput) (*SignupResult, error) {
	org, err := trainer.NewOrg(s.idGen.GenerateID(), input.OrgName)
	if err != nil {
		return nil, err
	}
	acct, err := trainer.NewTrainer(s.idGen.GenerateID(), org.ID, input.TrainerName, input.Email, input.Password)
	if err != nil {
		return nil, err
	}

	if err := s.orgs.Create(ctx, org); err != nil {
		return nil, fmt.Errorf("creating organization: %w", err)
	}

	if err := s.trainers.Create(ctx, acct); err != nil {
		s.compensate(ctx, org, nil)
		if errors.Is(err, shared.ErrEmailTaken) || errors.Is(err, shared.ErrConflict) {
			return nil, shared.WrapDomainError("saga", "Signup", shared.ErrEmailTaken, "email already registered", err)
		}
		return nil, fmt.Errorf("creating trainer: %w", err)
	}

	stages := s.defaultBoard(org.ID)
	if err := s.stages.CreateMany(ctx, stages); err != nil {
		s.compensate(ctx, org, acct)
		return nil, fmt.Errorf("seeding default board: %w", err)
	}

	if err := s.eventBus.Publish(shared.NewOrgSignedUpEvent(org.ID, acct.ID, acct.Email)); err != nil {
		s.log.Warn("signup event publish failed", logger.Err(err))
	}

	return &SignupResult{
		Org:         org,
		Trainer:     acct,
		Stages:      stages,
		CompletedAt: time.Now().UTC(),
	}, nil
}

// defaultBoard builds the five seed stages, positions 1..5.
func (s *SignupSaga) defaultBoard(orgID string) []*pipeline.Stage {
	stages := make([]*pipeline.Stage, 0, len(defaultStageNames))
	for i, name := range defaultStageNames {
		stages = append(stages, &pipeline.Stage{
			ID:       s.idGen.GenerateID(),
			OrgID:    orgID,
			Name:     name,
			Position: i + 1,
		})
	}
	return stages
}

// compensate removes, in reverse creation order, whatever this run
// persisted before the failure. Best effort.
func (s *SignupSaga) compensate(ctx context.Context, org *trainer.Org, acct *trainer.Trainer) {
	if acct != nil {
		if err := s.trainers.Delete(ctx, acct.ID); err != nil {
			s.log.Error("compensating trainer delete failed", logger.Err(err))
		}
	}
	if err := s.orgs.Delete(ctx, org.ID); err != nil {
		s.log.Error("compensating org delete failed", logger.OrgID(org.ID), logger.Err(err))
	}
}
