// Package saga contains multi-step business processes that coordinate
// several domain operations and compensate on partial failure.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/pipeline"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/shared"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/student"
	"github.com/fitcoach-hub/fitcoach-client-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROVISIONING SAGA
// Flow: Validate → Create Student → (opt) Guard → Resolve Stage →
//
//	Insert Card → Mark Onboarded → Publish Event
//
// Compensation: delete the student when card provisioning fails for any
// reason other than "card already exists".
// ══════════════════════════════════════════════════════════════════════════════

// ProvisioningInput carries a validated student-creation payload.
type ProvisioningInput struct {
	OrgID     string
	TrainerID string
	Name      string
	Email     string
	Phone     string

	// StudentID is an optional client-supplied idempotency key. When a
	// student with this ID already exists, provisioning re-enters for it
	// instead of creating a duplicate (client retry after a timeout).
	StudentID string

	OnboardOpt student.OnboardOpt
}

// Validate checks the input before any write happens.
func (i ProvisioningInput) Validate() error {
	if i.OrgID == "" {
		return shared.NewDomainError("saga", "Provision", shared.ErrValidation, "org id is required")
	}
	if i.Name == "" {
		return shared.NewDomainError("saga", "Provision", shared.ErrValidation, "name is required")
	}
	if i.Email == "" {
		return shared.NewDomainError("saga", "Provision", shared.ErrValidation, "email is required")
	}
	return nil
}

// ProvisioningResult is returned on success.
type ProvisioningResult struct {
	Student *student.Student

	// Card is nil when onboarding was not requested or a card already
	// existed from an earlier attempt.
	Card *pipeline.Card

	// AlreadyProvisioned reports that the idempotency guard (or a
	// concurrent insert) found an existing card.
	AlreadyProvisioned bool

	CompletedAt time.Time
}

// ProvisioningStep identifies a step of the saga for error reporting.
type ProvisioningStep string

const (
	StepValidateInput  ProvisioningStep = "validate_input"
	StepCreateStudent  ProvisioningStep = "create_student"
	StepGuardExisting  ProvisioningStep = "guard_existing_card"
	StepResolveStage   ProvisioningStep = "resolve_stage"
	StepInsertCard     ProvisioningStep = "insert_card"
	StepMarkOnboarded  ProvisioningStep = "mark_onboarded"
	StepPublishEvent   ProvisioningStep = "publish_event"
	StepComplete       ProvisioningStep = "complete"
)

// provisioningState tracks saga progress for compensation and error
// context.
type provisioningState struct {
	currentStep    ProvisioningStep
	input          ProvisioningInput
	student        *student.Student
	createdStudent bool // compensation only deletes what this run created
	stage          *pipeline.Stage
	card           *pipeline.Card
	cardExisted    bool
	startedAt      time.Time
	failedStep     ProvisioningStep
}

// IDGenerator generates unique identifiers for new aggregates.
type IDGenerator interface {
	GenerateID() string
}

// OrgLimiter reports whether an organization may add one more student.
// Implemented by the trainer repository stack; the free plan caps
// active students.
type OrgLimiter interface {
	CanAddStudent(ctx context.Context, orgID string) (bool, error)
}

// ProvisioningSaga creates a student and, when onboarding is requested,
// exactly one pipeline card for it. Concurrency control is optimistic:
// the store's unique constraint on (org, student) for cards is the only
// lock, and a conflict on insert counts as success.
type ProvisioningSaga struct {
	students student.Repository
	cards    pipeline.CardRepository
	resolver *pipeline.StageResolver
	limiter  OrgLimiter
	eventBus shared.EventPublisher
	idGen    IDGenerator
	log      *logger.Logger
}

// NewProvisioningSaga creates a ProvisioningSaga with all dependencies.
func NewProvisioningSaga(
	students student.Repository,
	cards pipeline.CardRepository,
	resolver *pipeline.StageResolver,
	limiter OrgLimiter,
	eventBus shared.EventPublisher,
	idGen IDGenerator,
	log *logger.Logger,
) *ProvisioningSaga {
	return &ProvisioningSaga{
		students: students,
		cards:    cards,
		resolver: resolver,
		limiter:  limiter,
		eventBus: eventBus,
		idGen:    idGen,
		log:      log.With(logger.Component("provisioning_saga")),
	}
}

// Execute runs the provisioning flow. Calling it twice for the same
// student must not create a second card and must not fail the second
// call.
func (s *ProvisioningSaga) Execute(ctx context.Context, input ProvisioningInput) (*ProvisioningResult, error) {
	state := &provisioningState{
		currentStep: StepValidateInput,
		input:       input,
		startedAt:   time.Now().UTC(),
	}

	if err := s.stepValidateInput(ctx, state); err != nil {
		return nil, s.wrapError(state, err)
	}

	state.currentStep = StepCreateStudent
	if err := s.stepCreateStudent(ctx, state); err != nil {
		// Nothing was persisted; no compensation needed.
		return nil, s.wrapError(state, err)
	}

	if state.createdStudent {
		if err := s.eventBus.Publish(shared.NewStudentCreatedEvent(
			state.student.ID, state.student.OrgID, state.student.Email, state.student.OnboardOpt.String(),
		)); err != nil {
			s.log.Warn("student created event publish failed", logger.Err(err))
		}
	}

	if !state.student.WantsCard() {
		return s.complete(state), nil
	}

	state.currentStep = StepGuardExisting
	if err := s.stepGuardExisting(ctx, state); err != nil {
		s.rollbackStudent(ctx, state)
		return nil, s.wrapError(state, err)
	}

	if !state.cardExisted {
		state.currentStep = StepResolveStage
		if err := s.stepResolveStage(ctx, state); err != nil {
			s.rollbackStudent(ctx, state)
			return nil, s.wrapError(state, err)
		}

		state.currentStep = StepInsertCard
		if err := s.stepInsertCard(ctx, state); err != nil {
			s.rollbackStudent(ctx, state)
			return nil, s.wrapError(state, err)
		}
	}

	state.currentStep = StepMarkOnboarded
	if err := s.stepMarkOnboarded(ctx, state); err != nil {
		s.rollbackStudent(ctx, state)
		return nil, s.wrapError(state, err)
	}

	state.currentStep = StepPublishEvent
	if err := s.stepPublishEvent(ctx, state); err != nil {
		// Non-critical: events can be replayed, provisioning stands.
		s.log.Warn("provisioning event publish failed", logger.Err(err))
	}

	return s.complete(state), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SAGA STEPS
// ══════════════════════════════════════════════════════════════════════════════

func (s *ProvisioningSaga) stepValidateInput(ctx context.Context, state *provisioningState) error {
	if err := state.input.Validate(); err != nil {
		state.failedStep = StepValidateInput
		return err
	}

	if s.limiter != nil {
		ok, err := s.limiter.CanAddStudent(ctx, state.input.OrgID)
		if err != nil {
			state.failedStep = StepValidateInput
			return fmt.Errorf("checking student limit: %w", err)
		}
		if !ok {
			state.failedStep = StepValidateInput
			return shared.NewDomainError("saga", "Provision", shared.ErrLimitReached, "organization student limit reached")
		}
	}
	return nil
}

func (s *ProvisioningSaga) stepCreateStudent(ctx context.Context, state *provisioningState) error {
	id := state.input.StudentID
	if id != "" {
		existing, err := s.students.GetByID(ctx, state.input.OrgID, id)
		if err == nil {
			// Re-entry for an existing student: nothing to create, the
			// card steps below settle the rest.
			state.student = existing
			return nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			state.failedStep = StepCreateStudent
			return fmt.Errorf("loading student for re-entry: %w", err)
		}
	} else {
		id = s.idGen.GenerateID()
	}

	newStudent, err := student.NewStudent(student.NewStudentParams{
		ID:         id,
		OrgID:      state.input.OrgID,
		TrainerID:  state.input.TrainerID,
		Name:       state.input.Name,
		Email:      state.input.Email,
		Phone:      state.input.Phone,
		OnboardOpt: state.input.OnboardOpt,
	})
	if err != nil {
		state.failedStep = StepCreateStudent
		return err
	}

	if err := s.students.Create(ctx, newStudent); err != nil {
		state.failedStep = StepCreateStudent
		if errors.Is(err, shared.ErrEmailTaken) || errors.Is(err, shared.ErrConflict) {
			return shared.WrapDomainError("saga", "Provision", shared.ErrEmailTaken, "email already registered", err)
		}
		return fmt.Errorf("persisting student: %w", err)
	}

	state.student = newStudent
	state.createdStudent = true
	return nil
}

// stepGuardExisting is the idempotency guard: a card already present
// for (org, student) means an earlier attempt got through, so the rest
// of provisioning is skipped.
func (s *ProvisioningSaga) stepGuardExisting(ctx context.Context, state *provisioningState) error {
	exists, err := s.cards.ExistsForStudent(ctx, state.input.OrgID, state.student.ID)
	if err != nil {
		state.failedStep = StepGuardExisting
		return fmt.Errorf("checking existing card: %w", err)
	}
	state.cardExisted = exists
	return nil
}

func (s *ProvisioningSaga) stepResolveStage(ctx context.Context, state *provisioningState) error {
	stage, err := s.resolver.ResolveEntryStage(ctx, state.input.OrgID)
	if err != nil {
		state.failedStep = StepResolveStage
		return err
	}
	state.stage = stage
	return nil
}

// stepInsertCard computes the tail position and inserts the card.
// A unique-constraint conflict means a concurrent request won the race;
// that is success, not an error.
func (s *ProvisioningSaga) stepInsertCard(ctx context.Context, state *provisioningState) error {
	maxPos, hasAny, err := s.cards.MaxPositionInStage(ctx, state.input.OrgID, state.stage.ID)
	if err != nil {
		state.failedStep = StepInsertCard
		return fmt.Errorf("computing card position: %w", err)
	}

	card, err := pipeline.NewCard(
		s.idGen.GenerateID(),
		state.input.OrgID,
		state.student.ID,
		state.stage.ID,
		pipeline.NextPosition(maxPos, !hasAny),
	)
	if err != nil {
		state.failedStep = StepInsertCard
		return err
	}

	err = s.cards.Create(ctx, card)
	if column, drifted := shared.UnknownColumnOf(err); drifted {
		// Schema drift: the store's cache does not know an optional
		// column. One retry without it, no backoff.
		s.log.Warn("card insert hit unknown column, retrying without it",
			logger.String("column", column))
		err = s.cards.Create(ctx, card, column)
	}
	if err != nil {
		if errors.Is(err, shared.ErrConflict) {
			s.log.Info("card insert lost race, treating as provisioned",
				logger.StudentID(state.student.ID))
			state.cardExisted = true
			return nil
		}
		state.failedStep = StepInsertCard
		return fmt.Errorf("inserting card: %w", err)
	}

	state.card = card
	return nil
}

func (s *ProvisioningSaga) stepMarkOnboarded(ctx context.Context, state *provisioningState) error {
	if err := state.student.MarkOnboarded(); err != nil {
		state.failedStep = StepMarkOnboarded
		return err
	}
	if err := s.students.UpdateOnboardOpt(ctx, state.input.OrgID, state.student.ID, state.student.OnboardOpt); err != nil {
		state.failedStep = StepMarkOnboarded
		return fmt.Errorf("marking student onboarded: %w", err)
	}
	return nil
}

func (s *ProvisioningSaga) stepPublishEvent(ctx context.Context, state *provisioningState) error {
	stageID, position := "", 0
	if state.card != nil {
		stageID, position = state.card.StageID, state.card.Position
	} else if state.stage != nil {
		stageID = state.stage.ID
	}
	event := shared.NewStudentProvisionedEvent(state.student.ID, state.input.OrgID, stageID, position)
	return s.eventBus.Publish(event)
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPENSATION & ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// rollbackStudent deletes the student created earlier in this saga so
// no orphan student is left behind when provisioning was requested and
// failed. Best effort: a failed delete is logged, not retried.
func (s *ProvisioningSaga) rollbackStudent(ctx context.Context, state *provisioningState) {
	if state.student == nil || !state.createdStudent {
		return
	}

	if err := s.students.Delete(ctx, state.student.OrgID, state.student.ID); err != nil {
		s.log.Error("compensating student delete failed, orphan left behind",
			logger.StudentID(state.student.ID),
			logger.Err(err))
		return
	}

	s.log.Info("rolled back student after provisioning failure",
		logger.StudentID(state.student.ID),
		logger.String("failed_step", string(state.failedStep)))
	_ = s.eventBus.Publish(shared.NewStudentRolledBackEvent(state.student.ID, state.input.OrgID, string(state.failedStep)))
}

func (s *ProvisioningSaga) complete(state *provisioningState) *ProvisioningResult {
	state.currentStep = StepComplete
	return &ProvisioningResult{
		Student:            state.student,
		Card:               state.card,
		AlreadyProvisioned: state.cardExisted,
		CompletedAt:        time.Now().UTC(),
	}
}

// wrapError attaches step context and maps the failure onto a stable
// caller-facing code.
func (s *ProvisioningSaga) wrapError(state *provisioningState, err error) error {
	return &ProvisioningError{
		Step:    state.failedStep,
		Code:    codeFor(state.failedStep, err),
		Cause:   err,
		Message: fmt.Sprintf("provisioning failed at step '%s': %v", state.failedStep, err),
	}
}

// ErrorCode is the stable provisioning error vocabulary callers branch
// on.
type ErrorCode string

const (
	CodeValidation       ErrorCode = "validation"
	CodeUniqueEmail      ErrorCode = "unique_email"
	CodeLimitReached     ErrorCode = "limit_reached"
	CodeNoStage          ErrorCode = "no_stage"
	CodeKanbanCardFailed ErrorCode = "kanban_card_failed"
	CodeInsertFailed     ErrorCode = "insert_failed"
)

func codeFor(step ProvisioningStep, err error) ErrorCode {
	switch {
	case errors.Is(err, shared.ErrLimitReached):
		return CodeLimitReached
	case errors.Is(err, shared.ErrEmailTaken):
		return CodeUniqueEmail
	case errors.Is(err, shared.ErrNoStage):
		return CodeNoStage
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrInvalidID):
		return CodeValidation
	}

	switch step {
	case StepGuardExisting, StepResolveStage, StepInsertCard, StepMarkOnboarded:
		return CodeKanbanCardFailed
	default:
		return CodeInsertFailed
	}
}

// ProvisioningError is the structured failure a caller receives. For
// store-level causes the underlying status and body are reachable via
// shared.StoreDetail.
type ProvisioningError struct {
	Step    ProvisioningStep
	Code    ErrorCode
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *ProvisioningError) Error() string { return e.Message }

// Unwrap returns the underlying error.
func (e *ProvisioningError) Unwrap() error { return e.Cause }

// StoreDetail returns the transport status and body of the underlying
// store failure, when there is one.
func (e *ProvisioningError) StoreDetail() (int, string, bool) {
	return shared.StoreDetail(e.Cause)
}
