package saga

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/pipeline"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/shared"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/trainer"
	"github.com/fitcoach-hub/fitcoach-client-hub/pkg/logger"
)

type fakeOrgRepo struct {
	orgs      map[string]*trainer.Org
	createErr error
}

func newFakeOrgRepo() *fakeOrgRepo { return &fakeOrgRepo{orgs: make(map[string]*trainer.Org)} }

func (r *fakeOrgRepo) Create(_ context.Context, o *trainer.Org) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.orgs[o.ID] = o
	return nil
}

func (r *fakeOrgRepo) GetByID(_ context.Context, id string) (*trainer.Org, error) {
	o, ok := r.orgs[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return o, nil
}

func (r *fakeOrgRepo) Delete(_ context.Context, id string) error {
	delete(r.orgs, id)
	return nil
}

type fakeTrainerRepo struct {
	trainers  map[string]*trainer.Trainer
	emails    map[string]bool
	createErr error
}

func newFakeTrainerRepo() *fakeTrainerRepo {
	return &fakeTrainerRepo{trainers: make(map[string]*trainer.Trainer), emails: make(map[string]bool)}
}

func (r *fakeTrainerRepo) Create(_ context.Context, t *trainer.Trainer) error {
	if r.createErr != nil {
		return r.createErr
	}
	if r.emails[t.Email] {
		return shared.ErrEmailTaken
	}
	r.trainers[t.ID] = t
	r.emails[t.Email] = true
	return nil
}

func (r *fakeTrainerRepo) GetByEmail(_ context.Context, email string) (*trainer.Trainer, error) {
	for _, t := range r.trainers {
		if t.Email == email {
			return t, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeTrainerRepo) Delete(_ context.Context, id string) error {
	if t, ok := r.trainers[id]; ok {
		delete(r.emails, t.Email)
		delete(r.trainers, id)
	}
	return nil
}

// erroringStageRepo fails every write, for compensation tests.
type erroringStageRepo struct {
	fakeStageRepo
	err error
}

func (r erroringStageRepo) CreateMany(context.Context, []*pipeline.Stage) error { return r.err }

func validSignup() SignupInput {
	return SignupInput{
		OrgName:     "Studio Fit",
		TrainerName: "Carla Lima",
		Email:       "carla@example.com",
		Password:    "s3cret-pass",
	}
}

func newSignupSaga(orgs *fakeOrgRepo, trainers *fakeTrainerRepo, stages *fakeStageRepo) (*SignupSaga, *recordingBus) {
	bus := &recordingBus{}
	s := NewSignupSaga(orgs, trainers, stages, bus, &seqIDGen{}, logger.New(logger.Options{Output: io.Discard}))
	return s, bus
}

func TestSignup_Success(t *testing.T) {
	orgs, trainers, stages := newFakeOrgRepo(), newFakeTrainerRepo(), &fakeStageRepo{}
	saga, bus := newSignupSaga(orgs, trainers, stages)

	res, err := saga.Execute(context.Background(), validSignup())
	require.NoError(t, err)

	assert.Len(t, orgs.orgs, 1)
	assert.Len(t, trainers.trainers, 1)
	require.Len(t, res.Stages, 5)
	for i, stage := range res.Stages {
		assert.Equal(t, i+1, stage.Position)
		assert.Equal(t, res.Org.ID, stage.OrgID)
	}
	assert.Contains(t, bus.typesSeen(), shared.EventOrgSignedUp)
}

func TestSignup_EmailTaken_RollsBackOrg(t *testing.T) {
	orgs, trainers, stages := newFakeOrgRepo(), newFakeTrainerRepo(), &fakeStageRepo{}
	trainers.emails["carla@example.com"] = true
	saga, _ := newSignupSaga(orgs, trainers, stages)

	_, err := saga.Execute(context.Background(), validSignup())

	assert.ErrorIs(t, err, shared.ErrEmailTaken)
	assert.Empty(t, orgs.orgs, "org removed by compensation")
}

func TestSignup_BoardSeedFailure_RollsBackAll(t *testing.T) {
	orgs, trainers := newFakeOrgRepo(), newFakeTrainerRepo()
	stages := &fakeStageRepo{}
	saga, _ := newSignupSaga(orgs, trainers, stages)
	saga.stages = &erroringStageRepo{err: fmt.Errorf("store down")}

	_, err := saga.Execute(context.Background(), validSignup())
	require.Error(t, err)

	assert.Empty(t, orgs.orgs)
	assert.Empty(t, trainers.trainers)
}

func TestSignup_InvalidInput_NoWrites(t *testing.T) {
	orgs, trainers, stages := newFakeOrgRepo(), newFakeTrainerRepo(), &fakeStageRepo{}
	saga, _ := newSignupSaga(orgs, trainers, stages)

	input := validSignup()
	input.Password = "short"
	_, err := saga.Execute(context.Background(), input)

	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Empty(t, orgs.orgs)
	assert.Empty(t, trainers.trainers)
}
