package command

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/shared"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/task"
	"github.com/fitcoach-hub/fitcoach-client-hub/pkg/logger"
	"github.com/fitcoach-hub/fitcoach-client-hub/pkg/timeutil"
)

type fakeTaskRepo struct {
	mu    sync.Mutex
	tasks map[string]*task.Task
}

func newFakeTaskRepo(tasks ...*task.Task) *fakeTaskRepo {
	r := &fakeTaskRepo{tasks: make(map[string]*task.Task)}
	for _, t := range tasks {
		cp := *t
		r.tasks[t.ID] = &cp
	}
	return r
}

func (r *fakeTaskRepo) GetByID(_ context.Context, orgID, id string) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.OrgID != orgID {
		return nil, shared.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTaskRepo) Find(context.Context, task.Predicate, task.Page) ([]*task.Task, int, error) {
	return nil, 0, nil
}

func (r *fakeTaskRepo) FindAll(context.Context, string) ([]*task.Task, error) {
	return nil, nil
}

func (r *fakeTaskRepo) Update(_ context.Context, t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[t.ID]; !ok {
		return shared.ErrNotFound
	}
	cp := *t
	r.tasks[t.ID] = &cp
	return nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []shared.Event
}

func (b *recordingBus) Publish(e shared.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

type recordingInvalidator struct{ orgs []string }

func (i *recordingInvalidator) Invalidate(_ context.Context, orgID string) {
	i.orgs = append(i.orgs, orgID)
}

func pendingTask() *task.Task {
	return &task.Task{
		ID:           "t1",
		OrgID:        "org-1",
		StudentID:    "stu-1",
		Status:       task.StatusPending,
		ScheduledFor: timeutil.Date(2025, 3, 10),
	}
}

func newHandler(repo *fakeTaskRepo) (*UpdateTaskStatusHandler, *recordingBus, *recordingInvalidator) {
	bus := &recordingBus{}
	inv := &recordingInvalidator{}
	h := NewUpdateTaskStatusHandler(repo, bus, inv, logger.New(logger.Options{Output: io.Discard}))
	return h, bus, inv
}

func TestHandle_MarksSent(t *testing.T) {
	repo := newFakeTaskRepo(pendingTask())
	h, bus, inv := newHandler(repo)

	updated, err := h.Handle(context.Background(), UpdateTaskStatusCommand{
		OrgID:  "org-1",
		TaskID: "t1",
		Status: task.StatusSent,
	})
	require.NoError(t, err)

	assert.Equal(t, task.StatusSent, updated.Status)
	require.NotNil(t, updated.SentAt)

	stored, err := repo.GetByID(context.Background(), "org-1", "t1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusSent, stored.Status)

	require.Len(t, bus.events, 1)
	assert.Equal(t, shared.EventTaskStatusChanged, bus.events[0].EventType())
	assert.Equal(t, []string{"org-1"}, inv.orgs)
}

func TestHandle_SnoozeReschedules(t *testing.T) {
	repo := newFakeTaskRepo(pendingTask())
	h, _, _ := newHandler(repo)

	until := timeutil.Date(2025, 3, 14)
	updated, err := h.Handle(context.Background(), UpdateTaskStatusCommand{
		OrgID:       "org-1",
		TaskID:      "t1",
		Status:      task.StatusSnoozed,
		SnoozeUntil: until,
	})
	require.NoError(t, err)

	assert.Equal(t, task.StatusSnoozed, updated.Status)
	assert.Equal(t, until, updated.ScheduledFor)
}

func TestHandle_TerminalStatusRejected(t *testing.T) {
	done := pendingTask()
	done.Status = task.StatusSent
	repo := newFakeTaskRepo(done)
	h, bus, inv := newHandler(repo)

	_, err := h.Handle(context.Background(), UpdateTaskStatusCommand{
		OrgID:  "org-1",
		TaskID: "t1",
		Status: task.StatusPending,
	})

	assert.ErrorIs(t, err, shared.ErrStateTransition)
	assert.Empty(t, bus.events)
	assert.Empty(t, inv.orgs)
}

func TestHandle_NotFound(t *testing.T) {
	repo := newFakeTaskRepo()
	h, _, _ := newHandler(repo)

	_, err := h.Handle(context.Background(), UpdateTaskStatusCommand{
		OrgID:  "org-1",
		TaskID: "missing",
		Status: task.StatusSent,
	})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestHandle_WrongTenant(t *testing.T) {
	repo := newFakeTaskRepo(pendingTask())
	h, _, _ := newHandler(repo)

	_, err := h.Handle(context.Background(), UpdateTaskStatusCommand{
		OrgID:  "org-2",
		TaskID: "t1",
		Status: task.StatusSent,
	})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestHandle_UnknownStatus(t *testing.T) {
	repo := newFakeTaskRepo(pendingTask())
	h, _, _ := newHandler(repo)

	_, err := h.Handle(context.Background(), UpdateTaskStatusCommand{
		OrgID:  "org-1",
		TaskID: "t1",
		Status: "archived",
	})
	assert.ErrorIs(t, err, shared.ErrValidation)
}
