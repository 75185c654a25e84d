// Package command contains write-side handlers for explicit state
// changes outside the sagas.
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/shared"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/task"
	"github.com/fitcoach-hub/fitcoach-client-hub/pkg/logger"
	"github.com/fitcoach-hub/fitcoach-client-hub/pkg/timeutil"
)

// CountsInvalidator drops cached bucket counts after a transition.
type CountsInvalidator interface {
	Invalidate(ctx context.Context, orgID string)
}

// UpdateTaskStatusCommand requests one explicit status transition.
type UpdateTaskStatusCommand struct {
	OrgID  string
	TaskID string
	Status task.Status

	// SnoozeUntil reschedules the task when Status is snoozed.
	SnoozeUntil time.Time
}

// UpdateTaskStatusHandler applies task status transitions, publishes
// the change event and invalidates cached counts.
type UpdateTaskStatusHandler struct {
	tasks    task.Repository
	eventBus shared.EventPublisher
	counts   CountsInvalidator
	now      func() time.Time
	log      *logger.Logger
}

// NewUpdateTaskStatusHandler creates an UpdateTaskStatusHandler. counts
// may be nil.
func NewUpdateTaskStatusHandler(
	tasks task.Repository,
	eventBus shared.EventPublisher,
	counts CountsInvalidator,
	log *logger.Logger,
) *UpdateTaskStatusHandler {
	return &UpdateTaskStatusHandler{
		tasks:    tasks,
		eventBus: eventBus,
		counts:   counts,
		now:      timeutil.Now,
		log:      log.With(logger.Component("update_task_status")),
	}
}

// Handle loads the task, applies the transition and persists it.
func (h *UpdateTaskStatusHandler) Handle(ctx context.Context, cmd UpdateTaskStatusCommand) (*task.Task, error) {
	if cmd.OrgID == "" || cmd.TaskID == "" {
		return nil, shared.NewDomainError("command", "UpdateTaskStatus", shared.ErrValidation, "org and task ids are required")
	}
	if !cmd.Status.IsValid() {
		return nil, shared.NewDomainError("command", "UpdateTaskStatus", shared.ErrValidation,
			fmt.Sprintf("unknown status %q", cmd.Status))
	}

	t, err := h.tasks.GetByID(ctx, cmd.OrgID, cmd.TaskID)
	if err != nil {
		return nil, err
	}

	old := t.Status
	now := h.now()
	if cmd.Status == task.StatusSnoozed && !cmd.SnoozeUntil.IsZero() {
		err = t.Reschedule(cmd.SnoozeUntil, now)
	} else {
		err = t.TransitionTo(cmd.Status, now)
	}
	if err != nil {
		return nil, err
	}

	if err := h.tasks.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("persisting task transition: %w", err)
	}

	if err := h.eventBus.Publish(shared.NewTaskStatusChangedEvent(
		t.ID, t.OrgID, t.StudentID, string(old), string(t.Status),
	)); err != nil {
		h.log.Warn("task status event publish failed", logger.TaskID(t.ID), logger.Err(err))
	}

	if h.counts != nil {
		h.counts.Invalidate(ctx, cmd.OrgID)
	}

	h.log.Info("task status changed",
		logger.TaskID(t.ID),
		logger.String("from", string(old)),
		logger.String("to", string(t.Status)))
	return t, nil
}
