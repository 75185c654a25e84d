// Package task contains the relationship-task domain model: scheduled
// communications tied to a student, their status lifecycle, and the
// temporal bucket classification the dashboard is built on.
package task

import (
	"time"

	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/shared"
)

// Status is the persisted lifecycle state of a task.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusSnoozed Status = "snoozed"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSent, StatusSnoozed, StatusSkipped, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
// Snoozed tasks can re-enter pending; everything else stays put.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSent, StatusSkipped, StatusFailed:
		return true
	}
	return false
}

// Channel is the delivery channel of a scheduled communication.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
	ChannelManual   Channel = "manual"
)

// Task is a scheduled communication for one student. Tasks are created
// by the scheduling pipeline and mutated only through status
// transitions; scheduled_for and the payload snapshot are immutable
// after creation.
type Task struct {
	ID           string
	OrgID        string
	StudentID    string
	StudentName  string
	TemplateCode string
	Anchor       string
	Channel      Channel
	Status       Status
	ScheduledFor time.Time
	Payload      string
	SentAt       *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CanTransitionTo reports whether moving to next is a legal transition
// from the task's current status.
func (t *Task) CanTransitionTo(next Status) bool {
	if !next.IsValid() || next == t.Status {
		return false
	}
	switch t.Status {
	case StatusPending:
		return next == StatusSent || next == StatusSnoozed || next == StatusSkipped || next == StatusFailed
	case StatusSnoozed:
		return next == StatusPending
	default:
		return false
	}
}

// TransitionTo applies a status transition, recording the send instant
// when the task moves to sent.
func (t *Task) TransitionTo(next Status, now time.Time) error {
	if !next.IsValid() {
		return shared.NewDomainError("task", "TransitionTo", shared.ErrValidation, "unknown status "+string(next))
	}
	if !t.CanTransitionTo(next) {
		return shared.NewDomainError("task", "TransitionTo", shared.ErrStateTransition,
			string(t.Status)+" cannot move to "+string(next))
	}
	t.Status = next
	t.UpdatedAt = now.UTC()
	if next == StatusSent {
		sent := now.UTC()
		t.SentAt = &sent
	}
	return nil
}

// Reschedule snoozes a pending task to a later instant.
func (t *Task) Reschedule(until, now time.Time) error {
	if t.Status != StatusPending && t.Status != StatusSnoozed {
		return shared.NewDomainError("task", "Reschedule", shared.ErrStateTransition,
			"only pending or snoozed tasks can be rescheduled")
	}
	t.Status = StatusSnoozed
	t.ScheduledFor = until.UTC()
	t.UpdatedAt = now.UTC()
	return nil
}
