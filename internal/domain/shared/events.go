// Package shared contains common domain types, errors, and events used
// across all domain packages.
package shared

import "time"

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each event records something significant that
// happened in the domain.
const (
	// Student events
	EventStudentCreated     EventType = "student.created"
	EventStudentProvisioned EventType = "student.provisioned"
	EventStudentRolledBack  EventType = "student.rolled_back"

	// Relationship task events
	EventTaskStatusChanged EventType = "task.status_changed"

	// Organization events
	EventOrgSignedUp EventType = "org.signed_up"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// EventHandler processes a published event.
type EventHandler interface {
	Handle(event Event) error
}

// EventHandlerFunc adapts a function to the EventHandler interface.
type EventHandlerFunc func(event Event) error

// Handle implements EventHandler.
func (f EventHandlerFunc) Handle(event Event) error { return f(event) }

// EventPublisher publishes domain events to interested handlers.
type EventPublisher interface {
	Publish(event Event) error
}

// EventBus is the full pub/sub surface: publishing plus handler
// registration and lifecycle.
type EventBus interface {
	EventPublisher

	// Subscribe registers a handler for a specific event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for every event.
	SubscribeAll(handler EventHandler) error

	// Close shuts the bus down, waiting for in-flight handlers.
	Close() error
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
}

// EventType implements Event.
func (e BaseEvent) EventType() EventType { return e.Type }

// OccurredAt implements Event.
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// AggregateID implements Event.
func (e BaseEvent) AggregateID() string { return e.AggregateId }

// NewBaseEvent creates a new base event stamped with the current UTC time.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
	}
}

// StudentProvisionedEvent is emitted when a student's onboarding card
// has been placed on the pipeline.
type StudentProvisionedEvent struct {
	BaseEvent
	OrgID    string `json:"org_id"`
	StageID  string `json:"stage_id"`
	Position int    `json:"position"`
}

// Payload implements Event.
func (e StudentProvisionedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"org_id":   e.OrgID,
		"stage_id": e.StageID,
		"position": e.Position,
	}
}

// NewStudentProvisionedEvent creates a new StudentProvisionedEvent.
func NewStudentProvisionedEvent(studentID, orgID, stageID string, position int) StudentProvisionedEvent {
	return StudentProvisionedEvent{
		BaseEvent: NewBaseEvent(EventStudentProvisioned, studentID),
		OrgID:     orgID,
		StageID:   stageID,
		Position:  position,
	}
}

// StudentCreatedEvent is emitted when a student record is persisted,
// whether or not a card was requested.
type StudentCreatedEvent struct {
	BaseEvent
	OrgID      string `json:"org_id"`
	Email      string `json:"email"`
	OnboardOpt string `json:"onboard_opt"`
}

// Payload implements Event.
func (e StudentCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"org_id":      e.OrgID,
		"email":       e.Email,
		"onboard_opt": e.OnboardOpt,
	}
}

// NewStudentCreatedEvent creates a new StudentCreatedEvent.
func NewStudentCreatedEvent(studentID, orgID, email, onboardOpt string) StudentCreatedEvent {
	return StudentCreatedEvent{
		BaseEvent:  NewBaseEvent(EventStudentCreated, studentID),
		OrgID:      orgID,
		Email:      email,
		OnboardOpt: onboardOpt,
	}
}

// StudentRolledBackEvent is emitted when a compensating delete removed
// a student after provisioning failed.
type StudentRolledBackEvent struct {
	BaseEvent
	OrgID      string `json:"org_id"`
	FailedStep string `json:"failed_step"`
}

// Payload implements Event.
func (e StudentRolledBackEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"org_id":      e.OrgID,
		"failed_step": e.FailedStep,
	}
}

// NewStudentRolledBackEvent creates a new StudentRolledBackEvent.
func NewStudentRolledBackEvent(studentID, orgID, failedStep string) StudentRolledBackEvent {
	return StudentRolledBackEvent{
		BaseEvent:  NewBaseEvent(EventStudentRolledBack, studentID),
		OrgID:      orgID,
		FailedStep: failedStep,
	}
}

// TaskStatusChangedEvent is emitted on every explicit task transition.
type TaskStatusChangedEvent struct {
	BaseEvent
	OrgID     string `json:"org_id"`
	StudentID string `json:"student_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

// Payload implements Event.
func (e TaskStatusChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"org_id":     e.OrgID,
		"student_id": e.StudentID,
		"old_status": e.OldStatus,
		"new_status": e.NewStatus,
	}
}

// NewTaskStatusChangedEvent creates a new TaskStatusChangedEvent.
func NewTaskStatusChangedEvent(taskID, orgID, studentID, oldStatus, newStatus string) TaskStatusChangedEvent {
	return TaskStatusChangedEvent{
		BaseEvent: NewBaseEvent(EventTaskStatusChanged, taskID),
		OrgID:     orgID,
		StudentID: studentID,
		OldStatus: oldStatus,
		NewStatus: newStatus,
	}
}

// OrgSignedUpEvent is emitted when a new organization completes signup.
type OrgSignedUpEvent struct {
	BaseEvent
	TrainerID string `json:"trainer_id"`
	Email     string `json:"email"`
}

// Payload implements Event.
func (e OrgSignedUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"trainer_id": e.TrainerID,
		"email":      e.Email,
	}
}

// NewOrgSignedUpEvent creates a new OrgSignedUpEvent.
func NewOrgSignedUpEvent(orgID, trainerID, email string) OrgSignedUpEvent {
	return OrgSignedUpEvent{
		BaseEvent: NewBaseEvent(EventOrgSignedUp, orgID),
		TrainerID: trainerID,
		Email:     email,
	}
}
