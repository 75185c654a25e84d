// Package eventhandler contains subscribers for domain events. The
// handlers are side-effect-light: they produce the audit trail and keep
// derived read models warm, never business decisions.
package eventhandler

import (
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/shared"
	"github.com/fitcoach-hub/fitcoach-client-hub/pkg/logger"
)

// OnStudentLifecycleHandler writes the audit trail for the student
// onboarding flow: creation, card provisioning, and compensating
// rollbacks.
type OnStudentLifecycleHandler struct {
	logger *logger.Logger
}

// NewOnStudentLifecycleHandler creates the handler.
func NewOnStudentLifecycleHandler(log *logger.Logger) *OnStudentLifecycleHandler {
	return &OnStudentLifecycleHandler{
		logger: log.With(logger.Component("student_lifecycle")),
	}
}

// Register subscribes the handler to the student events.
func (h *OnStudentLifecycleHandler) Register(bus shared.EventBus) error {
	for _, eventType := range []shared.EventType{
		shared.EventStudentCreated,
		shared.EventStudentProvisioned,
		shared.EventStudentRolledBack,
	} {
		if err := bus.Subscribe(eventType, shared.EventHandlerFunc(h.handle)); err != nil {
			return err
		}
	}
	return nil
}

func (h *OnStudentLifecycleHandler) handle(event shared.Event) error {
	fields := []logger.Field{
		logger.StudentID(event.AggregateID()),
		logger.String("event_type", string(event.EventType())),
	}
	payload := event.Payload()
	if orgID, ok := payload["org_id"].(string); ok {
		fields = append(fields, logger.OrgID(orgID))
	}

	switch event.EventType() {
	case shared.EventStudentCreated:
		h.logger.Info("student created", fields...)
	case shared.EventStudentProvisioned:
		if stageID, ok := payload["stage_id"].(string); ok {
			fields = append(fields, logger.StageID(stageID))
		}
		h.logger.Info("student card provisioned", fields...)
	case shared.EventStudentRolledBack:
		if step, ok := payload["failed_step"].(string); ok {
			fields = append(fields, logger.String("failed_step", step))
		}
		h.logger.Warn("student rolled back", fields...)
	}
	return nil
}
