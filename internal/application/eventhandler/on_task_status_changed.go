package eventhandler

import (
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/shared"
	"github.com/fitcoach-hub/fitcoach-client-hub/pkg/logger"
)

// OnTaskStatusChangedHandler records task transitions for the audit
// trail. Cache invalidation happens inline in the command handler; this
// subscriber only observes.
type OnTaskStatusChangedHandler struct {
	logger *logger.Logger
}

// NewOnTaskStatusChangedHandler creates the handler.
func NewOnTaskStatusChangedHandler(log *logger.Logger) *OnTaskStatusChangedHandler {
	return &OnTaskStatusChangedHandler{
		logger: log.With(logger.Component("task_status")),
	}
}

// Register subscribes the handler to task status events.
func (h *OnTaskStatusChangedHandler) Register(bus shared.EventBus) error {
	return bus.Subscribe(shared.EventTaskStatusChanged, shared.EventHandlerFunc(h.handle))
}

func (h *OnTaskStatusChangedHandler) handle(event shared.Event) error {
	payload := event.Payload()
	fields := []logger.Field{
		logger.TaskID(event.AggregateID()),
	}
	if orgID, ok := payload["org_id"].(string); ok {
		fields = append(fields, logger.OrgID(orgID))
	}
	if old, ok := payload["old_status"].(string); ok {
		fields = append(fields, logger.String("old_status", old))
	}
	if next, ok := payload["new_status"].(string); ok {
		fields = append(fields, logger.String("new_status", next))
	}

	h.logger.Info("task status changed", fields...)
	return nil
}

// RegisterAll wires every event subscriber onto the bus.
func RegisterAll(bus shared.EventBus, log *logger.Logger) error {
	if err := NewOnStudentLifecycleHandler(log).Register(bus); err != nil {
		return err
	}
	return NewOnTaskStatusChangedHandler(log).Register(bus)
}
