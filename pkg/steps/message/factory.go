package message

import (
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
)

// StepFactory creates message or notification handlers.
type StepFactory struct {
	stepType models.StepType
}

// Create creates a new message Step.
func (f *StepFactory) Create(collaborators protocol.Collaborators) (protocol.StepHandler, error) {
	return NewStep(f.stepType, collaborators.Dispatcher), nil
}

// ID returns the factory ID.
func (f *StepFactory) ID() models.StepType {
	return f.stepType
}

// Name returns the factory name.
func (f *StepFactory) Name() string {
	if f.stepType == models.StepTypeNotification {
		return "Notification"
	}

	return "Message"
}

// Description returns the factory description.
func (f *StepFactory) Description() string {
	return "Renders a template with instance data and sends it to recipients over a channel"
}

// NewMessageStepFactory creates a factory for message steps.
func NewMessageStepFactory() protocol.StepFactory {
	return &StepFactory{stepType: models.StepTypeMessage}
}

// NewNotificationStepFactory creates a factory for notification steps.
func NewNotificationStepFactory() protocol.StepFactory {
	return &StepFactory{stepType: models.StepTypeNotification}
}
