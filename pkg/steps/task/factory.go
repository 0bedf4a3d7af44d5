package task

import (
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
)

// StepFactory creates task handlers.
type StepFactory struct{}

// Create creates a new task Step.
func (f *StepFactory) Create(_ protocol.Collaborators) (protocol.StepHandler, error) {
	return NewStep(), nil
}

// ID returns the factory ID.
func (f *StepFactory) ID() models.StepType {
	return models.StepTypeTask
}

// Name returns the factory name.
func (f *StepFactory) Name() string {
	return "Task"
}

// Description returns the factory description.
func (f *StepFactory) Description() string {
	return "Waits for a person to fill in a form; advancing fails until every required field is present"
}

// NewStepFactory creates a new factory instance.
func NewStepFactory() protocol.StepFactory {
	return &StepFactory{}
}
