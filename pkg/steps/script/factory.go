package script

import (
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
)

// StepFactory creates script handlers.
type StepFactory struct{}

// Create creates a new script Step.
func (f *StepFactory) Create(collaborators protocol.Collaborators) (protocol.StepHandler, error) {
	return NewStep(collaborators.Scripts), nil
}

// ID returns the factory ID.
func (f *StepFactory) ID() models.StepType {
	return models.StepTypeScript
}

// Name returns the factory name.
func (f *StepFactory) Name() string {
	return "Script"
}

// Description returns the factory description.
func (f *StepFactory) Description() string {
	return "Evaluates a script over the instance data; object results are merged into the data"
}

// NewStepFactory creates a new factory instance.
func NewStepFactory() protocol.StepFactory {
	return &StepFactory{}
}
