package timer

import (
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
)

// StepFactory creates timer handlers.
type StepFactory struct{}

// Create creates a new timer Step.
func (f *StepFactory) Create(collaborators protocol.Collaborators) (protocol.StepHandler, error) {
	return NewStep(collaborators.Clock), nil
}

// ID returns the factory ID.
func (f *StepFactory) ID() models.StepType {
	return models.StepTypeTimer
}

// Name returns the factory name.
func (f *StepFactory) Name() string {
	return "Timer"
}

// Description returns the factory description.
func (f *StepFactory) Description() string {
	return "Holds the instance until a delay elapses or a cron schedule next fires"
}

// NewStepFactory creates a new factory instance.
func NewStepFactory() protocol.StepFactory {
	return &StepFactory{}
}
