package passthrough

import (
	"fmt"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
)

// StepFactory creates passthrough handlers for one step type.
type StepFactory struct {
	stepType models.StepType
}

// Create creates a new passthrough Step.
func (f *StepFactory) Create(_ protocol.Collaborators) (protocol.StepHandler, error) {
	return NewStep(f.stepType), nil
}

// ID returns the factory ID.
func (f *StepFactory) ID() models.StepType {
	return f.stepType
}

// Name returns the factory name.
func (f *StepFactory) Name() string {
	return fmt.Sprintf("Passthrough (%s)", f.stepType)
}

// Description returns the factory description.
func (f *StepFactory) Description() string {
	return "Moves the instance on without changing its data"
}

// NewStepFactory creates a new factory instance.
func NewStepFactory(stepType models.StepType) protocol.StepFactory {
	return &StepFactory{stepType: stepType}
}
