package service

import (
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
)

// StepFactory creates service handlers.
type StepFactory struct{}

// Create creates a new service Step.
func (f *StepFactory) Create(collaborators protocol.Collaborators) (protocol.StepHandler, error) {
	return NewStep(collaborators.Invoker), nil
}

// ID returns the factory ID.
func (f *StepFactory) ID() models.StepType {
	return models.StepTypeService
}

// Name returns the factory name.
func (f *StepFactory) Name() string {
	return "Service Call"
}

// Description returns the factory description.
func (f *StepFactory) Description() string {
	return "Calls an external service; endpoint, headers and body support templating with instance data"
}

// NewStepFactory creates a new factory instance.
func NewStepFactory() protocol.StepFactory {
	return &StepFactory{}
}
