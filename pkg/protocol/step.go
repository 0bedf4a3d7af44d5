// Package protocol defines the interfaces and contracts for pluggable steps and
// the external collaborators the engine talks to.
package protocol

import (
	"context"

	"github.com/dukex/stepflow/pkg/models"
)

// StepHandler executes one step type.
type StepHandler interface {
	// Type returns the step type this handler serves
	Type() models.StepType

	// Execute runs the step against a copy of the instance data.
	// Implementations must not keep references to data after returning.
	Execute(ctx context.Context, step *models.WorkflowStep, data map[string]any) (models.ExecutionResult, error)
}

// StepFactory creates a handler from shared collaborators and describes the step type.
// Plugins expose a StepFactory through their exported "Step" symbol.
type StepFactory interface {
	// Create builds the handler
	Create(collaborators Collaborators) (StepHandler, error)

	// ID returns the step type the created handler serves
	ID() models.StepType

	// Name returns the human-readable name for this step type
	Name() string

	// Description returns a description of what this step type does
	Description() string
}
