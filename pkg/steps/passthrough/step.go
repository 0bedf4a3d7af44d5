// Package passthrough provides the step handler for structural steps that do no work
// (start, end, decision, error) and for step types without a registered handler.
package passthrough

import (
	"context"

	"github.com/dukex/stepflow/pkg/models"
)

// Step returns the data it was given.
type Step struct {
	stepType models.StepType
}

// NewStep creates a passthrough handler for stepType.
func NewStep(stepType models.StepType) *Step {
	return &Step{stepType: stepType}
}

// Type returns the step type.
func (s *Step) Type() models.StepType {
	return s.stepType
}

// Execute returns a copy of data.
func (s *Step) Execute(_ context.Context, _ *models.WorkflowStep, data map[string]any) (models.ExecutionResult, error) {
	return models.ExecutionResult{Data: models.CopyData(data)}, nil
}
