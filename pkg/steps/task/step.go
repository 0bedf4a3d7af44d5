// Package task provides the human task step handler.
package task

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/stepflow/pkg/mapping"
	"github.com/dukex/stepflow/pkg/models"
)

// ErrMissingRequiredField is matched by every MissingRequiredFieldError.
var ErrMissingRequiredField = errors.New("missing required field")

// MissingRequiredFieldError lists the required form fields absent from the instance data.
type MissingRequiredFieldError struct {
	StepID string
	Fields []string
}

func (e *MissingRequiredFieldError) Error() string {
	return fmt.Sprintf("step %s: missing required field(s): %s", e.StepID, strings.Join(e.Fields, ", "))
}

func (e *MissingRequiredFieldError) Is(target error) bool {
	return target == ErrMissingRequiredField
}

// Step checks that every required form field of the task was filled in.
// A field counts as filled when its path resolves to a non-nil value that is
// not an empty string.
type Step struct{}

// NewStep creates a task handler.
func NewStep() *Step {
	return &Step{}
}

// Type returns the step type.
func (s *Step) Type() models.StepType {
	return models.StepTypeTask
}

// Execute validates the form and returns a copy of data.
func (s *Step) Execute(_ context.Context, step *models.WorkflowStep, data map[string]any) (models.ExecutionResult, error) {
	cfg, ok := step.TaskConfig()
	if !ok {
		return models.ExecutionResult{Data: models.CopyData(data)}, nil
	}

	var missing []string

	for _, field := range cfg.Fields {
		if !field.Required {
			continue
		}

		if !isFilled(data, field.Name) {
			missing = append(missing, field.Name)
		}
	}

	if len(missing) > 0 {
		return models.ExecutionResult{}, &MissingRequiredFieldError{StepID: step.ID, Fields: missing}
	}

	return models.ExecutionResult{Data: models.CopyData(data)}, nil
}

func isFilled(data map[string]any, name string) bool {
	value, err := mapping.Get(data, name)
	if err != nil || value == nil {
		return false
	}

	if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
		return false
	}

	return true
}
