// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/google/uuid"
)

// CreateTestStep creates a test WorkflowStep with a zero configuration for its type
// that can be overridden.
func CreateTestStep(id string, stepType models.StepType, overrides ...func(*models.WorkflowStep)) *models.WorkflowStep {
	step := &models.WorkflowStep{
		ID:     id,
		Name:   "Step " + id,
		Type:   stepType,
		Config: models.NewStepConfig(stepType),
	}

	for _, override := range overrides {
		override(step)
	}

	return step
}

// WithConfig sets the step configuration.
func WithConfig(config models.StepConfig) func(*models.WorkflowStep) {
	return func(s *models.WorkflowStep) {
		s.Config = config
	}
}

// WithName sets the step name.
func WithName(name string) func(*models.WorkflowStep) {
	return func(s *models.WorkflowStep) {
		s.Name = name
	}
}

// WithPosition sets the step position.
func WithPosition(x, y int) func(*models.WorkflowStep) {
	return func(s *models.WorkflowStep) {
		s.Position = models.Position{X: x, Y: y}
	}
}

// WithMappings appends variable mappings.
func WithMappings(mappings ...models.VariableMapping) func(*models.WorkflowStep) {
	return func(s *models.WorkflowStep) {
		s.Mappings = append(s.Mappings, mappings...)
	}
}

// WithErrorHandlers appends error handlers.
func WithErrorHandlers(handlers ...models.ErrorHandler) func(*models.WorkflowStep) {
	return func(s *models.WorkflowStep) {
		s.ErrorHandlers = append(s.ErrorHandlers, handlers...)
	}
}

// CreateTestTransition creates a transition with a generated id.
func CreateTestTransition(from, to string, condition ...string) *models.WorkflowTransition {
	transition := &models.WorkflowTransition{
		ID:   from + "->" + to,
		From: from,
		To:   to,
	}

	if len(condition) > 0 {
		transition.Condition = condition[0]
	}

	return transition
}

// CreateTestDefinition creates a draft definition from steps and transitions.
func CreateTestDefinition(steps []*models.WorkflowStep, transitions ...*models.WorkflowTransition) *models.WorkflowDefinition {
	now := time.Now().UTC()

	return &models.WorkflowDefinition{
		ID:          uuid.New().String(),
		Name:        "Test Workflow",
		Description: "A workflow for tests",
		Version:     "1.0.0",
		Status:      models.DefinitionStatusDraft,
		Steps:       steps,
		Transitions: transitions,
		CreatedBy:   "tester",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// CreateLinearDefinition creates start -> task -> end.
func CreateLinearDefinition() *models.WorkflowDefinition {
	return CreateTestDefinition(
		[]*models.WorkflowStep{
			CreateTestStep("start", models.StepTypeStart),
			CreateTestStep("review", models.StepTypeTask, WithConfig(&models.TaskConfig{
				Fields: []models.FormField{{Name: "approved", Label: "Approved", Type: "boolean", Required: true}},
			})),
			CreateTestStep("end", models.StepTypeEnd),
		},
		CreateTestTransition("start", "review"),
		CreateTestTransition("review", "end"),
	)
}

// CreateApprovalDefinition creates an approval flow with a decision:
//
//	start -> submit -> decide -(amount > 1000)-> manager -> done
//	                         \-(otherwise)----------------> done
func CreateApprovalDefinition() *models.WorkflowDefinition {
	return CreateTestDefinition(
		[]*models.WorkflowStep{
			CreateTestStep("start", models.StepTypeStart),
			CreateTestStep("submit", models.StepTypeTask, WithConfig(&models.TaskConfig{
				Fields: []models.FormField{{Name: "amount", Required: true}},
			})),
			CreateTestStep("decide", models.StepTypeDecision),
			CreateTestStep("manager", models.StepTypeTask),
			CreateTestStep("done", models.StepTypeEnd),
		},
		CreateTestTransition("start", "submit"),
		CreateTestTransition("submit", "decide"),
		CreateTestTransition("decide", "manager", "amount > 1000"),
		CreateTestTransition("decide", "done"),
		CreateTestTransition("manager", "done"),
	)
}
