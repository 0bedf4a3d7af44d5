// Package message provides the handler shared by message and notification steps.
package message

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
	"github.com/dukex/stepflow/pkg/template"
)

// Step renders the configured template over the instance data and hands the
// result to a Dispatcher. Recipients may be templates as well.
type Step struct {
	stepType   models.StepType
	dispatcher protocol.Dispatcher
}

// NewStep creates a handler for stepType (message or notification).
func NewStep(stepType models.StepType, dispatcher protocol.Dispatcher) *Step {
	return &Step{stepType: stepType, dispatcher: dispatcher}
}

// Type returns the step type.
func (s *Step) Type() models.StepType {
	return s.stepType
}

// Execute renders and sends the message.
func (s *Step) Execute(ctx context.Context, step *models.WorkflowStep, data map[string]any) (models.ExecutionResult, error) {
	cfg, ok := step.MessageConfig()
	if !ok || strings.TrimSpace(cfg.Template) == "" {
		return models.ExecutionResult{}, fmt.Errorf("step %s: message template is not configured", step.ID)
	}

	if s.dispatcher == nil {
		return models.ExecutionResult{}, fmt.Errorf("step %s: dispatcher: %w", step.ID, protocol.ErrCollaboratorUnavailable)
	}

	body, err := template.RenderString(cfg.Template, data)
	if err != nil {
		return models.ExecutionResult{}, fmt.Errorf("failed to render message: %w", err)
	}

	recipients, err := template.RenderAll(cfg.Recipients, data)
	if err != nil {
		return models.ExecutionResult{}, fmt.Errorf("failed to render recipients: %w", err)
	}

	if len(recipients) == 0 {
		return models.ExecutionResult{}, fmt.Errorf("step %s: no recipients", step.ID)
	}

	if err := s.dispatcher.Send(ctx, cfg.Channel, body, recipients); err != nil {
		return models.ExecutionResult{}, err
	}

	recipientList := make([]any, len(recipients))
	for idx, recipient := range recipients {
		recipientList[idx] = recipient
	}

	return models.ExecutionResult{
		Data: models.CopyData(data),
		Output: map[string]any{
			"channel":    cfg.Channel,
			"message":    body,
			"recipients": recipientList,
		},
	}, nil
}
