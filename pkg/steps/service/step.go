// Package service provides the external service call step handler.
package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
	"github.com/dukex/stepflow/pkg/template"
)

// Step calls the configured endpoint through a ServiceInvoker. Endpoint, headers
// and body are templates rendered over the instance data.
type Step struct {
	invoker protocol.ServiceInvoker
}

// NewStep creates a service handler.
func NewStep(invoker protocol.ServiceInvoker) *Step {
	return &Step{invoker: invoker}
}

// Type returns the step type.
func (s *Step) Type() models.StepType {
	return models.StepTypeService
}

// Execute performs the call. The response becomes the step output.
func (s *Step) Execute(ctx context.Context, step *models.WorkflowStep, data map[string]any) (models.ExecutionResult, error) {
	cfg, ok := step.ServiceConfig()
	if !ok || strings.TrimSpace(cfg.Endpoint) == "" {
		return models.ExecutionResult{}, fmt.Errorf("step %s: service endpoint is not configured", step.ID)
	}

	if s.invoker == nil {
		return models.ExecutionResult{}, fmt.Errorf("step %s: service invoker: %w", step.ID, protocol.ErrCollaboratorUnavailable)
	}

	endpoint, err := template.RenderString(cfg.Endpoint, data)
	if err != nil {
		return models.ExecutionResult{}, fmt.Errorf("failed to render endpoint: %w", err)
	}

	body, err := template.RenderString(cfg.Body, data)
	if err != nil {
		return models.ExecutionResult{}, fmt.Errorf("failed to render body: %w", err)
	}

	headers := make(map[string]string, len(cfg.Headers))

	for key, value := range cfg.Headers {
		rendered, err := template.RenderString(value, data)
		if err != nil {
			rendered = value
		}

		headers[key] = rendered
	}

	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodGet
	}

	response, err := s.invoker.Invoke(ctx, strings.TrimSpace(endpoint), method, headers, body)
	if err != nil {
		return models.ExecutionResult{}, err
	}

	return models.ExecutionResult{
		Data:   models.CopyData(data),
		Output: response,
	}, nil
}
