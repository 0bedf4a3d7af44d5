// Package script provides the script step handler.
package script

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
)

// Step evaluates the configured source through a ScriptEvaluator. The script
// sees a private copy of the instance data. A script that yields an object has
// its attributes merged into the data; any value becomes the step output.
type Step struct {
	scripts protocol.ScriptEvaluator
}

// NewStep creates a script handler.
func NewStep(scripts protocol.ScriptEvaluator) *Step {
	return &Step{scripts: scripts}
}

// Type returns the step type.
func (s *Step) Type() models.StepType {
	return models.StepTypeScript
}

// Execute runs the script.
func (s *Step) Execute(ctx context.Context, step *models.WorkflowStep, data map[string]any) (models.ExecutionResult, error) {
	cfg, ok := step.ScriptConfig()
	if !ok || strings.TrimSpace(cfg.Source) == "" {
		return models.ExecutionResult{}, fmt.Errorf("step %s: script source is not configured", step.ID)
	}

	if s.scripts == nil {
		return models.ExecutionResult{}, fmt.Errorf("step %s: script evaluator: %w", step.ID, protocol.ErrCollaboratorUnavailable)
	}

	value, err := s.scripts.Evaluate(ctx, cfg.Language, cfg.Source, models.CopyData(data))
	if err != nil {
		return models.ExecutionResult{}, fmt.Errorf("script failed: %w", err)
	}

	result := models.ExecutionResult{Data: models.CopyData(data), Output: value}

	if object, ok := value.(map[string]any); ok {
		result.Data = models.MergeData(data, object)
	}

	return result, nil
}
