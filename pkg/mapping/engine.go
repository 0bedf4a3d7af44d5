// Package mapping applies declared variable mappings to instance data when a
// step is entered or left.
package mapping

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
)

// Warning describes a mapping that was skipped.
type Warning struct {
	Source  string `json:"source"`
	Target  string `json:"target"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s -> %s: %s", w.Source, w.Target, w.Message)
}

// Engine applies variable mappings. Mapping problems never fail a step; they
// are reported as warnings and the offending mapping is skipped.
type Engine struct {
	transformer protocol.TransformEvaluator
	logger      *slog.Logger
}

// NewEngine creates a mapping engine. transformer may be nil, in which case
// mappings with a transform are skipped with a warning.
func NewEngine(transformer protocol.TransformEvaluator, logger *slog.Logger) *Engine {
	return &Engine{
		transformer: transformer,
		logger:      logger.With("module", "mapping"),
	}
}

// Apply runs every mapping of the given direction in declared order over a copy
// of data and returns the copy. data itself is never modified.
func (e *Engine) Apply(
	ctx context.Context,
	mappings []models.VariableMapping,
	direction models.MappingDirection,
	data map[string]any,
) (map[string]any, []Warning) {
	result := models.CopyData(data)
	if result == nil {
		result = make(map[string]any)
	}

	var warnings []Warning

	for _, mapping := range mappings {
		if mapping.Type != direction {
			continue
		}

		if err := e.applyOne(mapping, result); err != nil {
			warning := Warning{Source: mapping.Source, Target: mapping.Target, Message: err.Error()}
			warnings = append(warnings, warning)

			e.logger.WarnContext(ctx, "variable mapping skipped",
				"direction", direction,
				"source", mapping.Source,
				"target", mapping.Target,
				"error", err,
			)
		}
	}

	return result, warnings
}

func (e *Engine) applyOne(mapping models.VariableMapping, data map[string]any) error {
	value, err := Get(data, mapping.Source)
	if err != nil {
		return err
	}

	value = models.CopyValue(value)

	if mapping.Transform != "" {
		if e.transformer == nil {
			return ErrNoTransformer
		}

		value, err = e.transformer.Transform(mapping.Transform, value)
		if err != nil {
			return fmt.Errorf("transform failed: %w", err)
		}
	}

	return Set(data, mapping.Target, value)
}
