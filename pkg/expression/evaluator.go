// Package expression evaluates transition conditions, mapping transforms and
// hcl scripts using the HCL native expression syntax.
package expression

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// LanguageHCL is the script language served by Evaluator. A script with no
// language is treated as hcl.
const LanguageHCL = "hcl"

// SupportsLanguage reports whether ScriptEvaluator can run scripts written in language.
func SupportsLanguage(language string) bool {
	language = strings.TrimSpace(language)

	return language == "" || strings.EqualFold(language, LanguageHCL)
}

var (
	ErrEmptyExpression     = errors.New("empty expression")
	ErrUnsupportedLanguage = errors.New("unsupported script language")
)

// DataVariable is the root variable holding the whole data bag.
// Top-level data keys are also exposed as root variables.
const DataVariable = "data"

// ValueVariable is the root variable bound to the source value in transforms.
const ValueVariable = "value"

// Evaluator evaluates HCL expressions over instance data.
// It is safe for concurrent use.
type Evaluator struct {
	functions map[string]function.Function
	logger    *slog.Logger
}

// NewEvaluator creates an evaluator with the standard function set.
func NewEvaluator(logger *slog.Logger) *Evaluator {
	return &Evaluator{
		functions: standardFunctions(),
		logger:    logger.With("module", "expression"),
	}
}

func standardFunctions() map[string]function.Function {
	return map[string]function.Function{
		"abs":        stdlib.AbsoluteFunc,
		"ceil":       stdlib.CeilFunc,
		"coalesce":   stdlib.CoalesceFunc,
		"concat":     stdlib.ConcatFunc,
		"contains":   stdlib.ContainsFunc,
		"floor":      stdlib.FloorFunc,
		"format":     stdlib.FormatFunc,
		"int":        stdlib.IntFunc,
		"join":       stdlib.JoinFunc,
		"jsondecode": stdlib.JSONDecodeFunc,
		"jsonencode": stdlib.JSONEncodeFunc,
		"keys":       stdlib.KeysFunc,
		"length":     stdlib.LengthFunc,
		"lookup":     stdlib.LookupFunc,
		"lower":      stdlib.LowerFunc,
		"max":        stdlib.MaxFunc,
		"min":        stdlib.MinFunc,
		"replace":    stdlib.ReplaceFunc,
		"split":      stdlib.SplitFunc,
		"substr":     stdlib.SubstrFunc,
		"trimspace":  stdlib.TrimSpaceFunc,
		"upper":      stdlib.UpperFunc,
		"values":     stdlib.ValuesFunc,
	}
}

// Eval evaluates expr with every top-level key of data bound as a root variable
// and the whole bag bound to `data`.
func (e *Evaluator) Eval(expr string, data map[string]any) (any, error) {
	variables := make(map[string]cty.Value, len(data)+1)

	for key, item := range data {
		if !hclsyntax.ValidIdentifier(key) {
			continue
		}

		converted, err := toCty(item)
		if err != nil {
			return nil, fmt.Errorf("failed to convert variable %q: %w", key, err)
		}

		variables[key] = converted
	}

	root, err := ToCtyObject(data)
	if err != nil {
		return nil, err
	}

	variables[DataVariable] = root

	val, err := e.evaluate(expr, "expression", variables)
	if err != nil {
		return nil, err
	}

	return fromCty(val)
}

// Evaluate decides a condition. Malformed expressions, evaluation errors and
// results that are not convertible to a boolean all yield false.
func (e *Evaluator) Evaluate(expr string, data map[string]any) bool {
	result, err := e.Eval(expr, data)
	if err != nil {
		e.logger.Debug("condition evaluated to false", "condition", expr, "error", err)

		return false
	}

	val, err := toCty(result)
	if err != nil || val.IsNull() {
		return false
	}

	converted, err := convert.Convert(val, cty.Bool)
	if err != nil || converted.IsNull() || !converted.IsKnown() {
		return false
	}

	return converted.True()
}

// Transform evaluates expr with value bound to the `value` variable.
func (e *Evaluator) Transform(expr string, value any) (any, error) {
	converted, err := toCty(value)
	if err != nil {
		return nil, err
	}

	val, err := e.evaluate(expr, "transform", map[string]cty.Value{ValueVariable: converted})
	if err != nil {
		return nil, err
	}

	return fromCty(val)
}

// ScriptEvaluator adapts Evaluator to script steps.
type ScriptEvaluator struct {
	evaluator *Evaluator
}

// NewScriptEvaluator creates a script evaluator backed by evaluator.
func NewScriptEvaluator(evaluator *Evaluator) *ScriptEvaluator {
	return &ScriptEvaluator{evaluator: evaluator}
}

// Evaluate runs an hcl script over data. An empty language means hcl. The script is a single expression and
// its value is the script result; data is never modified.
func (s *ScriptEvaluator) Evaluate(ctx context.Context, language, source string, data map[string]any) (any, error) {
	if !SupportsLanguage(language) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return s.evaluator.Eval(source, data)
}

func (e *Evaluator) evaluate(src, filename string, variables map[string]cty.Value) (cty.Value, error) {
	if strings.TrimSpace(src) == "" {
		return cty.NilVal, ErrEmptyExpression
	}

	expr, diags := hclsyntax.ParseExpression([]byte(src), filename, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("failed to parse %s: %w", filename, diags)
	}

	val, diags := expr.Value(&hcl.EvalContext{
		Variables: variables,
		Functions: e.functions,
	})
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("failed to evaluate %s: %w", filename, diags)
	}

	return val, nil
}

// Check reports whether expr parses as an HCL expression. Variables and
// functions are not resolved.
func Check(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return ErrEmptyExpression
	}

	_, diags := hclsyntax.ParseExpression([]byte(expr), "condition", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return diags
	}

	return nil
}
