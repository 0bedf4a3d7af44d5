package validation

import (
	"fmt"
	"strings"

	"github.com/dukex/stepflow/pkg/expression"
	"github.com/dukex/stepflow/pkg/models"
)

// Validate checks the definition graph and returns every finding. It never
// fails and does not modify def.
func Validate(def *models.WorkflowDefinition) Report {
	v := &validator{def: def}

	if def == nil {
		v.add(SeverityError, CodeMissingStart, "", "", "definition is empty")

		return Report{Findings: v.findings}
	}

	v.checkSteps()
	v.checkStartAndEnd()
	v.checkTransitions()
	v.checkReachability()
	v.checkConnectivity()
	v.checkDecisions()
	v.checkConfigs()

	return Report{Findings: v.findings}
}

type validator struct {
	def      *models.WorkflowDefinition
	findings []Finding
}

func (v *validator) add(severity Severity, code, stepID, transitionID, format string, args ...any) {
	v.findings = append(v.findings, Finding{
		Severity:     severity,
		Code:         code,
		StepID:       stepID,
		TransitionID: transitionID,
		Message:      fmt.Sprintf(format, args...),
	})
}

func (v *validator) steps() []*models.WorkflowStep {
	steps := make([]*models.WorkflowStep, 0, len(v.def.Steps))

	for _, step := range v.def.Steps {
		if step != nil {
			steps = append(steps, step)
		}
	}

	return steps
}

func (v *validator) transitions() []*models.WorkflowTransition {
	transitions := make([]*models.WorkflowTransition, 0, len(v.def.Transitions))

	for _, t := range v.def.Transitions {
		if t != nil {
			transitions = append(transitions, t)
		}
	}

	return transitions
}

func (v *validator) checkSteps() {
	seen := make(map[string]bool)

	for _, step := range v.steps() {
		if seen[step.ID] {
			v.add(SeverityError, CodeDuplicateStep, step.ID, "", "step id %q is used more than once", step.ID)
		}

		seen[step.ID] = true

		if !step.Type.IsKnown() {
			v.add(SeverityWarning, CodeUnknownStepType, step.ID, "",
				"step type %q is not built in and will pass data through unless a handler is registered", step.Type)
		}
	}
}

func (v *validator) checkStartAndEnd() {
	starts := v.def.StepsOfType(models.StepTypeStart)

	switch {
	case len(starts) == 0:
		v.add(SeverityError, CodeMissingStart, "", "", "workflow must have exactly one start step, found none")
	case len(starts) > 1:
		for _, step := range starts[1:] {
			v.add(SeverityError, CodeMultipleStart, step.ID, "",
				"workflow must have exactly one start step, found %d", len(starts))
		}
	}

	if len(v.def.StepsOfType(models.StepTypeEnd)) == 0 {
		v.add(SeverityError, CodeMissingEnd, "", "", "workflow must have at least one end step")
	}
}

func (v *validator) checkTransitions() {
	seen := make(map[string]bool)

	for _, t := range v.transitions() {
		if t.ID != "" && seen[t.ID] {
			v.add(SeverityError, CodeDuplicateTransition, "", t.ID, "transition id %q is used more than once", t.ID)
		}

		seen[t.ID] = true

		if _, ok := v.def.StepByID(t.From); !ok {
			v.add(SeverityError, CodeDanglingTransition, "", t.ID, "transition source %q does not exist", t.From)
		}

		if _, ok := v.def.StepByID(t.To); !ok {
			v.add(SeverityError, CodeDanglingTransition, "", t.ID, "transition target %q does not exist", t.To)
		}

		if t.From == t.To {
			v.add(SeverityWarning, CodeSelfTransition, t.From, t.ID, "transition loops back to the same step")
		}

		if t.HasCondition() {
			if err := expression.Check(t.Condition); err != nil {
				v.add(SeverityWarning, CodeMalformedCondition, "", t.ID,
					"condition %q cannot be parsed and will always evaluate to false", t.Condition)
			}
		}
	}
}

func (v *validator) checkReachability() {
	start, ok := v.def.StartStep()
	if !ok {
		return
	}

	reached := map[string]bool{start.ID: true}
	queue := []string{start.ID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, t := range v.def.Outgoing(current) {
			if _, exists := v.def.StepByID(t.To); !exists || reached[t.To] {
				continue
			}

			reached[t.To] = true
			queue = append(queue, t.To)
		}
	}

	for _, step := range v.steps() {
		if !reached[step.ID] {
			v.add(SeverityWarning, CodeUnreachableStep, step.ID, "", "step %q cannot be reached from the start step", step.Name)
		}
	}
}

func (v *validator) checkConnectivity() {
	for _, step := range v.steps() {
		if step.Type != models.StepTypeStart && len(v.def.Incoming(step.ID)) == 0 {
			v.add(SeverityWarning, CodeNoIncoming, step.ID, "", "step %q has no incoming transitions", step.Name)
		}

		if step.Type != models.StepTypeEnd && len(v.def.Outgoing(step.ID)) == 0 {
			v.add(SeverityWarning, CodeNoOutgoing, step.ID, "", "step %q has no outgoing transitions", step.Name)
		}
	}
}

func (v *validator) checkDecisions() {
	for _, step := range v.def.StepsOfType(models.StepTypeDecision) {
		outgoing := v.def.Outgoing(step.ID)

		if len(outgoing) < 2 {
			v.add(SeverityError, CodeDecisionBranches, step.ID, "",
				"decision step %q needs at least two outgoing transitions, found %d", step.Name, len(outgoing))
		}

		for _, t := range outgoing {
			if !t.HasCondition() {
				v.add(SeverityWarning, CodeUnconditionedBranch, step.ID, t.ID,
					"branch %q of decision step %q has no condition and acts as the default path", t.ID, step.Name)
			}
		}
	}
}

func (v *validator) checkConfigs() {
	for _, step := range v.steps() {
		v.checkConfig(step)
		v.checkMappings(step)
		v.checkErrorHandlers(step)
	}
}

func (v *validator) checkConfig(step *models.WorkflowStep) {
	incomplete := func(format string, args ...any) {
		v.add(SeverityWarning, CodeIncompleteConfig, step.ID, "", format, args...)
	}

	switch step.Type {
	case models.StepTypeService:
		if cfg, ok := step.ServiceConfig(); !ok || blank(cfg.Endpoint) {
			incomplete("service step %q has no endpoint", step.Name)
		}
	case models.StepTypeScript:
		cfg, ok := step.ScriptConfig()

		switch {
		case !ok || blank(cfg.Source):
			incomplete("script step %q has no source", step.Name)
		case !expression.SupportsLanguage(cfg.Language):
			incomplete("script step %q uses unsupported language %q", step.Name, cfg.Language)
		}
	case models.StepTypeTimer:
		if cfg, ok := step.TimerConfig(); !ok || blank(cfg.Value) {
			incomplete("timer step %q has no delay or schedule", step.Name)
		}
	case models.StepTypeMessage, models.StepTypeNotification:
		cfg, ok := step.MessageConfig()
		if !ok || blank(cfg.Template) {
			incomplete("%s step %q has no template", step.Type, step.Name)
		}

		if !ok || len(cfg.Recipients) == 0 {
			incomplete("%s step %q has no recipients", step.Type, step.Name)
		}
	}
}

func (v *validator) checkMappings(step *models.WorkflowStep) {
	for idx, m := range step.Mappings {
		if blank(m.Source) || blank(m.Target) {
			v.add(SeverityWarning, CodeInvalidVariableMap, step.ID, "",
				"mapping %d of step %q needs both a source and a target", idx, step.Name)
		}

		if m.Type != models.MappingInput && m.Type != models.MappingOutput {
			v.add(SeverityWarning, CodeInvalidVariableMap, step.ID, "",
				"mapping %d of step %q has unknown direction %q", idx, step.Name, m.Type)
		}
	}
}

func (v *validator) checkErrorHandlers(step *models.WorkflowStep) {
	for idx, h := range step.ErrorHandlers {
		invalid := func(format string, args ...any) {
			v.add(SeverityWarning, CodeInvalidErrorHandler, step.ID, "",
				"error handler %d of step %q: "+format, append([]any{idx, step.Name}, args...)...)
		}

		switch h.Type {
		case models.ErrorHandlerRetry:
			if h.Retries() < 0 || (h.RetryDelay != nil && *h.RetryDelay < 0) {
				invalid("retry counts and delays must not be negative")
			}
		case models.ErrorHandlerFallback:
			if _, err := h.Fallback(); err != nil {
				invalid("fallback value is not valid JSON")
			}
		case models.ErrorHandlerNotification:
			if blank(h.NotificationTemplate) {
				invalid("notification has no template")
			}
		default:
			invalid("unknown handler type %q", h.Type)
		}
	}
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
