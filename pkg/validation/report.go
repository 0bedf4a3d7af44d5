// Package validation checks the structure of workflow definitions.
package validation

import (
	"fmt"
	"strings"
)

// Severity classifies a finding. Only errors block publishing.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding codes.
const (
	CodeMissingStart         = "missing_start"
	CodeMultipleStart        = "multiple_start"
	CodeMissingEnd           = "missing_end"
	CodeDuplicateStep        = "duplicate_step"
	CodeDuplicateTransition  = "duplicate_transition"
	CodeUnknownStepType      = "unknown_step_type"
	CodeDanglingTransition   = "dangling_transition"
	CodeSelfTransition       = "self_transition"
	CodeUnreachableStep      = "unreachable_step"
	CodeNoIncoming           = "no_incoming_transition"
	CodeNoOutgoing           = "no_outgoing_transition"
	CodeDecisionBranches     = "decision_needs_two_branches"
	CodeUnconditionedBranch  = "decision_branch_without_condition"
	CodeIncompleteConfig     = "incomplete_config"
	CodeMalformedCondition   = "malformed_condition"
	CodeInvalidErrorHandler  = "invalid_error_handler"
	CodeInvalidVariableMap   = "invalid_variable_mapping"
)

// Finding is a single validation result.
type Finding struct {
	Severity     Severity `json:"severity"`
	Code         string   `json:"code"`
	StepID       string   `json:"step_id,omitempty"`
	TransitionID string   `json:"transition_id,omitempty"`
	Message      string   `json:"message"`
}

func (f Finding) String() string {
	var subject string

	switch {
	case f.StepID != "":
		subject = " step " + f.StepID
	case f.TransitionID != "":
		subject = " transition " + f.TransitionID
	}

	return fmt.Sprintf("[%s]%s: %s", f.Severity, subject, f.Message)
}

// Report is the outcome of validating a definition.
type Report struct {
	Findings []Finding `json:"findings"`
}

// Errors returns the error findings.
func (r Report) Errors() []Finding {
	return r.filter(SeverityError)
}

// Warnings returns the warning findings.
func (r Report) Warnings() []Finding {
	return r.filter(SeverityWarning)
}

// CanPublish reports whether the report has no error findings.
func (r Report) CanPublish() bool {
	return len(r.Errors()) == 0
}

// HasCode reports whether any finding carries code.
func (r Report) HasCode(code string) bool {
	for _, f := range r.Findings {
		if f.Code == code {
			return true
		}
	}

	return false
}

func (r Report) String() string {
	lines := make([]string, len(r.Findings))
	for idx, f := range r.Findings {
		lines[idx] = f.String()
	}

	return strings.Join(lines, "\n")
}

func (r Report) filter(severity Severity) []Finding {
	var findings []Finding

	for _, f := range r.Findings {
		if f.Severity == severity {
			findings = append(findings, f)
		}
	}

	return findings
}
