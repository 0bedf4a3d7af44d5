// Package web provides HTTP request and response types for the workflow API.
package web

import (
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/validation"
)

// CreateInstanceRequest represents the request body for starting a workflow instance.
type CreateInstanceRequest struct {
	DefinitionID string         `json:"definition_id"         validate:"required"`
	InstanceID   string         `json:"instance_id,omitempty" validate:"omitempty,max=128"`
	ActorID      string         `json:"actor_id,omitempty"`
	Data         map[string]any `json:"data"`
}

// AdvanceInstanceRequest represents the request body for completing the current step.
type AdvanceInstanceRequest struct {
	Output  map[string]any `json:"output"`
	ActorID string         `json:"actor_id,omitempty"`
	Comment string         `json:"comment,omitempty"  validate:"max=2000"`
}

// TerminateInstanceRequest represents the request body for terminating an instance.
type TerminateInstanceRequest struct {
	ActorID string `json:"actor_id,omitempty"`
	Comment string `json:"comment,omitempty"  validate:"max=2000"`
}

// AnnotateInstanceRequest represents the request body for adding a comment to the history.
type AnnotateInstanceRequest struct {
	ActorID string `json:"actor_id" validate:"required"`
	Comment string `json:"comment"  validate:"required,max=2000"`
}

// ValidationReportResponse is the validator outcome split by severity.
type ValidationReportResponse struct {
	DefinitionID string               `json:"definition_id"`
	CanPublish   bool                 `json:"can_publish"`
	Errors       []validation.Finding `json:"errors"`
	Warnings     []validation.Finding `json:"warnings"`
}

// NewValidationReportResponse builds the response for a report. Empty
// severities are rendered as empty arrays.
func NewValidationReportResponse(definitionID string, report validation.Report) ValidationReportResponse {
	response := ValidationReportResponse{
		DefinitionID: definitionID,
		CanPublish:   report.CanPublish(),
		Errors:       report.Errors(),
		Warnings:     report.Warnings(),
	}

	if response.Errors == nil {
		response.Errors = []validation.Finding{}
	}

	if response.Warnings == nil {
		response.Warnings = []validation.Finding{}
	}

	return response
}

// HistoryResponse lists the history of an instance in the order it happened.
type HistoryResponse struct {
	InstanceID string                `json:"instance_id"`
	History    []models.HistoryEntry `json:"history"`
}

// DefinitionsResponse wraps a definition listing.
type DefinitionsResponse struct {
	Definitions []*models.WorkflowDefinition `json:"definitions"`
	TotalCount  int                          `json:"total_count"`
}
