package web

import (
	"errors"

	"github.com/dukex/stepflow/pkg/engine"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/schema"
	"github.com/dukex/stepflow/pkg/services"
	"github.com/dukex/stepflow/pkg/validation"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

// ReportProblem is a 422 problem that carries every validation finding.
type ReportProblem struct {
	*problems.Problem

	Errors   []validation.Finding `json:"errors"`
	Warnings []validation.Finding `json:"warnings"`
}

func problem(c fiber.Ctx, status int, problemType, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func internalError(c fiber.Ctx, err error) error {
	p := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(p)
}

func publishRejected(c fiber.Ctx, rejected *services.PublishRejectedError) error {
	report := NewValidationReportResponse(rejected.DefinitionID, rejected.Report)

	p := ReportProblem{
		Problem: problems.NewStatusProblem(fiber.StatusUnprocessableEntity).
			WithInstance(c.Path()).
			WithType("publish_rejected").
			WithDetail(rejected.Error()),
		Errors:   report.Errors,
		Warnings: report.Warnings,
	}

	return c.Status(fiber.StatusUnprocessableEntity).JSON(p)
}

// handleServiceError maps service, engine and persistence errors to problems.
func handleServiceError(c fiber.Ctx, err error) error {
	var rejected *services.PublishRejectedError

	switch {
	case errors.As(err, &rejected):
		return publishRejected(c, rejected)

	case errors.Is(err, schema.ErrInvalidDocument), services.IsValidationError(err):
		return badRequest(c, err.Error())

	case engine.IsStateError(err):
		return problem(c, fiber.StatusConflict, "invalid_instance_state", err.Error())

	case persistence.IsDefinitionNotFound(err):
		return problem(c, fiber.StatusNotFound, "definition_not_found", "definition not found")

	case persistence.IsInstanceNotFound(err):
		return problem(c, fiber.StatusNotFound, "instance_not_found", "instance not found")

	case services.IsConflictError(err):
		return problem(c, fiber.StatusConflict, "conflict", err.Error())

	case persistence.IsConcurrentUpdate(err):
		return problem(c, fiber.StatusConflict, "concurrent_update", err.Error())

	case errors.Is(err, persistence.ErrInstanceExists):
		return problem(c, fiber.StatusConflict, "instance_exists", err.Error())

	case engine.IsStructuralError(err):
		return problem(c, fiber.StatusUnprocessableEntity, "invalid_definition", err.Error())

	case engine.IsExecutionError(err):
		return problem(c, fiber.StatusUnprocessableEntity, "step_execution_failed", err.Error())

	default:
		return internalError(c, err)
	}
}
