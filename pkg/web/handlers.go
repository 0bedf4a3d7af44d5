// Package web provides HTTP handlers and REST API endpoints for workflow definitions and instances.
package web

import (
	"net/http"
	"time"

	"github.com/dukex/stepflow/pkg/engine"
	"github.com/dukex/stepflow/pkg/registry"
	"github.com/dukex/stepflow/pkg/schema"
	"github.com/dukex/stepflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	definitions *services.Definitions
	engine      *engine.Engine
	validator   *validator.Validate
	registry    *registry.Registry
}

func NewAPIHandlers(
	definitions *services.Definitions,
	engine *engine.Engine,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		definitions: definitions,
		engine:      engine,
		validator:   validator,
		registry:    registry,
	}
}

// RegisterRoutes mounts every endpoint on router.
func (h *APIHandlers) RegisterRoutes(router fiber.Router) {
	d := router.Group("/definitions")
	d.Get("/", h.GetDefinitions)
	d.Post("/", h.CreateDefinition)
	d.Get("/:id", h.GetDefinition)
	d.Put("/:id", h.UpdateDefinition)
	d.Post("/:id/validate", h.ValidateDefinition)
	d.Post("/:id/publish", h.PublishDefinition)
	d.Post("/:id/archive", h.ArchiveDefinition)

	i := router.Group("/instances")
	i.Post("/", h.CreateInstance)
	i.Get("/:id", h.GetInstance)
	i.Post("/:id/advance", h.AdvanceInstance)
	i.Post("/:id/terminate", h.TerminateInstance)
	i.Get("/:id/history", h.GetInstanceHistory)
	i.Post("/:id/comments", h.AnnotateInstance)

	router.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) GetDefinitions(c fiber.Ctx) error {
	defs, err := h.definitions.List(c.Context(), services.ListDefinitionsRequest{
		Status: c.Query("status"),
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(DefinitionsResponse{Definitions: defs, TotalCount: len(defs)})
}

func (h *APIHandlers) GetDefinition(c fiber.Ctx) error {
	def, err := h.definitions.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	persistenceCheck, perOk := h.definitions.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Stepflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && perOk {
		status = "healthy"
		message = "Stepflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":    registryCheck,
			"persistence": persistenceCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) CreateDefinition(c fiber.Ctx) error {
	def, err := schema.DecodeDefinition(c.Body())
	if err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.definitions.Create(c.Context(), def)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateDefinition(c fiber.Ctx) error {
	def, err := schema.DecodeDefinition(c.Body())
	if err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.definitions.Update(c.Context(), c.Params("id"), def)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) ValidateDefinition(c fiber.Ctx) error {
	id := c.Params("id")

	report, err := h.definitions.Validate(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(NewValidationReportResponse(id, report))
}

func (h *APIHandlers) PublishDefinition(c fiber.Ctx) error {
	published, err := h.definitions.Publish(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(published)
}

func (h *APIHandlers) ArchiveDefinition(c fiber.Ctx) error {
	archived, err := h.definitions.Archive(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(archived)
}

// bindJSON decodes and validates an optional JSON body into req.
func (h *APIHandlers) bindJSON(c fiber.Ctx, req any) error {
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	return nil
}
