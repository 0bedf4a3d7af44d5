package web

import (
	"github.com/dukex/stepflow/pkg/engine"
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) CreateInstance(c fiber.Ctx) error {
	var req CreateInstanceRequest
	if err := h.bindJSON(c, &req); err != nil {
		return err
	}

	instance, err := h.engine.CreateInstance(c.Context(), req.DefinitionID, req.Data, engine.CreateOptions{
		InstanceID: req.InstanceID,
		ActorID:    req.ActorID,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(instance)
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	instance, err := h.engine.Instance(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) AdvanceInstance(c fiber.Ctx) error {
	var req AdvanceInstanceRequest
	if err := h.bindJSON(c, &req); err != nil {
		return err
	}

	instance, err := h.engine.Advance(c.Context(), c.Params("id"), req.Output, engine.ActionOptions{
		ActorID: req.ActorID,
		Comment: req.Comment,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) TerminateInstance(c fiber.Ctx) error {
	var req TerminateInstanceRequest
	if err := h.bindJSON(c, &req); err != nil {
		return err
	}

	instance, err := h.engine.Terminate(c.Context(), c.Params("id"), engine.ActionOptions{
		ActorID: req.ActorID,
		Comment: req.Comment,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) GetInstanceHistory(c fiber.Ctx) error {
	id := c.Params("id")

	history, err := h.engine.GetHistory(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(HistoryResponse{InstanceID: id, History: history})
}

func (h *APIHandlers) AnnotateInstance(c fiber.Ctx) error {
	var req AnnotateInstanceRequest
	if err := h.bindJSON(c, &req); err != nil {
		return err
	}

	err := h.engine.Annotate(c.Context(), c.Params("id"), engine.ActionOptions{
		ActorID: req.ActorID,
		Comment: req.Comment,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
