package handlers

import (
	"finbot/internal/dto"
	"finbot/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type AdminHandler struct {
	store  service.DocumentStore
	logger *zap.Logger
}

func NewAdminHandler(store service.DocumentStore, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		store:  store,
		logger: logger,
	}
}

// Status reports aggregate index counts.
func (h *AdminHandler) Status(c *fiber.Ctx) error {
	stats, err := h.store.Stats(c.Context())
	if err != nil {
		h.logger.Error("Failed to load store stats", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load store stats",
		})
	}
	return c.JSON(stats)
}

// Clear wipes the document index. The confirm flag must be set
// explicitly; there is no undo.
func (h *AdminHandler) Clear(c *fiber.Ctx) error {
	var req dto.ClearRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if !req.Confirm {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Set confirm to true to clear the document store",
		})
	}

	if err := h.store.Clear(c.Context()); err != nil {
		h.logger.Error("Failed to clear document store", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to clear document store",
		})
	}
	return c.JSON(fiber.Map{"status": "cleared"})
}
