package handlers

import (
	"finbot/internal/dto"
	"finbot/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type IngestHandler struct {
	ingestor *service.Ingestor
	logger   *zap.Logger
}

func NewIngestHandler(ingestor *service.Ingestor, logger *zap.Logger) *IngestHandler {
	return &IngestHandler{
		ingestor: ingestor,
		logger:   logger,
	}
}

// Ingest runs the pipeline over a batch of source records and reports
// per-batch counts. Individual document failures are listed in the
// summary, not surfaced as an HTTP error.
func (h *IngestHandler) Ingest(c *fiber.Ctx) error {
	var req dto.IngestRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if len(req.Records) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "At least one record is required",
		})
	}

	h.logger.Info("Ingestion batch accepted", zap.Int("records", len(req.Records)))
	summary := h.ingestor.IngestAll(c.Context(), req.Records)
	return c.JSON(summary)
}
