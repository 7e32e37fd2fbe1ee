package handlers

import (
	"finbot/internal/dto"
	"finbot/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ChatHandler struct {
	orchestrator *service.Orchestrator
	chats        service.ChatStore
	logger       *zap.Logger
}

func NewChatHandler(orchestrator *service.Orchestrator, chats service.ChatStore, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		orchestrator: orchestrator,
		chats:        chats,
		logger:       logger,
	}
}

// Ask runs one conversational turn. A missing session_id starts a new
// session; its id comes back in the response.
func (h *ChatHandler) Ask(c *fiber.Ctx) error {
	var req dto.AskRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	sessionID := uuid.Nil
	if req.SessionID != "" {
		var err error
		sessionID, err = uuid.Parse(req.SessionID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid session ID",
			})
		}
	}

	result, err := h.orchestrator.Ask(c.Context(), sessionID, req.Query)
	if err != nil {
		h.logger.Error("Failed to run turn", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to answer the question",
		})
	}

	return c.JSON(dto.AskResponse{
		SessionID: result.SessionID.String(),
		Answer:    result.Answer,
		State:     string(result.State),
		ToolCalls: result.ToolCalls,
	})
}

// ListMessages returns the session transcript in message order.
func (h *ChatHandler) ListMessages(c *fiber.Ctx) error {
	sessionID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid session ID",
		})
	}

	session, err := h.chats.GetSession(c.Context(), sessionID)
	if err != nil {
		h.logger.Error("Failed to load session", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load session",
		})
	}
	if session == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}

	limit := c.QueryInt("limit", 0)
	messages, err := h.chats.ListMessages(c.Context(), sessionID, limit)
	if err != nil {
		h.logger.Error("Failed to list messages", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list messages",
		})
	}

	out := make([]dto.MessageResponse, len(messages))
	for i, msg := range messages {
		out[i] = dto.MessageResponse{
			Role:         string(msg.Role),
			Content:      msg.Content,
			MessageOrder: msg.MessageOrder,
			CreatedAt:    msg.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}
	return c.JSON(out)
}
