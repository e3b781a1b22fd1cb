package handler

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/newlearn-go-api/internal/dto"
	"github.com/noah-isme/newlearn-go-api/internal/middleware"
	"github.com/noah-isme/newlearn-go-api/internal/service"
	"github.com/noah-isme/newlearn-go-api/internal/utils"
)

// ChatHandler exposes the course chat message store.
type ChatHandler struct {
	service   service.MessageService
	uploads   service.UploadService
	logger    zerolog.Logger
	sendLimit fiber.Handler
}

// NewChatHandler creates a chat handler instance. uploads may be nil when no
// media storage is configured.
func NewChatHandler(service service.MessageService, uploads service.UploadService, sendLimit fiber.Handler, logger zerolog.Logger) *ChatHandler {
	if sendLimit == nil {
		sendLimit = func(c *fiber.Ctx) error { return c.Next() }
	}
	return &ChatHandler{
		service:   service,
		uploads:   uploads,
		logger:    logger.With().Str("component", "chat_handler").Logger(),
		sendLimit: sendLimit,
	}
}

// Register binds chat routes under the provided router group.
func (h *ChatHandler) Register(router fiber.Router) {
	router.Post("/messages", h.sendLimit, h.send)
	router.Get("/messages", h.conversation)
	router.Patch("/messages/:id/read", h.markRead)
	router.Patch("/messages/:id", h.edit)
	router.Delete("/messages/:id", h.delete)
	router.Get("/inbox", h.inbox)
	router.Post("/media", h.sendLimit, h.media)
}

func (h *ChatHandler) send(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.ChatSendRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	message, err := h.service.Send(withRequestContext(c), userID, payload)
	if err != nil {
		return respondError(c, h.logger, err, "send message")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *ChatHandler) conversation(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	query := dto.ChatConversationQuery{
		CourseID:      strings.TrimSpace(c.Query("course_id")),
		CounterpartID: strings.TrimSpace(c.Query("counterpart_id")),
	}
	if raw := strings.TrimSpace(c.Query("before")); raw != "" {
		before, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid before cursor")
		}
		query.Before = uint(before)
	}
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	query.Limit = limit

	messages, err := h.service.Conversation(withRequestContext(c), userID, query)
	if err != nil {
		return respondError(c, h.logger, err, "load conversation")
	}

	var meta interface{}
	if query.Limit > 0 && len(messages) > 0 {
		meta = fiber.Map{"next_before": messages[0].ID, "count": len(messages)}
	}

	return utils.OK(c, messages, "conversation", meta)
}

func (h *ChatHandler) inbox(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	messages, err := h.service.Inbox(withRequestContext(c), userID, strings.TrimSpace(c.Query("course_id")))
	if err != nil {
		return respondError(c, h.logger, err, "load inbox")
	}

	return utils.SendSuccess(c, "inbox", messages)
}

func (h *ChatHandler) edit(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	id, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ChatEditRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	message, err := h.service.Edit(withRequestContext(c), userID, id, payload)
	if err != nil {
		return respondError(c, h.logger, err, "edit message")
	}

	return utils.SendSuccess(c, "message updated", message)
}

func (h *ChatHandler) delete(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	id, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	message, err := h.service.Delete(withRequestContext(c), userID, id)
	if err != nil {
		return respondError(c, h.logger, err, "delete message")
	}

	return utils.SendSuccess(c, "message deleted", message)
}

func (h *ChatHandler) markRead(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	id, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	message, err := h.service.MarkRead(withRequestContext(c), userID, id)
	if err != nil {
		return respondError(c, h.logger, err, "mark message read")
	}

	return utils.SendSuccess(c, "message read", message)
}

func (h *ChatHandler) media(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}
	if h.uploads == nil {
		return utils.SendError(c, fiber.StatusServiceUnavailable, "media uploads are not configured")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	result, err := h.uploads.Upload(withRequestContext(c), file, userID)
	if err != nil {
		return respondError(c, h.logger, err, "upload")
	}

	return utils.SendSuccess(c, "upload successful", result)
}
