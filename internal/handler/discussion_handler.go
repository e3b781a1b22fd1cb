package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/newlearn-go-api/internal/dto"
	"github.com/noah-isme/newlearn-go-api/internal/middleware"
	"github.com/noah-isme/newlearn-go-api/internal/service"
	"github.com/noah-isme/newlearn-go-api/internal/utils"
)

// DiscussionHandler provides HTTP endpoints for lecture discussions and comments.
type DiscussionHandler struct {
	service service.DiscussionService
	logger  zerolog.Logger
}

// NewDiscussionHandler constructs a handler instance.
func NewDiscussionHandler(service service.DiscussionService, logger zerolog.Logger) *DiscussionHandler {
	return &DiscussionHandler{
		service: service,
		logger:  logger.With().Str("component", "discussion_handler").Logger(),
	}
}

// Register binds the discussion routes. The routes span several prefixes so
// the group is expected to be the API root.
func (h *DiscussionHandler) Register(router fiber.Router) {
	router.Get("/lectures/:lectureId/discussions", h.list)
	router.Post("/lectures/:lectureId/discussions", h.create)
	router.Put("/discussions/:id", h.edit)
	router.Delete("/discussions/:id", h.delete)
	router.Get("/discussions/:id/comments", h.listComments)
	router.Post("/discussions/:id/comments", h.createComment)
	router.Put("/comments/:id", h.editComment)
	router.Delete("/comments/:id", h.deleteComment)
}

func (h *DiscussionHandler) list(c *fiber.Ctx) error {
	lectureID := strings.TrimSpace(c.Params("lectureId"))
	if lectureID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "lectureId required")
	}

	discussions, err := h.service.List(withRequestContext(c), lectureID)
	if err != nil {
		return respondError(c, h.logger, err, "list discussions")
	}

	return utils.SendSuccess(c, "discussions", discussions)
}

func (h *DiscussionHandler) create(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	lectureID := strings.TrimSpace(c.Params("lectureId"))
	if lectureID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "lectureId required")
	}

	var payload dto.DiscussionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	discussion, err := h.service.Create(withRequestContext(c), userID, middleware.UserRole(c), lectureID, payload)
	if err != nil {
		return respondError(c, h.logger, err, "create discussion")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "discussion created", discussion)
}

func (h *DiscussionHandler) edit(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	id, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.DiscussionUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	discussion, err := h.service.Edit(withRequestContext(c), userID, id, payload)
	if err != nil {
		return respondError(c, h.logger, err, "update discussion")
	}

	return utils.SendSuccess(c, "discussion updated", discussion)
}

func (h *DiscussionHandler) delete(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	id, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	discussion, err := h.service.Delete(withRequestContext(c), userID, middleware.UserRole(c), id)
	if err != nil {
		return respondError(c, h.logger, err, "delete discussion")
	}

	return utils.SendSuccess(c, "discussion deleted", discussion)
}

func (h *DiscussionHandler) listComments(c *fiber.Ctx) error {
	id, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	comments, err := h.service.ListComments(withRequestContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err, "list comments")
	}

	return utils.SendSuccess(c, "comments", comments)
}

func (h *DiscussionHandler) createComment(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	id, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.CommentCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	comment, err := h.service.CreateComment(withRequestContext(c), userID, id, payload)
	if err != nil {
		return respondError(c, h.logger, err, "create comment")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "comment created", comment)
}

func (h *DiscussionHandler) editComment(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	id, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.CommentUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	comment, err := h.service.EditComment(withRequestContext(c), userID, id, payload)
	if err != nil {
		return respondError(c, h.logger, err, "update comment")
	}

	return utils.SendSuccess(c, "comment updated", comment)
}

func (h *DiscussionHandler) deleteComment(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	id, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	comment, err := h.service.DeleteComment(withRequestContext(c), userID, middleware.UserRole(c), id)
	if err != nil {
		return respondError(c, h.logger, err, "delete comment")
	}

	return utils.SendSuccess(c, "comment deleted", comment)
}
