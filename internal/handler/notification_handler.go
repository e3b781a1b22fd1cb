package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/newlearn-go-api/internal/dto"
	"github.com/noah-isme/newlearn-go-api/internal/middleware"
	"github.com/noah-isme/newlearn-go-api/internal/realtime"
	"github.com/noah-isme/newlearn-go-api/internal/service"
	"github.com/noah-isme/newlearn-go-api/internal/utils"
)

// NotificationHandler manages SSE notification streams and read state.
type NotificationHandler struct {
	service   service.NotificationService
	logger    zerolog.Logger
	keepAlive time.Duration
}

// NewNotificationHandler constructs a handler instance.
func NewNotificationHandler(service service.NotificationService, logger zerolog.Logger, keepAlive time.Duration) *NotificationHandler {
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	return &NotificationHandler{
		service:   service,
		logger:    logger.With().Str("component", "notification_handler").Logger(),
		keepAlive: keepAlive,
	}
}

// Register binds the notification routes.
func (h *NotificationHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Post("/", middleware.RequireRole("admin", "instructor"), h.publish)
	router.Get("/unread-count", h.unreadCount)
	router.Get("/stream", h.stream)
	router.Patch("/read-all", h.markAllRead)
	router.Patch("/:id/read", h.markRead)
}

func (h *NotificationHandler) list(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	offset, err := parseQueryInt(c, "offset")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid offset")
	}

	notifications, err := h.service.List(withRequestContext(c), userID, limit, offset)
	if err != nil {
		return respondError(c, h.logger, err, "list notifications")
	}

	return utils.SendSuccess(c, "notifications", notifications)
}

// publish lets staff send an announcement-style notification to one user.
func (h *NotificationHandler) publish(c *fiber.Ctx) error {
	var payload dto.NotificationCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}
	if payload.Type == "" {
		payload.Type = "announcement"
	}

	notification, err := h.service.Publish(withRequestContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "publish notification")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "notification published", notification)
}

func (h *NotificationHandler) unreadCount(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	count, err := h.service.UnreadCount(withRequestContext(c), userID)
	if err != nil {
		return respondError(c, h.logger, err, "count notifications")
	}

	return utils.SendSuccess(c, "unread notifications", dto.UnreadCountResponse{Count: count})
}

func (h *NotificationHandler) stream(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ctx, cancel := context.WithCancel(withRequestContext(c))
	stream, cleanup := h.service.Subscribe(userID)
	keepAlive := h.keepAlive

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			cleanup()
			cancel()
		}()

		ticker := time.NewTicker(keepAlive / 2)
		defer ticker.Stop()

		for {
			select {
			case notification, ok := <-stream:
				if !ok {
					return
				}
				if err := writeNotificationEvent(w, notification); err != nil {
					h.logger.Debug().Err(err).Str("user_id", userID).Msg("failed to write notification event")
					return
				}
			case <-ticker.C:
				if err := writeKeepAlive(w); err != nil {
					h.logger.Debug().Err(err).Str("user_id", userID).Msg("notification stream closed")
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})

	return nil
}

func (h *NotificationHandler) markRead(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	id, err := parseUintParamValue(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid notification id")
	}

	notification, err := h.service.MarkRead(withRequestContext(c), id, userID)
	if err != nil {
		return respondError(c, h.logger, err, "mark notification read")
	}

	return utils.SendSuccess(c, "notification updated", notification)
}

func (h *NotificationHandler) markAllRead(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	updated, err := h.service.MarkAllRead(withRequestContext(c), userID)
	if err != nil {
		return respondError(c, h.logger, err, "mark notifications read")
	}

	return utils.SendSuccess(c, "notifications updated", fiber.Map{"updated": updated})
}

func writeNotificationEvent(w *bufio.Writer, notification dto.NotificationResponse) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\n", notification.ID, realtime.EventNewNotification); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

func writeKeepAlive(w *bufio.Writer) error {
	if _, err := fmt.Fprintf(w, ": keep-alive %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return w.Flush()
}
